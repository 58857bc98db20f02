package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

const PlaceholderText = "N/A"

type Vehicle struct {
	ID           string `json:"id"`
	LicensePlate string `json:"licensePlate"`
	Brand        string `json:"brand"`
	Model        string `json:"model"`
	Color        string `json:"color,omitempty"`
	Year         int    `json:"year,omitempty"`
	FuelType     string `json:"fuelType,omitempty"`
}

// VehicleData is the denormalized copy of a vehicle kept on a preparation.
type VehicleData struct {
	LicensePlate string `json:"licensePlate" bson:"licensePlate"`
	Brand        string `json:"brand" bson:"brand"`
	Model        string `json:"model" bson:"model"`
	Color        string `json:"color,omitempty" bson:"color,omitempty"`
	Year         int    `json:"year,omitempty" bson:"year,omitempty"`
	FuelType     string `json:"fuelType,omitempty" bson:"fuelType,omitempty"`
}

func (d *VehicleData) Usable() bool {
	return d != nil && strings.TrimSpace(d.LicensePlate) != "" && d.LicensePlate != PlaceholderText
}

func PlaceholderVehicleData() VehicleData {
	return VehicleData{
		LicensePlate: PlaceholderText,
		Brand:        PlaceholderText,
		Model:        PlaceholderText,
	}
}

func (v Vehicle) Snapshot() VehicleData {
	return VehicleData{
		LicensePlate: v.LicensePlate,
		Brand:        v.Brand,
		Model:        v.Model,
		Color:        v.Color,
		Year:         v.Year,
		FuelType:     v.FuelType,
	}
}

// VehicleRef is the backend's vehicle field: either a bare id or a populated object.
type VehicleRef struct {
	ID      string
	Vehicle *Vehicle
}

func (r *VehicleRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = VehicleRef{}
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = VehicleRef{ID: id}
		return nil
	}
	var v Vehicle
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = VehicleRef{ID: v.ID, Vehicle: &v}
	return nil
}

func (r VehicleRef) MarshalJSON() ([]byte, error) {
	if r.Vehicle != nil {
		return json.Marshal(r.Vehicle)
	}
	if r.ID == "" {
		return []byte("null"), nil
	}
	return json.Marshal(r.ID)
}

type VehicleSource string

const (
	VehicleSourceLive        VehicleSource = "live"
	VehicleSourceSnapshot    VehicleSource = "snapshot"
	VehicleSourceEmbedded    VehicleSource = "embedded"
	VehicleSourcePlaceholder VehicleSource = "placeholder"
)

type VehicleView struct {
	ID           string        `json:"id,omitempty"`
	LicensePlate string        `json:"licensePlate"`
	Brand        string        `json:"brand"`
	Model        string        `json:"model"`
	Color        string        `json:"color,omitempty"`
	Year         int           `json:"year,omitempty"`
	FuelType     string        `json:"fuelType,omitempty"`
	Source       VehicleSource `json:"source"`
}

// MergeVehicle picks the best available projection of a vehicle: the live record,
// then the locally cached snapshot, then the preparation's embedded copy, then placeholders.
func MergeVehicle(id string, live *Vehicle, snapshot, embedded *VehicleData) VehicleView {
	switch {
	case live != nil:
		return viewFrom(live.ID, live.Snapshot(), VehicleSourceLive)
	case snapshot.Usable():
		return viewFrom(id, *snapshot, VehicleSourceSnapshot)
	case embedded.Usable():
		return viewFrom(id, *embedded, VehicleSourceEmbedded)
	default:
		return viewFrom(id, PlaceholderVehicleData(), VehicleSourcePlaceholder)
	}
}

func viewFrom(id string, d VehicleData, source VehicleSource) VehicleView {
	view := VehicleView{
		ID:           id,
		LicensePlate: orPlaceholder(d.LicensePlate),
		Brand:        orPlaceholder(d.Brand),
		Model:        orPlaceholder(d.Model),
		Color:        d.Color,
		Year:         d.Year,
		FuelType:     d.FuelType,
		Source:       source,
	}
	return view
}

func orPlaceholder(value string) string {
	if strings.TrimSpace(value) == "" {
		return PlaceholderText
	}
	return value
}
