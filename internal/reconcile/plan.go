// Package reconcile repairs preparations whose vehicle reference no longer
// resolves. Decide and Plan are pure; Runner applies them to the backend's MongoDB.
package reconcile

import (
	"sort"

	"prep-service/internal/model"
	"prep-service/internal/utils"
)

type Action string

const (
	ActionNone        Action = "none"
	ActionRefresh     Action = "refresh_snapshot"
	ActionRepoint     Action = "repoint"
	ActionPlaceholder Action = "placeholder"
	ActionKeep        Action = "keep_snapshot"
)

type PreparationRef struct {
	ID          string
	VehicleID   string
	VehicleData *model.VehicleData
}

type Decision struct {
	PreparationID string
	VehicleID     string
	Action        Action
	NewVehicleID  string
	VehicleData   *model.VehicleData
	Reason        string
}

// Writes reports whether applying d changes the stored preparation.
func (d Decision) Writes() bool {
	switch d.Action {
	case ActionRefresh, ActionRepoint, ActionPlaceholder:
		return true
	default:
		return false
	}
}

type Inventory struct {
	byID    map[string]model.Vehicle
	byPlate map[string][]model.Vehicle
}

func NewInventory(vehicles []model.Vehicle) *Inventory {
	inv := &Inventory{
		byID:    make(map[string]model.Vehicle, len(vehicles)),
		byPlate: make(map[string][]model.Vehicle, len(vehicles)),
	}
	for _, v := range vehicles {
		if v.ID == "" {
			continue
		}
		inv.byID[v.ID] = v
		if key := utils.NormalizePlate(v.LicensePlate); key != "" {
			inv.byPlate[key] = append(inv.byPlate[key], v)
		}
	}
	for key := range inv.byPlate {
		sort.Slice(inv.byPlate[key], func(i, j int) bool {
			return inv.byPlate[key][i].ID < inv.byPlate[key][j].ID
		})
	}
	return inv
}

func (inv *Inventory) Len() int {
	return len(inv.byID)
}

func (inv *Inventory) Get(id string) (model.Vehicle, bool) {
	v, ok := inv.byID[id]
	return v, ok
}

func (inv *Inventory) ByPlate(plate string) []model.Vehicle {
	return inv.byPlate[utils.NormalizePlate(plate)]
}

// Decide picks the repair for one preparation:
// an existing vehicle refreshes a drifted snapshot; a dangling reference is
// re-pointed to the single vehicle carrying the snapshot's plate, or keeps its
// reference with a usable snapshot ("N/A" where nothing is known).
func Decide(p PreparationRef, inv *Inventory) Decision {
	d := Decision{PreparationID: p.ID, VehicleID: p.VehicleID, Action: ActionNone}

	if v, ok := inv.Get(p.VehicleID); ok {
		fresh := v.Snapshot()
		if p.VehicleData != nil && *p.VehicleData == fresh {
			return d
		}
		d.Action = ActionRefresh
		d.VehicleData = &fresh
		d.Reason = "snapshot differs from vehicle"
		return d
	}

	if p.VehicleData.Usable() {
		var candidates []model.Vehicle
		for _, v := range inv.ByPlate(p.VehicleData.LicensePlate) {
			if utils.SamePlate(v.LicensePlate, p.VehicleData.LicensePlate) {
				candidates = append(candidates, v)
			}
		}
		switch len(candidates) {
		case 1:
			fresh := candidates[0].Snapshot()
			d.Action = ActionRepoint
			d.NewVehicleID = candidates[0].ID
			d.VehicleData = &fresh
			d.Reason = "matched by license plate"
		case 0:
			d.Action = ActionKeep
			d.Reason = "no vehicle with this plate"
		default:
			d.Action = ActionKeep
			d.Reason = "several vehicles share this plate"
		}
		return d
	}

	filled := fillPlaceholders(p.VehicleData)
	d.Action = ActionPlaceholder
	d.VehicleData = &filled
	d.Reason = "vehicle missing and no usable snapshot"
	return d
}

func Plan(preps []PreparationRef, inv *Inventory) []Decision {
	decisions := make([]Decision, 0, len(preps))
	for _, p := range preps {
		decisions = append(decisions, Decide(p, inv))
	}
	return decisions
}

type Summary struct {
	Scanned      int `json:"scanned"`
	Refreshed    int `json:"refreshed"`
	Repointed    int `json:"repointed"`
	Placeholders int `json:"placeholders"`
	Kept         int `json:"kept"`
	Untouched    int `json:"untouched"`
}

func (s *Summary) Add(d Decision) {
	s.Scanned++
	switch d.Action {
	case ActionRefresh:
		s.Refreshed++
	case ActionRepoint:
		s.Repointed++
	case ActionPlaceholder:
		s.Placeholders++
	case ActionKeep:
		s.Kept++
	default:
		s.Untouched++
	}
}

func Summarize(decisions []Decision) Summary {
	var s Summary
	for _, d := range decisions {
		s.Add(d)
	}
	return s
}

func fillPlaceholders(existing *model.VehicleData) model.VehicleData {
	out := model.PlaceholderVehicleData()
	if existing == nil {
		return out
	}
	out.Color = existing.Color
	out.Year = existing.Year
	out.FuelType = existing.FuelType
	if existing.Brand != "" {
		out.Brand = existing.Brand
	}
	if existing.Model != "" {
		out.Model = existing.Model
	}
	return out
}
