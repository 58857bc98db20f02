package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"prep-service/internal/utils"
)

// VehicleSnapshot is the last vehicle projection seen from the backend, keyed by backend vehicle id.
type VehicleSnapshot struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	VehicleID    string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"vehicle_id"`
	LicensePlate string    `gorm:"type:varchar(32);not null" json:"license_plate"`
	PlateKey     string    `gorm:"type:varchar(32);index;not null" json:"plate_key"`
	Brand        string    `gorm:"type:varchar(128)" json:"brand"`
	Model        string    `gorm:"type:varchar(128)" json:"model"`
	Color        string    `gorm:"type:varchar(64)" json:"color"`
	Year         int       `json:"year"`
	FuelType     string    `gorm:"type:varchar(32)" json:"fuel_type"`
	SeenAt       time.Time `gorm:"not null" json:"seen_at"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (VehicleSnapshot) TableName() string {
	return "vehicle_snapshots"
}

func (s *VehicleSnapshot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.PlateKey = utils.NormalizePlate(s.LicensePlate)
	return nil
}

func (s VehicleSnapshot) Data() VehicleData {
	return VehicleData{
		LicensePlate: s.LicensePlate,
		Brand:        s.Brand,
		Model:        s.Model,
		Color:        s.Color,
		Year:         s.Year,
		FuelType:     s.FuelType,
	}
}

func NewVehicleSnapshot(v Vehicle, seenAt time.Time) *VehicleSnapshot {
	return &VehicleSnapshot{
		VehicleID:    v.ID,
		LicensePlate: v.LicensePlate,
		PlateKey:     utils.NormalizePlate(v.LicensePlate),
		Brand:        v.Brand,
		Model:        v.Model,
		Color:        v.Color,
		Year:         v.Year,
		FuelType:     v.FuelType,
		SeenAt:       seenAt,
	}
}
