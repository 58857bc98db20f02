package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"prep-service/internal/model"
	"prep-service/internal/utils"
)

type VehicleSnapshotRepository struct {
	db *gorm.DB
}

func NewVehicleSnapshotRepository(db *gorm.DB) *VehicleSnapshotRepository {
	return &VehicleSnapshotRepository{db: db}
}

// Upsert stores the latest projection of a vehicle, replacing the previous one for the same vehicle id.
func (r *VehicleSnapshotRepository) Upsert(ctx context.Context, snapshot *model.VehicleSnapshot) error {
	snapshot.PlateKey = utils.NormalizePlate(snapshot.LicensePlate)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "vehicle_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"license_plate", "plate_key", "brand", "model", "color", "year", "fuel_type", "seen_at", "updated_at",
			}),
		}).
		Create(snapshot).Error
}

func (r *VehicleSnapshotRepository) GetByVehicleID(ctx context.Context, vehicleID string) (*model.VehicleSnapshot, error) {
	if vehicleID == "" {
		return nil, nil
	}
	var snapshot model.VehicleSnapshot
	err := r.db.WithContext(ctx).Where("vehicle_id = ?", vehicleID).First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snapshot, nil
}

// FindByPlate returns the most recently seen snapshots whose plate normalizes to the same key.
func (r *VehicleSnapshotRepository) FindByPlate(ctx context.Context, plate string) ([]model.VehicleSnapshot, error) {
	key := utils.NormalizePlate(plate)
	if key == "" {
		return nil, nil
	}
	var snapshots []model.VehicleSnapshot
	if err := r.db.WithContext(ctx).
		Where("plate_key = ?", key).
		Order("seen_at DESC").
		Find(&snapshots).Error; err != nil {
		return nil, err
	}
	return snapshots, nil
}
