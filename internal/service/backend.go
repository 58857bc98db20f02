package service

import (
	"context"

	"prep-service/internal/model"
	"prep-service/internal/repository"
)

type PreparationBackend interface {
	ActivePreparation(ctx context.Context, token string) (*model.Preparation, error)
	GetPreparation(ctx context.Context, token, id string) (*model.Preparation, error)
	StartPreparation(ctx context.Context, token string, input model.StartPreparationInput) (*model.Preparation, error)
	CompleteStep(ctx context.Context, token, preparationID string, sub model.StepSubmission) (*model.Preparation, error)
	CompletePreparation(ctx context.Context, token, preparationID, notes string) (*model.Preparation, error)
	CancelPreparation(ctx context.Context, token, preparationID, reason string) (*model.Preparation, error)
	UpdateSteps(ctx context.Context, token, preparationID string, edit model.AdminEditRequest) (*model.Preparation, error)
}

type VehicleBackend interface {
	GetVehicle(ctx context.Context, token, vehicleID string) (*model.Vehicle, error)
}

type TimesheetBackend interface {
	TodayClockEvents(ctx context.Context, token, agencyID string) (*model.ClockEvents, error)
	SubmitClockEvent(ctx context.Context, token string, input model.ClockEventInput) (*model.ClockEvents, error)
	TodaySchedule(ctx context.Context, token, agencyID string) (*model.ScheduleEntry, error)
}

type SnapshotStore interface {
	Upsert(ctx context.Context, snapshot *model.VehicleSnapshot) error
	GetByVehicleID(ctx context.Context, vehicleID string) (*model.VehicleSnapshot, error)
	FindByPlate(ctx context.Context, plate string) ([]model.VehicleSnapshot, error)
}

type AuditStore interface {
	Create(ctx context.Context, audit *model.StepEditAudit) error
	List(ctx context.Context, filter repository.StepEditAuditFilter) ([]model.StepEditAudit, error)
}
