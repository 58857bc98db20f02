package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"prep-service/internal/client"
	"prep-service/internal/model"
	"prep-service/internal/utils"
)

// VehicleService resolves the vehicle shown on a preparation. It never fails: a
// vehicle that cannot be found degrades to the cached snapshot, the preparation's
// own copy, or placeholders.
type VehicleService struct {
	backend   VehicleBackend
	snapshots SnapshotStore
	log       zerolog.Logger
	now       func() time.Time
}

func NewVehicleService(backend VehicleBackend, snapshots SnapshotStore, log zerolog.Logger) *VehicleService {
	return &VehicleService{
		backend:   backend,
		snapshots: snapshots,
		log:       log,
		now:       time.Now,
	}
}

func (s *VehicleService) Resolve(ctx context.Context, session model.Session, p model.Preparation) model.VehicleView {
	id := p.Vehicle.ID
	live := p.Vehicle.Vehicle

	if live == nil && id != "" && s.backend != nil {
		v, err := s.backend.GetVehicle(ctx, session.Token, id)
		switch {
		case err == nil:
			live = v
		case client.IsKind(err, client.KindNotFound):
			s.log.Debug().Str("preparation_id", p.ID).Str("vehicle_id", id).Msg("vehicle reference is dangling")
		default:
			s.log.Warn().Err(err).Str("vehicle_id", id).Msg("vehicle lookup failed")
		}
	}

	if live != nil {
		v := *live
		if v.ID == "" {
			v.ID = id
		}
		s.remember(ctx, v)
		return model.MergeVehicle(id, &v, nil, nil)
	}

	snapshot := s.stored(ctx, id, p.VehicleData)
	return model.MergeVehicle(id, nil, snapshot, p.VehicleData)
}

// stored looks up the local snapshot for a vehicle id, then for the plate the
// preparation recorded when the id is unknown locally.
func (s *VehicleService) stored(ctx context.Context, id string, embedded *model.VehicleData) *model.VehicleData {
	if s.snapshots == nil {
		return nil
	}
	if id != "" {
		rec, err := s.snapshots.GetByVehicleID(ctx, id)
		if err != nil {
			s.log.Warn().Err(err).Str("vehicle_id", id).Msg("vehicle snapshot lookup failed")
		} else if rec != nil {
			data := rec.Data()
			return &data
		}
	}

	if embedded == nil || embedded.LicensePlate == "" {
		return nil
	}
	recs, err := s.snapshots.FindByPlate(ctx, embedded.LicensePlate)
	if err != nil {
		s.log.Warn().Err(err).Str("vehicle_id", id).Msg("vehicle snapshot plate lookup failed")
		return nil
	}
	for _, rec := range recs {
		if utils.SamePlate(rec.LicensePlate, embedded.LicensePlate) {
			data := rec.Data()
			return &data
		}
	}
	return nil
}

func (s *VehicleService) remember(ctx context.Context, v model.Vehicle) {
	data := v.Snapshot()
	if s.snapshots == nil || v.ID == "" || !data.Usable() {
		return
	}
	if err := s.snapshots.Upsert(ctx, model.NewVehicleSnapshot(v, s.now())); err != nil {
		s.log.Warn().Err(err).Str("vehicle_id", v.ID).Msg("failed to store vehicle snapshot")
	}
}
