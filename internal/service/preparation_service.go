package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"prep-service/internal/catalog"
	"prep-service/internal/model"
	"prep-service/internal/preparation"
	"prep-service/internal/repository"
	"prep-service/internal/timefmt"
)

const stepEditPageSize = 100

type PreparationView struct {
	Preparation   model.Preparation         `json:"preparation"`
	Vehicle       model.VehicleView         `json:"vehicle"`
	Steps         []preparation.DisplayStep `json:"steps"`
	Stats         preparation.Stats         `json:"stats"`
	DurationLabel string                    `json:"durationLabel"`
}

type StepUpload struct {
	Step      model.StepKind
	Notes     string
	PhotoName string
	Photo     io.ReadCloser
}

type CaptureInfo struct {
	ID            string         `json:"id"`
	PreparationID string         `json:"preparationId"`
	Step          model.StepKind `json:"step"`
	OpenedAt      time.Time      `json:"openedAt"`
}

type PreparationService struct {
	backend       PreparationBackend
	vehicles      *VehicleService
	audits        AuditStore
	catalog       *catalog.Catalog
	captures      *preparation.CaptureTracker
	guard         *inflight
	maxPhotoBytes int64
	log           zerolog.Logger
	now           func() time.Time
}

func NewPreparationService(
	backend PreparationBackend,
	vehicles *VehicleService,
	audits AuditStore,
	steps *catalog.Catalog,
	maxPhotoBytes int64,
	log zerolog.Logger,
) *PreparationService {
	return &PreparationService{
		backend:       backend,
		vehicles:      vehicles,
		audits:        audits,
		catalog:       steps,
		captures:      preparation.NewCaptureTracker(),
		guard:         &inflight{},
		maxPhotoBytes: maxPhotoBytes,
		log:           log,
		now:           time.Now,
	}
}

func (s *PreparationService) StepDefinitions() []model.StepDefinition {
	return s.catalog.Steps()
}

// Active returns nil without error when the user has no preparation in progress.
func (s *PreparationService) Active(ctx context.Context, session model.Session) (*PreparationView, error) {
	p, err := s.backend.ActivePreparation(ctx, session.Token)
	if err != nil {
		return nil, fromBackend(err)
	}
	if p == nil || preparation.IsTerminal(p.Status) {
		return nil, nil
	}
	return s.view(ctx, session, *p), nil
}

func (s *PreparationService) Get(ctx context.Context, session model.Session, id string) (*PreparationView, error) {
	p, err := s.fetch(ctx, session, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, session, *p), nil
}

func (s *PreparationService) Start(ctx context.Context, session model.Session, vehicleID, notes string) (*PreparationView, error) {
	if !session.HasAgency() {
		return nil, ErrAgencyRequired
	}
	if !session.Principal.HasAgency(session.AgencyID) {
		return nil, ErrPermissionDenied
	}
	vehicleID = strings.TrimSpace(vehicleID)
	if vehicleID == "" {
		return nil, invalidInput(errors.New("a vehicle is required"))
	}

	input := model.StartPreparationInput{
		VehicleID: vehicleID,
		AgencyID:  session.AgencyID,
		Notes:     strings.TrimSpace(notes),
	}
	key := actionKey("start", session.Principal.UserID, vehicleID)
	p, err := guarded(ctx, s.guard, key, func(ctx context.Context) (*model.Preparation, error) {
		return s.backend.StartPreparation(ctx, session.Token, input)
	})
	if err != nil {
		return nil, fromBackend(err)
	}
	return s.afterMutation(ctx, session, p, "")
}

// OpenCapture starts a photo capture for a step, releasing any capture the user still had open.
func (s *PreparationService) OpenCapture(ctx context.Context, session model.Session, preparationID string, step model.StepKind) (*CaptureInfo, error) {
	p, err := s.fetch(ctx, session, preparationID)
	if err != nil {
		return nil, err
	}
	if err := preparation.ValidateStepCompletion(*p, s.catalog, step, true); err != nil {
		return nil, invalidInput(err)
	}

	c := s.captures.Open(session.Principal.UserID, p.ID, step, s.now())
	return &CaptureInfo{
		ID:            c.ID.String(),
		PreparationID: c.PreparationID,
		Step:          c.Step,
		OpenedAt:      c.OpenedAt,
	}, nil
}

func (s *PreparationService) CancelCapture(session model.Session) error {
	if err := s.captures.Cancel(session.Principal.UserID); err != nil {
		if errors.Is(err, preparation.ErrNoCapture) {
			return &classified{class: ErrNotFound, err: err}
		}
		return err
	}
	return nil
}

// CompleteStep uploads the evidence for one step. The photo is closed on every path.
// The returned view reflects the backend's record; nothing is marked complete locally.
func (s *PreparationService) CompleteStep(ctx context.Context, session model.Session, preparationID string, upload StepUpload) (*PreparationView, error) {
	if upload.Photo == nil {
		return nil, invalidInput(preparation.ErrPhotoRequired)
	}
	if !s.catalog.Contains(upload.Step) {
		_ = upload.Photo.Close()
		return nil, invalidInput(preparation.ErrUnknownStep)
	}
	userID := session.Principal.UserID

	data, capture, err := s.takePhoto(userID, preparationID, upload)
	if capture != nil {
		defer capture.Release()
	}
	if err != nil {
		return nil, err
	}

	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return nil, invalidInput(fmt.Errorf("the photo must be an image, got %s", mime.String()))
	}

	p, err := s.fetch(ctx, session, preparationID)
	if err != nil {
		return nil, err
	}
	if err := preparation.ValidateStepCompletion(*p, s.catalog, upload.Step, true); err != nil {
		return nil, invalidInput(err)
	}

	sub := model.StepSubmission{
		Step:          upload.Step,
		Notes:         strings.TrimSpace(upload.Notes),
		PhotoName:     photoName(upload.PhotoName, upload.Step, mime.Extension()),
		PhotoMimeType: mime.String(),
		Photo:         data,
	}
	key := actionKey("step", userID, preparationID, string(upload.Step))
	updated, err := guarded(ctx, s.guard, key, func(ctx context.Context) (*model.Preparation, error) {
		return s.backend.CompleteStep(ctx, session.Token, preparationID, sub)
	})
	if err != nil {
		return nil, fromBackend(err)
	}

	s.log.Debug().
		Str("preparation_id", preparationID).
		Str("step", string(upload.Step)).
		Str("size", humanize.IBytes(uint64(len(data)))).
		Msg("step evidence uploaded")

	return s.afterMutation(ctx, session, updated, preparationID)
}

// takePhoto reads the upload through the user's capture for the step. When a concurrent
// upload of the same step already holds that capture, the photo is read on its own.
// The returned capture, if any, is the caller's to release.
func (s *PreparationService) takePhoto(userID, preparationID string, upload StepUpload) ([]byte, *preparation.Capture, error) {
	capture := s.captures.Acquire(userID, preparationID, upload.Step, s.now())

	var (
		data  []byte
		owned *preparation.Capture
	)
	err := capture.Attach(upload.Photo)
	switch {
	case err == nil:
		owned = capture
		data, err = capture.ReadPhoto(s.maxPhotoBytes)
	case errors.Is(err, preparation.ErrPhotoAttached), errors.Is(err, preparation.ErrCaptureReleased):
		data, err = preparation.ReadUpload(upload.Photo, s.maxPhotoBytes)
	default:
		_ = upload.Photo.Close()
	}

	switch {
	case err == nil:
		return data, owned, nil
	case errors.Is(err, preparation.ErrPhotoTooLarge):
		return nil, owned, invalidInput(fmt.Errorf("%w: the limit is %s", err, humanize.IBytes(uint64(s.maxPhotoBytes))))
	case errors.Is(err, preparation.ErrPhotoRequired):
		return nil, owned, invalidInput(err)
	case errors.Is(err, preparation.ErrCaptureReleased):
		return nil, owned, conflict(err)
	default:
		return nil, owned, err
	}
}

func (s *PreparationService) Complete(ctx context.Context, session model.Session, preparationID, notes string) (*PreparationView, error) {
	p, err := s.fetch(ctx, session, preparationID)
	if err != nil {
		return nil, err
	}
	if err := preparation.ValidateCompletion(*p); err != nil {
		return nil, invalidInput(err)
	}

	key := actionKey("complete", session.Principal.UserID, preparationID)
	updated, err := guarded(ctx, s.guard, key, func(ctx context.Context) (*model.Preparation, error) {
		return s.backend.CompletePreparation(ctx, session.Token, preparationID, strings.TrimSpace(notes))
	})
	if err != nil {
		return nil, fromBackend(err)
	}
	s.releaseCaptureFor(session.Principal.UserID, preparationID)
	return s.afterMutation(ctx, session, updated, preparationID)
}

func (s *PreparationService) Cancel(ctx context.Context, session model.Session, preparationID, reason string) (*PreparationView, error) {
	p, err := s.fetch(ctx, session, preparationID)
	if err != nil {
		return nil, err
	}
	if err := preparation.ValidateCancellation(*p, reason); err != nil {
		return nil, invalidInput(err)
	}

	key := actionKey("cancel", session.Principal.UserID, preparationID)
	updated, err := guarded(ctx, s.guard, key, func(ctx context.Context) (*model.Preparation, error) {
		return s.backend.CancelPreparation(ctx, session.Token, preparationID, strings.TrimSpace(reason))
	})
	if err != nil {
		return nil, fromBackend(err)
	}
	s.releaseCaptureFor(session.Principal.UserID, preparationID)
	return s.afterMutation(ctx, session, updated, preparationID)
}

// EditSteps applies an administrator's correction. A refused plan never reaches the backend.
func (s *PreparationService) EditSteps(ctx context.Context, session model.Session, preparationID string, req model.AdminEditRequest) (*PreparationView, error) {
	if !session.Principal.IsAdmin() {
		return nil, ErrPermissionDenied
	}

	current, err := s.fetch(ctx, session, preparationID)
	if err != nil {
		return nil, err
	}

	planned, changes, err := preparation.PlanAdminEdit(*current, req, s.catalog)
	if err != nil {
		if errors.Is(err, preparation.ErrStepHasPhotos) {
			return nil, conflict(err)
		}
		return nil, invalidInput(err)
	}

	key := actionKey("edit", session.Principal.UserID, preparationID)
	updated, err := guarded(ctx, s.guard, key, func(ctx context.Context) (*model.Preparation, error) {
		return s.backend.UpdateSteps(ctx, session.Token, preparationID, planned)
	})
	if err != nil {
		return nil, fromBackend(err)
	}

	s.journal(ctx, session, preparationID, planned.AdminNotes, changes)
	return s.afterMutation(ctx, session, updated, preparationID)
}

// StepEdits returns the journal of administrator corrections on a preparation, newest first.
func (s *PreparationService) StepEdits(ctx context.Context, session model.Session, preparationID string) ([]model.StepEditAudit, error) {
	if !session.Principal.IsAdmin() {
		return nil, ErrPermissionDenied
	}
	preparationID = strings.TrimSpace(preparationID)
	if preparationID == "" {
		return nil, invalidInput(errors.New("a preparation id is required"))
	}
	if s.audits == nil {
		return []model.StepEditAudit{}, nil
	}
	audits, err := s.audits.List(ctx, repository.StepEditAuditFilter{PreparationID: &preparationID, Limit: stepEditPageSize})
	if err != nil {
		return nil, fmt.Errorf("list step edits: %w", err)
	}
	return audits, nil
}

// Close releases every open capture.
func (s *PreparationService) Close() {
	s.captures.CloseAll()
}

func (s *PreparationService) fetch(ctx context.Context, session model.Session, id string) (*model.Preparation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, invalidInput(errors.New("a preparation id is required"))
	}
	p, err := s.backend.GetPreparation(ctx, session.Token, id)
	if err != nil {
		return nil, fromBackend(err)
	}
	if session.Principal.IsPreparer() && p.UserID != "" && p.UserID != session.Principal.UserID {
		return nil, ErrPermissionDenied
	}
	return p, nil
}

// afterMutation builds the view from the record the backend returned, falling back
// to a fresh read when the backend answered without one.
func (s *PreparationService) afterMutation(ctx context.Context, session model.Session, p *model.Preparation, id string) (*PreparationView, error) {
	if p == nil {
		if id == "" {
			return nil, &classified{class: ErrBackendUnavailable, err: errors.New("backend returned no preparation")}
		}
		fresh, err := s.fetch(ctx, session, id)
		if err != nil {
			return nil, err
		}
		p = fresh
	}
	return s.view(ctx, session, *p), nil
}

func (s *PreparationService) view(ctx context.Context, session model.Session, p model.Preparation) *PreparationView {
	stats := preparation.ComputeStats(p, s.catalog, s.now())
	return &PreparationView{
		Preparation:   p,
		Vehicle:       s.vehicles.Resolve(ctx, session, p),
		Steps:         preparation.AdaptSteps(p.Steps, s.catalog),
		Stats:         stats,
		DurationLabel: timefmt.FormatMinutes(stats.CurrentDuration),
	}
}

func (s *PreparationService) releaseCaptureFor(userID, preparationID string) {
	if c, ok := s.captures.Current(userID); ok && c.PreparationID == preparationID {
		c.Release()
	}
}

func (s *PreparationService) journal(ctx context.Context, session model.Session, preparationID, notes string, changes []preparation.Change) {
	if s.audits == nil {
		return
	}
	raw, err := json.Marshal(changes)
	if err != nil {
		s.log.Error().Err(err).Str("preparation_id", preparationID).Msg("failed to encode step edit changes")
		return
	}
	audit := &model.StepEditAudit{
		PreparationID: preparationID,
		AdminUserID:   session.Principal.UserID,
		AdminNotes:    notes,
		Changes:       datatypes.JSON(raw),
	}
	if err := s.audits.Create(ctx, audit); err != nil {
		s.log.Error().Err(err).Str("preparation_id", preparationID).Msg("failed to journal step edit")
	}
}

func photoName(name string, step model.StepKind, ext string) string {
	name = strings.TrimSpace(name)
	if name != "" {
		return name
	}
	return string(step) + ext
}
