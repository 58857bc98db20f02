package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"prep-service/internal/model"
	"prep-service/internal/timeclock"
	"prep-service/internal/timefmt"
)

type TodayView struct {
	Day         model.TimesheetDay   `json:"day"`
	Schedule    *model.ScheduleEntry `json:"schedule"`
	Actions     timeclock.Actions    `json:"actions"`
	WorkedLabel string               `json:"workedLabel"`
	BreakLabel  string               `json:"breakLabel"`
	StartLabel  string               `json:"startLabel"`
	EndLabel    string               `json:"endLabel"`
}

type ClockRequest struct {
	EventType model.ClockEventType
	// CurrentStatus is what the caller last saw. When set, events it does not allow
	// are refused without calling the backend.
	CurrentStatus model.ClockStatus
}

type TimeClockService struct {
	backend    TimesheetBackend
	thresholds timeclock.Thresholds
	loc        *time.Location
	guard      *inflight
	log        zerolog.Logger
	now        func() time.Time
}

// NewTimeClockService reads schedules and builds days in loc, the agencies' zone.
func NewTimeClockService(backend TimesheetBackend, thresholds timeclock.Thresholds, loc *time.Location, log zerolog.Logger) *TimeClockService {
	if loc == nil {
		loc = time.UTC
	}
	return &TimeClockService{
		backend:    backend,
		thresholds: thresholds,
		loc:        loc,
		guard:      &inflight{},
		log:        log,
		now:        time.Now,
	}
}

func (s *TimeClockService) Today(ctx context.Context, session model.Session) (*TodayView, error) {
	if !session.HasAgency() {
		return nil, ErrAgencyRequired
	}

	var (
		events   *model.ClockEvents
		schedule *model.ScheduleEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ev, err := s.backend.TodayClockEvents(gctx, session.Token, session.AgencyID)
		if err != nil {
			return err
		}
		events = ev
		return nil
	})
	g.Go(func() error {
		schedule = s.schedule(gctx, session)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fromBackend(err)
	}

	return s.build(events, schedule), nil
}

// Clock records one event for the selected agency. The backend decides; its refusal
// message is returned as is.
func (s *TimeClockService) Clock(ctx context.Context, session model.Session, req ClockRequest) (*TodayView, error) {
	if !session.HasAgency() {
		return nil, ErrAgencyRequired
	}
	if !req.EventType.Valid() {
		return nil, invalidInput(fmt.Errorf("unknown clock event %q", req.EventType))
	}
	if req.CurrentStatus != "" && !timeclock.EventAllowed(req.CurrentStatus, req.EventType) {
		return nil, invalidInput(ErrActionNotAllowed)
	}

	input := model.ClockEventInput{
		AgencyID:  session.AgencyID,
		EventType: req.EventType,
		Timestamp: s.now(),
	}
	key := actionKey("clock", session.Principal.UserID, session.AgencyID, string(req.EventType))
	events, err := guarded(ctx, s.guard, key, func(ctx context.Context) (*model.ClockEvents, error) {
		return s.backend.SubmitClockEvent(ctx, session.Token, input)
	})
	if err != nil {
		return nil, fromBackend(err)
	}

	s.log.Info().
		Str("user_id", session.Principal.UserID).
		Str("agency_id", session.AgencyID).
		Str("event", string(req.EventType)).
		Msg("clock event recorded")

	return s.build(events, s.schedule(ctx, session)), nil
}

// schedule is best effort: without one the day simply has no arrival variance.
func (s *TimeClockService) schedule(ctx context.Context, session model.Session) *model.ScheduleEntry {
	entry, err := s.backend.TodaySchedule(ctx, session.Token, session.AgencyID)
	if err != nil {
		s.log.Warn().Err(err).Str("agency_id", session.AgencyID).Msg("schedule unavailable")
		return nil
	}
	return entry
}

func (s *TimeClockService) build(events *model.ClockEvents, schedule *model.ScheduleEntry) *TodayView {
	ev := model.ClockEvents{}
	if events != nil {
		ev = *events
	}
	now := s.now().In(s.loc)
	day := timeclock.BuildDay(now, ev, schedule, now, s.thresholds)

	return &TodayView{
		Day:         day,
		Schedule:    schedule,
		Actions:     timeclock.ActionsFor(day.Status),
		WorkedLabel: timefmt.FormatMinutes(day.TotalWorkedMinutes),
		BreakLabel:  timefmt.FormatMinutes(day.BreakDurationMinutes),
		StartLabel:  timefmt.FormatClockPtr(day.StartTime),
		EndLabel:    timefmt.FormatClockPtr(day.EndTime),
	}
}
