package model

import "time"

type ClockStatus string

const (
	ClockStatusNotStarted ClockStatus = "not_started"
	ClockStatusWorking    ClockStatus = "working"
	ClockStatusOnBreak    ClockStatus = "on_break"
	ClockStatusFinished   ClockStatus = "finished"
)

type ClockEventType string

const (
	ClockEventClockIn    ClockEventType = "clock_in"
	ClockEventBreakStart ClockEventType = "break_start"
	ClockEventBreakEnd   ClockEventType = "break_end"
	ClockEventClockOut   ClockEventType = "clock_out"
)

func (t ClockEventType) Valid() bool {
	switch t {
	case ClockEventClockIn, ClockEventBreakStart, ClockEventBreakEnd, ClockEventClockOut:
		return true
	default:
		return false
	}
}

// ClockEvents is one worker's day at one agency. Every event happens at most once.
type ClockEvents struct {
	ClockIn    *time.Time `json:"startTime,omitempty"`
	BreakStart *time.Time `json:"breakStart,omitempty"`
	BreakEnd   *time.Time `json:"breakEnd,omitempty"`
	ClockOut   *time.Time `json:"endTime,omitempty"`
}

// In returns the events expressed in loc.
func (e ClockEvents) In(loc *time.Location) ClockEvents {
	return ClockEvents{
		ClockIn:    timeIn(e.ClockIn, loc),
		BreakStart: timeIn(e.BreakStart, loc),
		BreakEnd:   timeIn(e.BreakEnd, loc),
		ClockOut:   timeIn(e.ClockOut, loc),
	}
}

func timeIn(t *time.Time, loc *time.Location) *time.Time {
	if t == nil {
		return nil
	}
	local := t.In(loc)
	return &local
}

type ClockEventInput struct {
	AgencyID  string         `json:"agencyId"`
	EventType ClockEventType `json:"eventType"`
	Timestamp time.Time      `json:"timestamp"`
}

// ScheduleEntry times are wall-clock "HH:MM" values on Date.
type ScheduleEntry struct {
	Date       string `json:"date"`
	AgencyID   string `json:"agency,omitempty"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
	BreakStart string `json:"breakStart,omitempty"`
	BreakEnd   string `json:"breakEnd,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

type VarianceStatus string

const (
	VarianceOnTime      VarianceStatus = "on_time"
	VarianceSlightDelay VarianceStatus = "slight_delay"
	VarianceLate        VarianceStatus = "late"
)

type Variance struct {
	Status  VarianceStatus `json:"status"`
	Minutes int            `json:"minutes"`
	Label   string         `json:"label"`
	Early   bool           `json:"early,omitempty"`
}

type TimesheetDay struct {
	Date                 time.Time   `json:"date"`
	StartTime            *time.Time  `json:"startTime,omitempty"`
	EndTime              *time.Time  `json:"endTime,omitempty"`
	BreakStart           *time.Time  `json:"breakStart,omitempty"`
	BreakEnd             *time.Time  `json:"breakEnd,omitempty"`
	Status               ClockStatus `json:"status"`
	TotalWorkedMinutes   int         `json:"totalWorkedMinutes"`
	BreakDurationMinutes int         `json:"breakDurationMinutes"`
	Variance             *Variance   `json:"variance"`
}
