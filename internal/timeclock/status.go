// Package timeclock derives a worker's clock status, worked time and punctuality
// from the day's clock events. Everything here is pure: callers pass "now".
package timeclock

import "prep-service/internal/model"

// DeriveStatus applies a strict priority: a later-stage event always wins,
// even when earlier events are missing or inconsistent.
func DeriveStatus(ev model.ClockEvents) model.ClockStatus {
	switch {
	case ev.ClockOut != nil:
		return model.ClockStatusFinished
	case ev.BreakStart != nil && ev.BreakEnd == nil:
		return model.ClockStatusOnBreak
	case ev.ClockIn != nil:
		return model.ClockStatusWorking
	default:
		return model.ClockStatusNotStarted
	}
}

type Actions struct {
	CanClockIn    bool `json:"canClockIn"`
	CanClockOut   bool `json:"canClockOut"`
	CanStartBreak bool `json:"canStartBreak"`
	CanEndBreak   bool `json:"canEndBreak"`
}

func ActionsFor(status model.ClockStatus) Actions {
	return Actions{
		CanClockIn:    status == model.ClockStatusNotStarted,
		CanClockOut:   status == model.ClockStatusWorking || status == model.ClockStatusOnBreak,
		CanStartBreak: status == model.ClockStatusWorking,
		CanEndBreak:   status == model.ClockStatusOnBreak,
	}
}

func (a Actions) Allows(event model.ClockEventType) bool {
	switch event {
	case model.ClockEventClockIn:
		return a.CanClockIn
	case model.ClockEventClockOut:
		return a.CanClockOut
	case model.ClockEventBreakStart:
		return a.CanStartBreak
	case model.ClockEventBreakEnd:
		return a.CanEndBreak
	default:
		return false
	}
}

func EventAllowed(status model.ClockStatus, event model.ClockEventType) bool {
	return ActionsFor(status).Allows(event)
}
