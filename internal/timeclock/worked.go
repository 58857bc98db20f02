package timeclock

import (
	"time"

	"prep-service/internal/model"
)

// WorkedMinutes is (clock-out or now) minus clock-in minus break time.
// An open break keeps growing until clock-out or now, so worked time freezes during it.
func WorkedMinutes(ev model.ClockEvents, now time.Time) int {
	if ev.ClockIn == nil {
		return 0
	}
	end := dayEnd(ev, now)
	if !end.After(*ev.ClockIn) {
		return 0
	}
	worked := end.Sub(*ev.ClockIn) - breakDuration(ev, now)
	if worked <= 0 {
		return 0
	}
	return int(worked / time.Minute)
}

func BreakMinutes(ev model.ClockEvents, now time.Time) int {
	return int(breakDuration(ev, now) / time.Minute)
}

func dayEnd(ev model.ClockEvents, now time.Time) time.Time {
	if ev.ClockOut != nil {
		return *ev.ClockOut
	}
	return now
}

// breakDuration clips the break to the worked interval.
func breakDuration(ev model.ClockEvents, now time.Time) time.Duration {
	if ev.BreakStart == nil {
		return 0
	}
	limit := dayEnd(ev, now)

	start := *ev.BreakStart
	if ev.ClockIn != nil && start.Before(*ev.ClockIn) {
		start = *ev.ClockIn
	}
	end := limit
	if ev.BreakEnd != nil && ev.BreakEnd.Before(limit) {
		end = *ev.BreakEnd
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}
