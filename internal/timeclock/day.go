package timeclock

import (
	"time"

	"prep-service/internal/model"
	"prep-service/internal/timefmt"
)

// BuildDay assembles the timesheet row for one worker and day. Arrival variance is
// measured against the schedule start when a schedule is known. date's location is
// the agency's: schedule wall-clock times are read there and events are shown there.
func BuildDay(date time.Time, ev model.ClockEvents, schedule *model.ScheduleEntry, now time.Time, th Thresholds) model.TimesheetDay {
	ev = ev.In(date.Location())
	day := model.TimesheetDay{
		Date:                 timefmt.StartOfDay(date),
		StartTime:            ev.ClockIn,
		EndTime:              ev.ClockOut,
		BreakStart:           ev.BreakStart,
		BreakEnd:             ev.BreakEnd,
		Status:               DeriveStatus(ev),
		TotalWorkedMinutes:   WorkedMinutes(ev, now),
		BreakDurationMinutes: BreakMinutes(ev, now),
	}

	if scheduled := ScheduledStart(date, schedule); scheduled != nil {
		day.Variance = ComputeVariance(scheduled, ev.ClockIn, th)
	}
	return day
}

// ScheduledStart places the schedule's start time on the schedule's own date when it
// has one, otherwise on date.
func ScheduledStart(date time.Time, schedule *model.ScheduleEntry) *time.Time {
	if schedule == nil || schedule.StartTime == "" {
		return nil
	}
	if schedule.Date != "" {
		if d, err := timefmt.ParseTimestampIn(schedule.Date, date.Location()); err == nil {
			date = d.In(date.Location())
		}
	}
	start, err := timefmt.ParseClock(date, schedule.StartTime)
	if err != nil {
		return nil
	}
	return &start
}
