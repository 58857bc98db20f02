// Package timefmt holds the time arithmetic and display formats shared by the
// preparation and time-clock views.
package timefmt

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidTime = errors.New("invalid time format")

// MinutesBetween returns whole minutes from from to to, truncated toward zero.
func MinutesBetween(from, to time.Time) int {
	return int(to.Sub(from) / time.Minute)
}

// FormatMinutes renders a duration as "45min" or "2h05". Negative values render as zero.
func FormatMinutes(minutes int) string {
	if minutes <= 0 {
		return "0min"
	}
	if minutes < 60 {
		return fmt.Sprintf("%dmin", minutes)
	}
	return fmt.Sprintf("%dh%02d", minutes/60, minutes%60)
}

func FormatClock(t time.Time) string {
	return t.Format("15:04")
}

func FormatClockPtr(t *time.Time) string {
	if t == nil {
		return "--:--"
	}
	return FormatClock(*t)
}

func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ParseClock places a wall-clock "HH:MM" value on day, in day's location.
func ParseClock(day time.Time, value string) (time.Time, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, ErrInvalidTime
	}
	return time.Date(day.Year(), day.Month(), day.Day(), parsed.Hour(), parsed.Minute(), 0, 0, day.Location()), nil
}

// ParseTimestampIn accepts RFC3339 values and zone-less dates or date-times, the
// latter read in loc.
func ParseTimestampIn(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrInvalidTime
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	localLayouts := []string{
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
	}
	for _, layout := range localLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, ErrInvalidTime
}
