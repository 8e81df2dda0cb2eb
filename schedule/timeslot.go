package schedule

import (
	"fmt"
	"time"
)

// JST is the civil timezone all rule times are expressed in, regardless of the
// server timezone. Japan has no daylight saving, so the offset is a constant
// nine hours.
var JST = time.FixedZone("JST", 9*60*60)

// ParseTimeOfDay parses a zero-padded "HH:mm" wall-clock time.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	if len(s) != len("15:04") {
		return 0, 0, fmt.Errorf("invalid time of day %q: expected zero-padded HH:mm", s)
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q: expected zero-padded HH:mm", s)
	}
	return t.Hour(), t.Minute(), nil
}

// MinutesOfDay converts a "HH:mm" time to minutes since midnight.
func MinutesOfDay(s string) (int, error) {
	hour, minute, err := ParseTimeOfDay(s)
	if err != nil {
		return 0, err
	}
	return hour*60 + minute, nil
}

// Occurrences computes the concrete UTC instants a weekly rule produces within
// the horizon. Day 0 is the current JST calendar date; for every candidate day
// whose JST weekday is in daysOfWeek, the instant is timeOfDay on that JST
// date. An instant is kept only if it is strictly after now, at or before
// now+horizonDays, and strictly after the watermark when one is set. Re-running
// with an advanced watermark therefore never regenerates an existing slot.
func Occurrences(daysOfWeek []int, timeOfDay string, lastScheduledAt *time.Time, now time.Time, horizonDays int) ([]time.Time, error) {
	hour, minute, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return nil, err
	}

	days := make(map[time.Weekday]bool, len(daysOfWeek))
	for _, d := range daysOfWeek {
		if d < 0 || d > 6 {
			return nil, fmt.Errorf("day of week out of range: %d", d)
		}
		days[time.Weekday(d)] = true
	}

	horizonEnd := now.Add(time.Duration(horizonDays) * 24 * time.Hour)
	today := now.In(JST)

	instants := make([]time.Time, 0, horizonDays+1)
	for offset := 0; offset <= horizonDays; offset++ {
		day := today.AddDate(0, 0, offset)
		if !days[day.Weekday()] {
			continue
		}
		occ := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, JST).UTC()
		if !occ.After(now) {
			continue
		}
		if occ.After(horizonEnd) {
			continue
		}
		if lastScheduledAt != nil && !occ.After(*lastScheduledAt) {
			continue
		}
		instants = append(instants, occ)
	}
	return instants, nil
}
