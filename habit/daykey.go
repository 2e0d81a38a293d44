/*
daykey.go - Canonical calendar keys

PURPOSE:
  A DayKey is a "YYYY-MM-DD" string identifying one calendar day in some
  reference frame. It is the ONLY grouping axis used by the engine: raw
  timestamps are never compared across habits or users.

WHY A STRING KEY?
  - Stable across time zones: the key is derived ONCE, at write time, by
    projecting the instant through the user's IANA zone. After that, all
    grouping, streak walking and week math happens in key space.
  - Lexicographic order == chronological order, so keys sort and compare
    without parsing.

RESOLUTION PRIORITY (NormalizeEntryInput):
  1. Explicit dayKey (already canonical)
  2. Legacy "date" field (treated as canonical, emits deprecation warning)
  3. timestamp + timeZone (derived)
  Nothing resolvable -> ValidationError.

WEEK MATH:
  ISO weeks: Monday 00:00 through Sunday 23:59 in DayKey space. WeekStart
  returns the Monday key; weekly satisfaction and weekly streaks are keyed
  by that Monday.

SEE ALSO:
  - streak.go: walks keys backward one day / one week at a time
  - dashboard.go: month enumeration and week overlap
*/
package habit

import (
	"fmt"
	"time"
)

// DayKey is a canonical "YYYY-MM-DD" calendar key.
type DayKey string

const dayKeyLayout = "2006-01-02"

// ParseDayKey validates s as a calendar day. This is a semantic check, not
// just a shape check: "2025-13-01" and "2025-02-30" are rejected.
func ParseDayKey(s string) (DayKey, error) {
	t, err := time.Parse(dayKeyLayout, s)
	if err != nil {
		return "", &ValidationError{Field: "dayKey", Message: fmt.Sprintf("invalid day key %q", s)}
	}
	// time.Parse normalizes some malformed inputs; round-trip to be strict.
	if t.Format(dayKeyLayout) != s {
		return "", &ValidationError{Field: "dayKey", Message: fmt.Sprintf("invalid day key %q", s)}
	}
	return DayKey(s), nil
}

// DeriveDayKey projects an instant through an IANA time zone.
// Same (instant, zone) always yields the same key; DST transitions shift the
// wall clock, never the calendar sequence.
func DeriveDayKey(instant time.Time, timeZone string) (DayKey, error) {
	loc, err := time.LoadLocation(timeZone)
	if err != nil {
		return "", &ValidationError{Field: "timeZone", Message: fmt.Sprintf("unknown time zone %q", timeZone)}
	}
	return DayKey(instant.In(loc).Format(dayKeyLayout)), nil
}

// EntryTimeInput is the raw time information accepted on an entry write.
type EntryTimeInput struct {
	DayKey     string     // explicit canonical key
	LegacyDate string     // deprecated "date" field, treated as canonical
	Timestamp  *time.Time // fallback: derive from timestamp + zone
	TimeZone   string
}

// NormalizeEntryInput resolves the canonical key for an entry write.
// Returned warnings are deprecation notices the caller should log.
func NormalizeEntryInput(in EntryTimeInput) (DayKey, []string, error) {
	switch {
	case in.DayKey != "":
		key, err := ParseDayKey(in.DayKey)
		return key, nil, err

	case in.LegacyDate != "":
		key, err := ParseDayKey(in.LegacyDate)
		if err != nil {
			return "", nil, err
		}
		return key, []string{`entry field "date" is deprecated, send "dayKey"`}, nil

	case in.Timestamp != nil:
		if in.TimeZone == "" {
			return "", nil, &ValidationError{Field: "timeZone", Message: "timeZone is required when deriving from timestamp"}
		}
		key, err := DeriveDayKey(*in.Timestamp, in.TimeZone)
		return key, nil, err

	default:
		return "", nil, &ValidationError{Field: "dayKey", Message: "one of dayKey, date or timestamp is required"}
	}
}

// Time returns the key as UTC midnight. Keys are validated on the way in, so
// an invalid key here is a programming error and maps to the zero time.
func (k DayKey) Time() time.Time {
	t, err := time.Parse(dayKeyLayout, string(k))
	if err != nil {
		return time.Time{}
	}
	return t
}

func (k DayKey) Valid() bool {
	_, err := ParseDayKey(string(k))
	return err == nil
}

// Comparison. Lexicographic order is chronological order for this layout.
func (k DayKey) Before(other DayKey) bool { return k < other }
func (k DayKey) After(other DayKey) bool  { return k > other }

func (k DayKey) AddDays(n int) DayKey {
	return DayKey(k.Time().AddDate(0, 0, n).Format(dayKeyLayout))
}

// DaysBetween returns the signed number of calendar days from k to other.
func (k DayKey) DaysBetween(other DayKey) int {
	return int(other.Time().Sub(k.Time()).Hours() / 24)
}

// WeekStart returns the Monday of k's ISO week.
func (k DayKey) WeekStart() DayKey {
	t := k.Time()
	offset := (int(t.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return k.AddDays(-offset)
}

// WeekEnd returns the Sunday of k's ISO week.
func (k DayKey) WeekEnd() DayKey {
	return k.WeekStart().AddDays(6)
}

// DaysLeftInWeek counts the days remaining after k in its ISO week,
// excluding k itself. Sunday returns 0.
func (k DayKey) DaysLeftInWeek() int {
	return k.DaysBetween(k.WeekEnd())
}

func (k DayKey) Year() int         { return k.Time().Year() }
func (k DayKey) Month() time.Month { return k.Time().Month() }

// Month key helpers. A month key has the form "YYYY-MM".

// MonthKey returns the "YYYY-MM" prefix of the key.
func (k DayKey) MonthKey() string { return string(k)[:7] }

// ParseMonthKey validates a "YYYY-MM" month and returns its first day.
func ParseMonthKey(s string) (DayKey, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil || t.Format("2006-01") != s {
		return "", &ValidationError{Field: "month", Message: fmt.Sprintf("invalid month %q", s)}
	}
	return DayKey(t.Format(dayKeyLayout)), nil
}

// MonthDays enumerates every day key of the month containing first.
func MonthDays(first DayKey) []DayKey {
	t := first.Time()
	start := DayKey(time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).Format(dayKeyLayout))
	var days []DayKey
	for d := start; d.Month() == t.Month(); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// WeekStartsOverlapping returns the Monday keys of every ISO week that has at
// least one day inside the month containing first.
func WeekStartsOverlapping(first DayKey) []DayKey {
	days := MonthDays(first)
	var weeks []DayKey
	seen := make(map[DayKey]bool)
	for _, d := range days {
		ws := d.WeekStart()
		if !seen[ws] {
			seen[ws] = true
			weeks = append(weeks, ws)
		}
	}
	return weeks
}
