package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// DayLayout is the canonical calendar-day format used for keys and grouping.
const DayLayout = "2006-01-02"

// DateParseError reports a date or time string that could not be interpreted.
type DateParseError struct {
	Raw string
	Err error
}

func (e *DateParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unparseable date %q", e.Raw)
	}
	return fmt.Sprintf("unparseable date %q: %v", e.Raw, e.Err)
}

func (e *DateParseError) Unwrap() error { return e.Err }

var (
	isoDayPrefix  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	weekdayPrefix = regexp.MustCompile(`(?i)^(mon|tue|tues|wed|thu|thur|thurs|fri|sat|sun)(day|nesday|urday|sday)?\.?,?\s+`)
	ordinalSuffix = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)
)

// yearlessLayouts cover mentions like "October 25" or "25 Oct" that omit the year.
var yearlessLayouts = []string{
	"January 2",
	"Jan 2",
	"2 January",
	"2 Jan",
	"1/2",
}

// ParseDay parses a strict YYYY-MM-DD calendar day in UTC.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, &DateParseError{Raw: s, Err: err}
	}
	return t, nil
}

// ParseDate interprets an imprecise date mention and returns midnight of that
// day in ref's location. Dates without a year are placed in ref's year, or the
// following year when that would put them more than six months in the past.
func ParseDate(raw string, ref time.Time) (time.Time, error) {
	loc := ref.Location()
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, &DateParseError{Raw: raw}
	}

	if m := isoDayPrefix.FindString(s); m != "" {
		t, err := time.ParseInLocation(DayLayout, m, loc)
		if err == nil {
			return t, nil
		}
	}

	s = weekdayPrefix.ReplaceAllString(s, "")
	s = ordinalSuffix.ReplaceAllString(s, "$1")
	s = strings.TrimSpace(strings.TrimSuffix(s, "."))

	for _, layout := range yearlessLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			continue
		}
		t = time.Date(ref.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		if t.Before(ref.AddDate(0, -6, 0)) {
			t = t.AddDate(1, 0, 0)
		}
		return t, nil
	}

	t, err := dateparse.ParseIn(s, loc)
	if err != nil {
		return time.Time{}, &DateParseError{Raw: raw, Err: err}
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
}

// NormalizeDate collapses a date mention to its YYYY-MM-DD calendar day.
func NormalizeDate(raw string, ref time.Time) (string, error) {
	t, err := ParseDate(raw, ref)
	if err != nil {
		return "", err
	}
	return t.Format(DayLayout), nil
}

var clockLayouts = []string{
	"15:04",
	"15:04:05",
	"3:04pm",
	"3:04 pm",
	"3pm",
	"3 pm",
	"15.04",
	"3.04pm",
}

// ParseClock parses a time-of-day mention and returns the offset from midnight.
func ParseClock(raw string) (time.Duration, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer("a.m.", "am", "p.m.", "pm").Replace(s)
	switch s {
	case "":
		return 0, &DateParseError{Raw: raw}
	case "noon":
		return 12 * time.Hour, nil
	case "midnight":
		return 0, nil
	}
	// "9:00 AM - 11:00 AM" style ranges compare on their start.
	if i := strings.IndexAny(s, "-–"); i > 0 {
		s = strings.TrimSpace(s[:i])
	}
	for _, layout := range clockLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
		}
	}
	return 0, &DateParseError{Raw: raw}
}

// DaysBetween returns the number of calendar days from a to b, counted in
// a's location. It is negative when b falls on an earlier day than a.
func DaysBetween(a, b time.Time) int {
	b = b.In(a.Location())
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
