// Package dates normalizes civil dates in a company's time zone.
package dates

import (
	"time"

	"accounting-core/internal/apperr"
)

const civilLayout = "2006-01-02"

// ParseCivil parses user-supplied YYYY-MM-DD input.
func ParseCivil(s string) (time.Time, error) {
	t, err := time.Parse(civilLayout, s)
	if err != nil {
		return time.Time{}, apperr.E(apperr.InvalidInput, "invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatCivil renders a time as YYYY-MM-DD.
func FormatCivil(t time.Time) string {
	return t.Format(civilLayout)
}

// StartOfDay truncates t to midnight in loc. Period comparisons always go
// through this so that "date <= close.to" is a whole-day comparison.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// LoadZone resolves a company time zone name, defaulting to UTC.
func LoadZone(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NotAfter reports a <= b at day precision in loc.
func NotAfter(a, b time.Time, loc *time.Location) bool {
	return !StartOfDay(a, loc).After(StartOfDay(b, loc))
}
