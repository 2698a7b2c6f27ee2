package pricing

import "time"

// FestivalCalendar answers which festivals, if any, fall on a calendar date.
type FestivalCalendar interface {
	FestivalsOn(date time.Time) []string
}

// StaticCalendar is an in-memory calendar keyed by "2006-01-02" dates.
type StaticCalendar map[string][]string

// FestivalsOn returns the festivals listed for the date, ignoring time of day.
func (calendar StaticCalendar) FestivalsOn(date time.Time) []string {
	return calendar[date.Format("2006-01-02")]
}

// EmptyCalendar has no festivals.
func EmptyCalendar() StaticCalendar {
	return StaticCalendar{}
}
