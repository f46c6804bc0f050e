// Package market knows the regular trading session of US equities.
package market

import (
	"time"
	_ "time/tzdata"
)

var newYork = loadNewYork()

func loadNewYork() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*60*60)
	}
	return loc
}

// Location returns the exchange time zone.
func Location() *time.Location { return newYork }

const (
	openMinute  = 9*60 + 30
	closeMinute = 16 * 60
)

// SessionOpen returns 09:30 New York time on the day of t.
func SessionOpen(t time.Time) time.Time {
	ny := t.In(newYork)
	return time.Date(ny.Year(), ny.Month(), ny.Day(), 9, 30, 0, 0, newYork)
}

// IsOpen reports whether t falls on a weekday between 09:30 and 16:00 New York time.
// Exchange holidays are not considered.
func IsOpen(t time.Time) bool {
	ny := t.In(newYork)
	switch ny.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	m := ny.Hour()*60 + ny.Minute()
	return m >= openMinute && m < closeMinute
}
