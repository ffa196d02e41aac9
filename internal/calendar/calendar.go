// Package calendar holds the date helpers shared by the generator, the parser
// and the aggregator: the canonical date layout, inclusive day ranges and the
// Eurex/Xetra trading-day calendar.
package calendar

import (
	"fmt"
	"time"
)

// DateLayout is the YYYY-MM-DD layout used in file names, configuration and
// the report.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD string into a UTC midnight date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", s, err)
	}
	return d, nil
}

// Days returns every calendar day in [start, end] in ascending order.
// It returns nil when start is after end.
func Days(start, end time.Time) []time.Time {
	start, end = truncateToDate(start), truncateToDate(end)
	if start.After(end) {
		return nil
	}
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// TradingDays returns the days in [start, end] (ascending) on which the
// German exchanges trade.
func TradingDays(start, end time.Time) []time.Time {
	var out []time.Time
	for _, d := range Days(start, end) {
		if IsTradingDay(d) {
			out = append(out, d)
		}
	}
	return out
}

// Within reports whether d falls inside [start, end], ignoring time of day.
func Within(d, start, end time.Time) bool {
	d = truncateToDate(d)
	return !d.Before(truncateToDate(start)) && !d.After(truncateToDate(end))
}

func truncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// IsTradingDay returns true if date is a Eurex/Xetra trading day.
func IsTradingDay(d time.Time) bool {
	// Weekend
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}

	fixed := map[string]struct{}{
		"01-01": {}, // New Year
		"05-01": {}, // Labour Day
		"12-24": {}, // Christmas Eve
		"12-25": {}, // Christmas
		"12-26": {}, // Boxing Day
		"12-31": {}, // New Year's Eve
	}
	if _, ok := fixed[d.Format("01-02")]; ok {
		return false
	}

	// Movable holidays (computed from Easter)
	easter := easterSunday(d.Year(), d.Location())
	goodFriday := easter.AddDate(0, 0, -2)
	easterMonday := easter.AddDate(0, 0, 1)

	day := truncateToDate(d)
	if day.Equal(goodFriday) || day.Equal(easterMonday) {
		return false
	}

	return true
}

// easterSunday returns the date of Easter Sunday for a given year
// (Meeus/Jones/Butcher algorithm).
func easterSunday(year int, loc *time.Location) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := ((h + l - 7*m + 114) % 31) + 1

	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
}
