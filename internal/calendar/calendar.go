// Package calendar enumerates candidate trading sessions. Only weekends are
// excluded; exchange holidays surface later as dates with no published
// archive, which the fetcher treats as a normal no-data outcome.
package calendar

import "time"

// Day normalizes t to midnight UTC so dates compare and join cleanly.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsTradingDay reports whether t falls on a weekday.
func IsTradingDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// TradingDays returns every weekday in the inclusive range [start, end] in
// ascending order. A single session is the degenerate range start == end; an
// inverted range yields nil.
func TradingDays(start, end time.Time) []time.Time {
	start, end = Day(start), Day(end)
	if end.Before(start) {
		return nil
	}

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if IsTradingDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// Lookback returns the inclusive range ending at end and spanning the given
// number of calendar days back.
func Lookback(end time.Time, days int) (time.Time, time.Time) {
	end = Day(end)
	return end.AddDate(0, 0, -days), end
}
