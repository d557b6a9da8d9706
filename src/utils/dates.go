package utils

import "time"

// IsBusinessDay reports whether d falls on a weekday. Exchange holidays are
// deliberately ignored; the nearest-prior lookup in the price store absorbs
// them.
func IsBusinessDay(d time.Time) bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// RollForwardToBusinessDay returns d unchanged on a weekday, otherwise the
// following Monday.
func RollForwardToBusinessDay(d time.Time) time.Time {
	for !IsBusinessDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// AddBusinessDays advances d by n weekdays (n >= 0).
func AddBusinessDays(d time.Time, n int) time.Time {
	for i := 0; i < n; i++ {
		d = d.AddDate(0, 0, 1)
		for !IsBusinessDay(d) {
			d = d.AddDate(0, 0, 1)
		}
	}
	return d
}

// LastBusinessDayOfMonth returns the last weekday of the month containing d.
func LastBusinessDayOfMonth(d time.Time) time.Time {
	firstOfNext := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	last := firstOfNext.AddDate(0, 0, -1)
	for !IsBusinessDay(last) {
		last = last.AddDate(0, 0, -1)
	}
	return last
}

// BusinessDaysBetween lists every weekday in [from, to], inclusive.
func BusinessDaysBetween(from, to time.Time) []time.Time {
	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if IsBusinessDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
