package processors

import (
	"sort"
	"time"

	"github.com/username/wertfolio/backend/src/utils"
)

// ValuationEventDates derives the sparse set of dates worth fetching a
// historical close for, instead of the full daily grid since the first
// transaction.
//
// Per ISO calendar week of transaction activity: weeks with several
// transactions emit the business day after the last one, weeks with a single
// transaction emit the date three business days after it. Additionally the
// last business day of every month from the first transaction's month through
// the current month is emitted. Weekend results roll forward to Monday; the
// final set is de-duplicated, capped at today, and sorted ascending.
func ValuationEventDates(txnDates []string, now time.Time) []string {
	today := utils.Day(now)

	type week struct {
		count int
		last  time.Time
	}
	weeks := make(map[[2]int]*week)
	var first time.Time

	for _, ds := range txnDates {
		d, err := time.Parse("2006-01-02", ds)
		if err != nil {
			continue
		}
		d = utils.Day(d)
		if first.IsZero() || d.Before(first) {
			first = d
		}
		year, wk := d.ISOWeek()
		key := [2]int{year, wk}
		w, ok := weeks[key]
		if !ok {
			weeks[key] = &week{count: 1, last: d}
			continue
		}
		w.count++
		if d.After(w.last) {
			w.last = d
		}
	}
	if first.IsZero() {
		return nil
	}

	events := make(map[string]bool)
	add := func(d time.Time) {
		d = utils.RollForwardToBusinessDay(d)
		if d.After(today) {
			return
		}
		events[d.Format("2006-01-02")] = true
	}

	for _, w := range weeks {
		if w.count > 1 {
			add(utils.AddBusinessDays(w.last, 1))
		} else {
			add(utils.AddBusinessDays(w.last, 3))
		}
	}

	// One snapshot per month end from the first transaction through now.
	for m := time.Date(first.Year(), first.Month(), 1, 0, 0, 0, 0, time.UTC); !m.After(today); m = m.AddDate(0, 1, 0) {
		add(utils.LastBusinessDayOfMonth(m))
	}

	out := make([]string, 0, len(events))
	for d := range events {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
