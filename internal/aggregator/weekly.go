// Package aggregator buckets forecast events into fixed 7-day windows.
package aggregator

import (
	"time"

	"github.com/shopspring/decimal"

	"cashflow-forecast-service/internal/models"
)

// Options control how events outside the requested week range are handled
type Options struct {
	// Truncate drops events that fall outside weeks [0, weeks). By default
	// the range is extended to cover every event.
	Truncate bool
}

// Result holds the summaries plus any events left out by truncation
type Result struct {
	Summaries []models.WeeklySummary
	Truncated []models.ForecastEvent
}

// AggregateWeekly buckets events into weeks counted from anchor. A weeks
// value of zero or less infers the count from the latest event.
func AggregateWeekly(events []models.ForecastEvent, anchor time.Time, weeks int, opts Options) []models.WeeklySummary {
	return Aggregate(events, anchor, weeks, opts).Summaries
}

// Aggregate is AggregateWeekly that also reports truncated events.
//
// Week n covers anchor+7n through anchor+7n+6. Events before the anchor land
// in negative weeks. Every week in range is present, empty ones with zero totals.
func Aggregate(events []models.ForecastEvent, anchor time.Time, weeks int, opts Options) Result {
	anchor = models.DateOnly(anchor)

	first, last := 0, weeks-1
	if weeks <= 0 {
		last = -1
	}
	if !opts.Truncate || weeks <= 0 {
		for _, e := range events {
			w := WeekNumber(e.Date, anchor)
			if w < first {
				first = w
			}
			if w > last {
				last = w
			}
		}
	}

	var res Result
	if last < first {
		return res
	}

	res.Summaries = make([]models.WeeklySummary, 0, last-first+1)
	for w := first; w <= last; w++ {
		start := anchor.AddDate(0, 0, 7*w)
		res.Summaries = append(res.Summaries, models.WeeklySummary{
			WeekNumber:  w,
			StartDate:   start,
			EndDate:     start.AddDate(0, 0, 6),
			Deposits:    decimal.Zero,
			Withdrawals: decimal.Zero,
			Net:         decimal.Zero,
			Events:      []models.ForecastEvent{},
		})
	}

	for _, e := range events {
		w := WeekNumber(e.Date, anchor)
		if w < first || w > last {
			res.Truncated = append(res.Truncated, e)
			continue
		}
		s := &res.Summaries[w-first]
		s.Events = append(s.Events, e)
		switch {
		case e.Amount.IsPositive():
			s.Deposits = s.Deposits.Add(e.Amount)
		case e.Amount.IsNegative():
			s.Withdrawals = s.Withdrawals.Add(e.Amount.Abs())
		}
	}

	for i := range res.Summaries {
		s := &res.Summaries[i]
		s.Net = s.Deposits.Sub(s.Withdrawals)
		models.SortEvents(s.Events)
	}
	return res
}

// WeekNumber returns floor(days(date - anchor) / 7).
func WeekNumber(date, anchor time.Time) int {
	days := models.DaysBetween(anchor, date)
	w := days / 7
	if days%7 != 0 && days < 0 {
		w--
	}
	return w
}
