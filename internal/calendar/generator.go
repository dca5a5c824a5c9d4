// Package calendar projects a detected Pattern onto concrete future dates.
//
// Each frequency has its own DateStrategy. All strategies walk forward from
// a computed first occurrence and stop once the cursor passes the end of
// the window; there is no iteration cap.
package calendar

import (
	"time"

	"github.com/shopspring/decimal"

	"cashflow-forecast-service/internal/models"
)

// Options tune a single Generate call
type Options struct {
	// ReferenceDate is a known historical occurrence. Bi-weekly projections
	// stay in phase with it regardless of the window start.
	ReferenceDate *time.Time
	// RollUpDaily emits one Monday event per week for daily patterns even
	// when the pattern itself is not flagged daily_weekly.
	RollUpDaily bool
}

// DateStrategy lists the occurrence dates of a pattern within [start, end].
// Dates must be strictly ascending.
type DateStrategy interface {
	Dates(p models.Pattern, start, end time.Time, opts Options) []time.Time
}

var strategies = map[models.Frequency]DateStrategy{
	models.FrequencyDaily:     DailyStrategy{},
	models.FrequencyWeekly:    IntervalStrategy{Days: 7},
	models.FrequencyBiWeekly:  IntervalStrategy{Days: 14, PhaseLocked: true},
	models.FrequencyMonthly:   MonthlyStrategy{},
	models.FrequencyQuarterly: QuarterlyStrategy{},
}

// StrategyFor returns the strategy of a frequency. Irregular and one-time
// frequencies have none.
func StrategyFor(freq models.Frequency) (DateStrategy, bool) {
	s, ok := strategies[freq]
	return s, ok
}

// Generate returns the recurring events of p within [start, end], ascending
// by date with at most one event per date. Irregular patterns produce no
// events.
func Generate(p models.Pattern, start, end time.Time, opts Options) []models.ForecastEvent {
	start, end = models.DateOnly(start), models.DateOnly(end)
	if end.Before(start) {
		return nil
	}

	strategy, ok := StrategyFor(p.Frequency)
	if !ok {
		return nil
	}

	dates := strategy.Dates(p, start, end, opts)
	amount := occurrenceAmount(p, opts)

	events := make([]models.ForecastEvent, 0, len(dates))
	for _, d := range dates {
		events = append(events, models.ForecastEvent{
			Date:        d,
			VendorGroup: p.VendorGroup,
			Amount:      amount,
			EventType:   models.EventRecurring,
			Frequency:   p.Frequency,
			Confidence:  p.Forecastability,
			Source:      models.SourcePatternDetected,
		})
	}
	return events
}

// occurrenceAmount converts the estimate into a per-event amount. Daily
// estimates are weekly totals, so per-weekday events carry a fifth of them.
func occurrenceAmount(p models.Pattern, opts Options) decimal.Decimal {
	if p.Frequency == models.FrequencyDaily && !rollUp(p, opts) && p.Method == models.MethodWeeklySumWeighted {
		return p.AmountEstimate.Div(decimal.NewFromInt(5)).Round(2)
	}
	return p.AmountEstimate
}

func rollUp(p models.Pattern, opts Options) bool {
	return p.DailyWeekly || opts.RollUpDaily
}

// DailyStrategy emits every weekday, or every Monday when rolled up.
type DailyStrategy struct{}

func (DailyStrategy) Dates(p models.Pattern, start, end time.Time, opts Options) []time.Time {
	var dates []time.Time
	if rollUp(p, opts) {
		for d := nextWeekday(start, time.Monday); !d.After(end); d = d.AddDate(0, 0, 7) {
			dates = append(dates, d)
		}
		return dates
	}

	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if models.IsWeekday(d) {
			dates = append(dates, d)
		}
	}
	return dates
}

// IntervalStrategy steps a fixed number of days from the first occurrence
// of the pattern's weekday. With PhaseLocked, the first occurrence is
// derived from the reference date (or the last observed occurrence) instead
// of the window start.
type IntervalStrategy struct {
	Days        int
	PhaseLocked bool
}

func (s IntervalStrategy) Dates(p models.Pattern, start, end time.Time, opts Options) []time.Time {
	weekday := patternWeekday(p, start)

	first := nextWeekday(start, weekday)
	if ref, ok := phaseAnchor(p, opts); s.PhaseLocked && ok {
		first = firstInPhase(nextWeekday(ref, weekday), start, s.Days)
	}

	var dates []time.Time
	for d := first; !d.After(end); d = d.AddDate(0, 0, s.Days) {
		dates = append(dates, d)
	}
	return dates
}

// MonthlyStrategy emits the pattern day in every month of the window,
// clamped to the month's last day.
type MonthlyStrategy struct{}

func (MonthlyStrategy) Dates(p models.Pattern, start, end time.Time, _ Options) []time.Time {
	day := patternDay(p, start)

	var dates []time.Time
	for cursor := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC); !cursor.After(end); cursor = cursor.AddDate(0, 1, 0) {
		d := clampedDate(cursor.Year(), cursor.Month(), day)
		if !d.Before(start) && !d.After(end) {
			dates = append(dates, d)
		}
	}
	return dates
}

// QuarterlyStrategy steps 90 days from the first quarter boundary
// (Jan 1, Apr 1, Jul 1, Oct 1) on or after the window start.
type QuarterlyStrategy struct{}

func (QuarterlyStrategy) Dates(_ models.Pattern, start, end time.Time, _ Options) []time.Time {
	var dates []time.Time
	for d := nextQuarterBoundary(start); !d.After(end); d = d.AddDate(0, 0, 90) {
		dates = append(dates, d)
	}
	return dates
}

// phaseAnchor prefers an explicit reference date over the last observed occurrence.
func phaseAnchor(p models.Pattern, opts Options) (time.Time, bool) {
	if opts.ReferenceDate != nil && !opts.ReferenceDate.IsZero() {
		return models.DateOnly(*opts.ReferenceDate), true
	}
	if !p.LastSeen.IsZero() {
		return models.DateOnly(p.LastSeen), true
	}
	return time.Time{}, false
}

// nextWeekday returns the first date on or after d that falls on wd.
func nextWeekday(d time.Time, wd time.Weekday) time.Time {
	return d.AddDate(0, 0, (int(wd)-int(d.Weekday())+7)%7)
}

// firstInPhase returns the first date on or after start of the form
// anchor + k*step for integer k, moving backwards when anchor is after start.
func firstInPhase(anchor, start time.Time, step int) time.Time {
	offset := models.DaysBetween(anchor, start)
	k := offset / step
	if offset%step != 0 && offset > 0 {
		k++
	}
	return anchor.AddDate(0, 0, k*step)
}

func clampedDate(year int, month time.Month, day int) time.Time {
	if last := models.DaysInMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func nextQuarterBoundary(d time.Time) time.Time {
	quarterStart := time.Month((int(d.Month())-1)/3*3 + 1)
	boundary := time.Date(d.Year(), quarterStart, 1, 0, 0, 0, 0, time.UTC)
	if boundary.Before(d) {
		boundary = boundary.AddDate(0, 3, 0)
	}
	return boundary
}

// patternWeekday falls back to the last observed weekday, then to the window start.
func patternWeekday(p models.Pattern, start time.Time) time.Weekday {
	if p.Timing != nil && p.Timing.Kind == models.TimingWeekday {
		return p.Timing.Weekday
	}
	if !p.LastSeen.IsZero() {
		return p.LastSeen.Weekday()
	}
	return start.Weekday()
}

func patternDay(p models.Pattern, start time.Time) int {
	if p.Timing != nil && p.Timing.Kind == models.TimingDayOfMonth && p.Timing.Day > 0 {
		return p.Timing.Day
	}
	if !p.LastSeen.IsZero() {
		return p.LastSeen.Day()
	}
	return start.Day()
}
