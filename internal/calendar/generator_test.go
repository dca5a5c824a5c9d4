package calendar

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cashflow-forecast-service/internal/models"
)

func date(s string) time.Time {
	d, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func dates(events []models.ForecastEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Date.Format(models.DateLayout)
	}
	return out
}

func assertDates(t *testing.T, events []models.ForecastEvent, want ...string) {
	t.Helper()
	got := dates(events)
	if len(got) != len(want) {
		t.Fatalf("got %d events %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestGenerate_AscendingAndUnique(t *testing.T) {
	base := models.Pattern{
		VendorGroup:    "VendorX",
		AmountEstimate: decimal.NewFromInt(100),
		LastSeen:       date("2025-06-03"),
	}

	frequencies := []struct {
		freq   models.Frequency
		timing *models.Timing
	}{
		{models.FrequencyDaily, &models.Timing{Kind: models.TimingDailyMode, DailyMode: models.DailyWeekdays}},
		{models.FrequencyWeekly, models.WeekdayTiming(time.Friday)},
		{models.FrequencyBiWeekly, models.WeekdayTiming(time.Tuesday)},
		{models.FrequencyMonthly, models.DayOfMonthTiming(31)},
		{models.FrequencyQuarterly, nil},
	}

	for _, f := range frequencies {
		t.Run(string(f.freq), func(t *testing.T) {
			p := base
			p.Frequency = f.freq
			p.Timing = f.timing

			events := Generate(p, date("2025-07-01"), date("2026-06-30"), Options{})
			if len(events) == 0 {
				t.Fatal("expected events")
			}

			seen := make(map[models.EventKey]bool)
			for i, e := range events {
				if i > 0 && !events[i-1].Date.Before(e.Date) {
					t.Errorf("events not strictly ascending at %d: %s then %s", i, events[i-1].Date, e.Date)
				}
				if seen[e.Key()] {
					t.Errorf("duplicate event %s", e)
				}
				seen[e.Key()] = true

				if e.EventType != models.EventRecurring || e.Source != models.SourcePatternDetected {
					t.Errorf("unexpected event type/source %s/%s", e.EventType, e.Source)
				}
				if e.Date.Before(date("2025-07-01")) || e.Date.After(date("2026-06-30")) {
					t.Errorf("event %s outside window", e.Date)
				}
			}
		})
	}
}

func TestGenerate_MonthlyClampsToMonthEnd(t *testing.T) {
	p := models.Pattern{
		VendorGroup:    "Rent",
		Frequency:      models.FrequencyMonthly,
		Timing:         models.DayOfMonthTiming(31),
		AmountEstimate: decimal.NewFromInt(-2000),
	}

	events := Generate(p, date("2025-01-01"), date("2025-04-30"), Options{})
	assertDates(t, events, "2025-01-31", "2025-02-28", "2025-03-31", "2025-04-30")

	leap := Generate(p, date("2024-02-01"), date("2024-02-29"), Options{})
	assertDates(t, leap, "2024-02-29")
}

func TestGenerate_MonthlyRespectsWindowStart(t *testing.T) {
	p := models.Pattern{
		Frequency: models.FrequencyMonthly,
		Timing:    models.DayOfMonthTiming(5),
	}

	events := Generate(p, date("2025-01-10"), date("2025-03-05"), Options{})
	assertDates(t, events, "2025-02-05", "2025-03-05")
}

func TestGenerate_MonthlyFallsBackToLastSeenDay(t *testing.T) {
	p := models.Pattern{
		Frequency: models.FrequencyMonthly,
		LastSeen:  date("2025-05-15"),
	}

	events := Generate(p, date("2025-06-01"), date("2025-07-31"), Options{})
	assertDates(t, events, "2025-06-15", "2025-07-15")
}

func TestGenerate_Weekly(t *testing.T) {
	p := models.Pattern{
		Frequency:      models.FrequencyWeekly,
		Timing:         models.WeekdayTiming(time.Friday),
		AmountEstimate: decimal.NewFromInt(-250),
	}

	// 2025-07-01 is a Tuesday
	events := Generate(p, date("2025-07-01"), date("2025-07-25"), Options{})
	assertDates(t, events, "2025-07-04", "2025-07-11", "2025-07-18", "2025-07-25")

	for _, e := range events {
		if !e.Amount.Equal(decimal.NewFromInt(-250)) {
			t.Errorf("amount = %s, want -250", e.Amount)
		}
	}
}

func TestGenerate_WeeklyWithoutTimingUsesLastSeenWeekday(t *testing.T) {
	p := models.Pattern{
		Frequency: models.FrequencyWeekly,
		LastSeen:  date("2025-06-25"), // Wednesday
	}

	events := Generate(p, date("2025-07-01"), date("2025-07-10"), Options{})
	assertDates(t, events, "2025-07-02", "2025-07-09")
}

func TestGenerate_BiWeeklyScenario(t *testing.T) {
	p := models.Pattern{
		VendorGroup:     "Payroll",
		Frequency:       models.FrequencyBiWeekly,
		Timing:          models.WeekdayTiming(time.Tuesday),
		AmountEstimate:  decimal.NewFromInt(44500),
		Forecastability: 0.8,
		LastSeen:        date("2025-07-08"),
	}

	events := Generate(p, date("2025-07-09"), date("2025-09-09"), Options{})
	assertDates(t, events, "2025-07-22", "2025-08-05", "2025-08-19", "2025-09-02")

	for _, e := range events {
		if !e.Amount.Equal(decimal.NewFromInt(44500)) {
			t.Errorf("amount = %s, want 44500", e.Amount)
		}
		if e.Confidence != 0.8 {
			t.Errorf("confidence = %v, want 0.8", e.Confidence)
		}
		if e.VendorGroup != "Payroll" || e.Frequency != models.FrequencyBiWeekly {
			t.Errorf("unexpected event %s", e)
		}
	}
}

func TestGenerate_BiWeeklyPhasePreserved(t *testing.T) {
	ref := date("2025-06-10")
	p := models.Pattern{
		Frequency: models.FrequencyBiWeekly,
		Timing:    models.WeekdayTiming(time.Tuesday),
	}
	opts := Options{ReferenceDate: &ref}

	start, end := date("2025-07-01"), date("2025-12-31")
	baseline := Generate(p, start, end, opts)
	if len(baseline) == 0 {
		t.Fatal("expected baseline events")
	}

	for shift := 1; shift <= 13; shift++ {
		shifted := start.AddDate(0, 0, shift)

		var want []string
		for _, e := range baseline {
			if !e.Date.Before(shifted) {
				want = append(want, e.Date.Format(models.DateLayout))
			}
		}

		got := Generate(p, shifted, end, opts)
		if len(got) != len(want) {
			t.Fatalf("shift %d: got %v, want %v", shift, dates(got), want)
		}
		for i := range want {
			if dates(got)[i] != want[i] {
				t.Errorf("shift %d: event %d = %s, want %s", shift, i, dates(got)[i], want[i])
			}
		}
	}
}

func TestGenerate_BiWeeklyReferenceAfterStart(t *testing.T) {
	ref := date("2025-08-05")
	p := models.Pattern{
		Frequency: models.FrequencyBiWeekly,
		Timing:    models.WeekdayTiming(time.Tuesday),
	}

	events := Generate(p, date("2025-07-01"), date("2025-08-31"), Options{ReferenceDate: &ref})
	assertDates(t, events, "2025-07-08", "2025-07-22", "2025-08-05", "2025-08-19")
}

func TestGenerate_BiWeeklyAlignsReferenceToTimingWeekday(t *testing.T) {
	// reference on a Monday, timing says Tuesday
	ref := date("2025-06-09")
	p := models.Pattern{
		Frequency: models.FrequencyBiWeekly,
		Timing:    models.WeekdayTiming(time.Tuesday),
	}

	events := Generate(p, date("2025-07-01"), date("2025-07-31"), Options{ReferenceDate: &ref})
	assertDates(t, events, "2025-07-08", "2025-07-22")
}

func TestGenerate_Quarterly(t *testing.T) {
	p := models.Pattern{
		Frequency:      models.FrequencyQuarterly,
		AmountEstimate: decimal.NewFromInt(-1200),
	}

	events := Generate(p, date("2025-02-15"), date("2025-12-31"), Options{})
	assertDates(t, events, "2025-04-01", "2025-06-30", "2025-09-28", "2025-12-27")

	onBoundary := Generate(p, date("2025-01-01"), date("2025-03-31"), Options{})
	assertDates(t, onBoundary, "2025-01-01")
}

func TestGenerate_DailyWeekdays(t *testing.T) {
	p := models.Pattern{
		Frequency:      models.FrequencyDaily,
		AmountEstimate: decimal.NewFromInt(500),
		Method:         models.MethodWeeklySumWeighted,
	}

	// Monday 2025-07-07 to Sunday 2025-07-20
	events := Generate(p, date("2025-07-07"), date("2025-07-20"), Options{})
	if len(events) != 10 {
		t.Fatalf("got %d events, want 10", len(events))
	}
	for _, e := range events {
		if !models.IsWeekday(e.Date) {
			t.Errorf("weekend event %s", e.Date)
		}
		if !e.Amount.Equal(decimal.NewFromInt(100)) {
			t.Errorf("per-day amount = %s, want 100", e.Amount)
		}
	}
}

func TestGenerate_DailyRollUp(t *testing.T) {
	p := models.Pattern{
		Frequency:      models.FrequencyDaily,
		AmountEstimate: decimal.NewFromInt(500),
		Method:         models.MethodWeeklySumWeighted,
	}

	tests := []struct {
		name string
		p    func() models.Pattern
		opts Options
	}{
		{"pattern flag", func() models.Pattern { q := p; q.DailyWeekly = true; return q }, Options{}},
		{"option", func() models.Pattern { return p }, Options{RollUpDaily: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := Generate(tt.p(), date("2025-07-02"), date("2025-07-21"), tt.opts)
			assertDates(t, events, "2025-07-07", "2025-07-14", "2025-07-21")
			for _, e := range events {
				if !e.Amount.Equal(decimal.NewFromInt(500)) {
					t.Errorf("roll-up amount = %s, want 500", e.Amount)
				}
			}
		})
	}
}

func TestGenerate_NoEvents(t *testing.T) {
	tests := []struct {
		name       string
		freq       models.Frequency
		start, end string
	}{
		{"irregular", models.FrequencyIrregular, "2025-01-01", "2025-12-31"},
		{"one time", models.FrequencyOneTime, "2025-01-01", "2025-12-31"},
		{"end before start", models.FrequencyWeekly, "2025-02-01", "2025-01-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := models.Pattern{Frequency: tt.freq, Timing: models.WeekdayTiming(time.Monday)}
			if events := Generate(p, date(tt.start), date(tt.end), Options{}); len(events) != 0 {
				t.Errorf("expected no events, got %v", dates(events))
			}
		})
	}
}

func TestFirstInPhase(t *testing.T) {
	anchor := date("2025-01-07")

	tests := []struct {
		start string
		want  string
	}{
		{"2025-01-07", "2025-01-07"},
		{"2025-01-08", "2025-01-21"},
		{"2025-01-21", "2025-01-21"},
		{"2024-12-30", "2025-01-07"},
		{"2024-12-24", "2024-12-24"},
	}

	for _, tt := range tests {
		if got := firstInPhase(anchor, date(tt.start), 14); got.Format(models.DateLayout) != tt.want {
			t.Errorf("firstInPhase(start=%s) = %s, want %s", tt.start, got.Format(models.DateLayout), tt.want)
		}
	}
}
