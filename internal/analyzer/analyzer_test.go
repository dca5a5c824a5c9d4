package analyzer

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cashflow-forecast-service/internal/models"
	"cashflow-forecast-service/internal/testutil"
)

func day(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func tx(date string, amount string, vendor string) models.Transaction {
	return models.NewTransaction(day(date), decimal.RequireFromString(amount), vendor)
}

func newTestAnalyzer(t *testing.T, mutate func(*Config)) *Analyzer {
	t.Helper()
	config := DefaultConfig()
	if mutate != nil {
		mutate(config)
	}
	a, err := NewAnalyzer(config)
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}
	return a
}

func TestAnalyze_RecoversSyntheticCadences(t *testing.T) {
	// Date jitter stays within 10% of the cadence, except quarterly, whose
	// 80-100 day bucket only absorbs about ±4 days around a 91-day gap.
	tests := []struct {
		frequency    models.Frequency
		jitter       int
		lookbackDays int
	}{
		{models.FrequencyDaily, 0, 180},
		{models.FrequencyWeekly, 1, 180},
		{models.FrequencyBiWeekly, 1, 180},
		{models.FrequencyMonthly, 3, 400},
		{models.FrequencyQuarterly, 3, 400},
	}

	for _, tt := range tests {
		t.Run(string(tt.frequency), func(t *testing.T) {
			a := newTestAnalyzer(t, func(c *Config) { c.LookbackDays = tt.lookbackDays })
			for seed := int64(1); seed <= 5; seed++ {
				gen := testutil.NewSeriesGenerator(seed)
				txns := gen.Generate(testutil.SeriesParams{
					Vendor:         "Vendor",
					Frequency:      tt.frequency,
					Start:          day("2024-01-15"),
					End:            day("2025-01-15"),
					Amount:         decimal.NewFromInt(-1200),
					AmountJitter:   0.02,
					DateJitterDays: tt.jitter,
				})

				p := a.Analyze(txns)
				if p.Frequency != tt.frequency {
					t.Fatalf("seed %d: expected %s, got %s (confidence %.2f)", seed, tt.frequency, p.Frequency, p.FrequencyConfidence)
				}
				if p.FrequencyConfidence <= 0.6 {
					t.Errorf("seed %d: expected confidence > 0.6, got %.2f", seed, p.FrequencyConfidence)
				}
				if p.Timing == nil && tt.frequency != models.FrequencyQuarterly {
					t.Errorf("seed %d: expected timing for %s", seed, tt.frequency)
				}
			}
		})
	}
}

func TestAnalyze_BiWeeklyPayroll(t *testing.T) {
	a := newTestAnalyzer(t, nil)
	txns := []models.Transaction{
		tx("2025-06-10", "44500", "Payroll"),
		tx("2025-06-24", "44800", "Payroll"),
		tx("2025-07-08", "44200", "Payroll"),
	}

	p := a.Analyze(txns)

	if p.Frequency != models.FrequencyBiWeekly {
		t.Fatalf("expected bi_weekly, got %s", p.Frequency)
	}
	if p.Timing == nil || p.Timing.Kind != models.TimingWeekday || p.Timing.Weekday != time.Tuesday {
		t.Errorf("expected Tuesday timing, got %s", p.Timing)
	}
	if !p.AmountEstimate.Equal(decimal.NewFromInt(44500)) {
		t.Errorf("expected amount 44500, got %s", p.AmountEstimate)
	}
	if p.Method != models.MethodIQRMean {
		t.Errorf("expected iqr_mean, got %s", p.Method)
	}
	if p.VendorGroup != "Payroll" {
		t.Errorf("expected vendor group Payroll, got %q", p.VendorGroup)
	}
	if !p.LastSeen.Equal(day("2025-07-08")) {
		t.Errorf("expected last seen 2025-07-08, got %s", p.LastSeen)
	}
}

func TestAnalyze_InputOrderDoesNotMatter(t *testing.T) {
	a := newTestAnalyzer(t, nil)
	ordered := []models.Transaction{
		tx("2025-06-10", "44500", "Payroll"),
		tx("2025-06-24", "44800", "Payroll"),
		tx("2025-07-08", "44200", "Payroll"),
	}
	shuffled := []models.Transaction{ordered[2], ordered[0], ordered[1]}

	p1 := a.Analyze(ordered)
	p2 := a.Analyze(shuffled)

	if p1.Frequency != p2.Frequency || !p1.AmountEstimate.Equal(p2.AmountEstimate) {
		t.Errorf("expected identical patterns, got %s and %s", p1, p2)
	}
	if !shuffled[0].Date.Equal(day("2025-07-08")) {
		t.Error("Analyze must not reorder its input")
	}
}

func TestAnalyze_TooFewTransactions(t *testing.T) {
	a := newTestAnalyzer(t, nil)
	p := a.Analyze([]models.Transaction{
		tx("2025-06-10", "100", "Gym"),
		tx("2025-07-10", "120", "Gym"),
	})

	if p.Frequency != models.FrequencyIrregular {
		t.Errorf("expected irregular, got %s", p.Frequency)
	}
	if p.FrequencyConfidence != 0 {
		t.Errorf("expected zero confidence, got %.2f", p.FrequencyConfidence)
	}
	if p.Timing != nil {
		t.Errorf("expected no timing, got %s", p.Timing)
	}
	if !p.AmountEstimate.Equal(decimal.NewFromInt(110)) || p.Method != models.MethodRecentMean {
		t.Errorf("expected recent mean 110, got %s (%s)", p.AmountEstimate, p.Method)
	}
}

func TestAnalyze_Empty(t *testing.T) {
	a := newTestAnalyzer(t, nil)
	p := a.Analyze(nil)

	if p.Frequency != models.FrequencyIrregular || p.FrequencyConfidence != 0 {
		t.Errorf("expected irregular with zero confidence, got %s", p)
	}
	if !p.AmountEstimate.IsZero() || p.AmountConfidence != 0 || p.Method != models.MethodNone {
		t.Errorf("expected zero estimate, got %s", p)
	}
	if p.Forecastability != 0 {
		t.Errorf("expected zero forecastability, got %.2f", p.Forecastability)
	}
}

func TestAnalyze_IrregularFallsBackToAllTransactions(t *testing.T) {
	a := newTestAnalyzer(t, func(c *Config) { c.AsOf = day("2025-12-31") })
	p := a.Analyze([]models.Transaction{
		tx("2025-08-01", "-30", "Hardware"),
		tx("2025-08-20", "-90", "Hardware"),
	})

	if p.Method != models.MethodMeanAll {
		t.Fatalf("expected mean_all, got %s", p.Method)
	}
	if !p.AmountEstimate.Equal(decimal.NewFromInt(-60)) {
		t.Errorf("expected -60, got %s", p.AmountEstimate)
	}
}

func TestAnalyze_LookbackWindow(t *testing.T) {
	a := newTestAnalyzer(t, func(c *Config) { c.LookbackDays = 30 })
	p := a.Analyze([]models.Transaction{
		tx("2025-01-01", "-500", "Cloud"),
		tx("2025-06-01", "-10", "Cloud"),
		tx("2025-06-15", "-20", "Cloud"),
	})

	if p.SampleCount != 2 {
		t.Errorf("expected 2 transactions in window, got %d", p.SampleCount)
	}
	if !p.AmountEstimate.Equal(decimal.NewFromInt(-15)) {
		t.Errorf("expected estimate from window only, got %s", p.AmountEstimate)
	}
}

func TestAnalyze_LargeSubsetSeparatesSalaryFromFees(t *testing.T) {
	gen := testutil.NewSeriesGenerator(42)
	salary := gen.Generate(testutil.SeriesParams{
		Vendor:    "Bank",
		Frequency: models.FrequencyMonthly,
		Start:     day("2024-01-15"),
		End:       day("2024-12-31"),
		Amount:    decimal.NewFromInt(5000),
	})
	fees := gen.Noise("Bank", day("2024-01-02"), day("2024-12-31"), 30, decimal.NewFromInt(-20))

	txns := append(append([]models.Transaction{}, fees...), salary...)
	a := newTestAnalyzer(t, func(c *Config) { c.LookbackDays = 400 })
	p := a.Analyze(txns)

	if !p.UsedLargeSubset {
		t.Fatal("expected the large subset to be used")
	}
	if p.Frequency != models.FrequencyMonthly {
		t.Fatalf("expected monthly, got %s", p.Frequency)
	}
	if p.Timing.Day != 15 {
		t.Errorf("expected day 15, got %d", p.Timing.Day)
	}
	if !p.AmountEstimate.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("expected 5000, got %s", p.AmountEstimate)
	}
}

func TestAnalyze_LargeSubsetFallsBackToFullSet(t *testing.T) {
	var txns []models.Transaction
	for d := day("2025-01-06"); len(txns) < 16; d = d.AddDate(0, 0, 7) {
		txns = append(txns, models.NewTransaction(d, decimal.NewFromInt(100), "Cleaning"))
	}
	txns = append(txns,
		tx("2025-01-22", "1000", "Cleaning"),
		tx("2025-02-12", "1000", "Cleaning"),
		tx("2025-03-26", "1000", "Cleaning"),
	)

	a := newTestAnalyzer(t, nil)
	p := a.Analyze(txns)

	if p.UsedLargeSubset {
		t.Error("expected large subset to be rejected")
	}
	if p.Frequency != models.FrequencyWeekly {
		t.Fatalf("expected weekly, got %s (%.2f)", p.Frequency, p.FrequencyConfidence)
	}
	if p.Timing.Weekday != time.Monday {
		t.Errorf("expected Monday, got %s", p.Timing)
	}
	if !p.AmountEstimate.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected IQR to reject the large purchases, got %s", p.AmountEstimate)
	}
}

func TestAnalyze_CoverageGates(t *testing.T) {
	t.Run("monthly needs six months", func(t *testing.T) {
		a := newTestAnalyzer(t, nil)
		p := a.Analyze([]models.Transaction{
			tx("2025-01-01", "-2000", "Rent"),
			tx("2025-02-01", "-2000", "Rent"),
			tx("2025-03-01", "-2000", "Rent"),
			tx("2025-04-01", "-2000", "Rent"),
			tx("2025-05-01", "-2000", "Rent"),
		})
		if p.Frequency != models.FrequencyIrregular || p.FrequencyConfidence != 0 {
			t.Errorf("expected irregular, got %s (%.2f)", p.Frequency, p.FrequencyConfidence)
		}
	})

	t.Run("six months is enough", func(t *testing.T) {
		a := newTestAnalyzer(t, nil)
		p := a.Analyze([]models.Transaction{
			tx("2025-01-01", "-2000", "Rent"),
			tx("2025-02-01", "-2000", "Rent"),
			tx("2025-03-01", "-2000", "Rent"),
			tx("2025-04-01", "-2000", "Rent"),
			tx("2025-05-01", "-2000", "Rent"),
			tx("2025-06-01", "-2000", "Rent"),
		})
		if p.Frequency != models.FrequencyMonthly {
			t.Errorf("expected monthly, got %s", p.Frequency)
		}
		if p.Timing.String() != "1st" {
			t.Errorf("expected 1st, got %s", p.Timing)
		}
	})

	t.Run("weekly needs four transactions", func(t *testing.T) {
		a := newTestAnalyzer(t, nil)
		p := a.Analyze([]models.Transaction{
			tx("2025-06-02", "-50", "Lunch"),
			tx("2025-06-09", "-50", "Lunch"),
			tx("2025-06-16", "-50", "Lunch"),
		})
		if p.Frequency != models.FrequencyIrregular {
			t.Errorf("expected irregular, got %s", p.Frequency)
		}
	})
}

func TestAnalyze_DailyWeeklySums(t *testing.T) {
	var txns []models.Transaction
	for d := day("2025-03-03"); !d.After(day("2025-03-28")); d = d.AddDate(0, 0, 1) {
		if models.IsWeekday(d) {
			txns = append(txns, models.NewTransaction(d, decimal.NewFromInt(-10), "Coffee"))
		}
	}

	a := newTestAnalyzer(t, func(c *Config) { c.DailyWeeklyRollUp = true })
	p := a.Analyze(txns)

	if p.Frequency != models.FrequencyDaily {
		t.Fatalf("expected daily, got %s", p.Frequency)
	}
	if p.Timing.DailyMode != models.DailyWeekdays {
		t.Errorf("expected weekdays, got %s", p.Timing)
	}
	if p.Method != models.MethodWeeklySumWeighted || !p.AmountEstimate.Equal(decimal.NewFromInt(-50)) {
		t.Errorf("expected weekly sum -50, got %s (%s)", p.AmountEstimate, p.Method)
	}
	if !p.DailyWeekly {
		t.Error("expected daily_weekly flag")
	}
}

func TestAnalyze_DailyAllDays(t *testing.T) {
	var txns []models.Transaction
	for d := day("2025-03-01"); !d.After(day("2025-03-21")); d = d.AddDate(0, 0, 1) {
		txns = append(txns, models.NewTransaction(d, decimal.NewFromInt(-5), "Parking"))
	}

	p := newTestAnalyzer(t, nil).Analyze(txns)

	if p.Timing == nil || p.Timing.DailyMode != models.DailyAllDays {
		t.Errorf("expected all_days, got %s", p.Timing)
	}
}

func TestAnalyze_IQRRejectsOutlier(t *testing.T) {
	a := newTestAnalyzer(t, nil)
	p := a.Analyze([]models.Transaction{
		tx("2025-05-05", "100", "Supplier"),
		tx("2025-05-12", "102", "Supplier"),
		tx("2025-05-19", "98", "Supplier"),
		tx("2025-05-26", "101", "Supplier"),
		tx("2025-06-02", "99", "Supplier"),
		tx("2025-06-09", "180", "Supplier"),
	})

	if p.Frequency != models.FrequencyWeekly {
		t.Fatalf("expected weekly, got %s", p.Frequency)
	}
	if !p.AmountEstimate.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected 100, got %s", p.AmountEstimate)
	}
	if p.SampleCount != 6 {
		t.Errorf("expected 6 samples, got %d", p.SampleCount)
	}
}

func TestAnalyze_SubCentAmountsStayWithinObservedRange(t *testing.T) {
	tests := []struct {
		name    string
		amounts [3]string
		want    string
	}{
		{"identical deposits", [3]string{"1.005", "1.005", "1.005"}, "1.005"},
		{"identical withdrawals", [3]string{"-1.005", "-1.005", "-1.005"}, "-1.005"},
		{"mean rounds above max", [3]string{"1.004", "1.006", "1.005"}, "1.006"},
		{"mean rounds inside range", [3]string{"1.001", "1.02", "1.005"}, "1.01"},
	}

	a := newTestAnalyzer(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := a.Analyze([]models.Transaction{
				tx("2025-06-10", tt.amounts[0], "Interest"),
				tx("2025-06-24", tt.amounts[1], "Interest"),
				tx("2025-07-08", tt.amounts[2], "Interest"),
			})

			if p.Frequency != models.FrequencyBiWeekly {
				t.Fatalf("expected bi_weekly, got %s", p.Frequency)
			}
			if !p.AmountEstimate.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("expected %s, got %s", tt.want, p.AmountEstimate)
			}
		})
	}
}

func TestAnalyze_AmountConfidence(t *testing.T) {
	var txns []models.Transaction
	for d := day("2025-01-06"); len(txns) < 24; d = d.AddDate(0, 0, 7) {
		txns = append(txns, models.NewTransaction(d, decimal.NewFromInt(-250), "Payroll tax"))
	}

	p := newTestAnalyzer(t, nil).Analyze(txns)

	if math.Abs(p.AmountConfidence-0.95) > 1e-9 {
		t.Errorf("expected amount confidence 0.95, got %.4f", p.AmountConfidence)
	}
	if p.Forecastability <= 0.7 {
		t.Errorf("expected high forecastability, got %.2f", p.Forecastability)
	}
}

func TestAnalyze_TimingOverride(t *testing.T) {
	a := newTestAnalyzer(t, func(c *Config) {
		c.TimingOverrides = map[string]TimingOverride{"Payroll": {Weekday: "friday"}}
	})
	p := a.Analyze([]models.Transaction{
		tx("2025-06-10", "44500", "Payroll"),
		tx("2025-06-24", "44800", "Payroll"),
		tx("2025-07-08", "44200", "Payroll"),
	})

	if p.Timing.Weekday != time.Friday || !p.Timing.Override {
		t.Errorf("expected overridden Friday timing, got %+v", p.Timing)
	}

	other := a.Analyze([]models.Transaction{
		tx("2025-06-10", "10", "Other"),
		tx("2025-06-24", "10", "Other"),
		tx("2025-07-08", "10", "Other"),
	})
	if other.Timing.Override {
		t.Error("override must only apply to its vendor group")
	}
}

func TestAnalyzeGroup_NamesPatternAndSelectsOverride(t *testing.T) {
	a := newTestAnalyzer(t, func(c *Config) {
		c.TimingOverrides = map[string]TimingOverride{"Payroll": {Weekday: "friday"}}
	})
	txns := []models.Transaction{
		tx("2025-06-10", "44500", "GUSTO PAYROLL 0610"),
		tx("2025-06-24", "44800", "GUSTO PAYROLL 0624"),
		tx("2025-07-08", "44200", "GUSTO PAYROLL 0708"),
	}

	p := a.AnalyzeGroup("Payroll", txns)

	if p.VendorGroup != "Payroll" {
		t.Errorf("expected vendor group Payroll, got %q", p.VendorGroup)
	}
	if p.Timing == nil || p.Timing.Weekday != time.Friday || !p.Timing.Override {
		t.Errorf("expected the Payroll override to apply, got %+v", p.Timing)
	}

	if got := a.Analyze(txns); got.VendorGroup == "Payroll" || (got.Timing != nil && got.Timing.Override) {
		t.Errorf("Analyze should fall back to the transaction group, got %q %+v", got.VendorGroup, got.Timing)
	}
}

func TestModalWeekday_TieBreak(t *testing.T) {
	tests := []struct {
		name  string
		dates []string
		want  time.Weekday
	}{
		{"monday beats tuesday", []string{"2025-06-10", "2025-06-17", "2025-06-09", "2025-06-16"}, time.Monday},
		{"saturday beats sunday", []string{"2025-06-15", "2025-06-14"}, time.Saturday},
		{"clear winner", []string{"2025-06-11", "2025-06-18", "2025-06-09"}, time.Wednesday},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var txns []models.Transaction
			for _, d := range tt.dates {
				txns = append(txns, tx(d, "1", "x"))
			}
			if got := modalWeekday(txns); got != tt.want {
				t.Errorf("modalWeekday = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestModalBandDay(t *testing.T) {
	tests := []struct {
		name  string
		dates []string
		want  int
	}{
		{"earliest band wins tie", []string{"2025-01-03", "2025-02-04", "2025-03-12", "2025-04-14"}, 3},
		{"jitter absorbed", []string{"2025-01-14", "2025-02-15", "2025-03-16", "2025-04-28"}, 15},
		{"month end band", []string{"2025-01-31", "2025-02-28", "2025-03-31"}, 31},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var txns []models.Transaction
			for _, d := range tt.dates {
				txns = append(txns, tx(d, "1", "x"))
			}
			if got := modalBandDay(txns); got != tt.want {
				t.Errorf("modalBandDay = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestForecastabilityWeights(t *testing.T) {
	irregular := models.Pattern{Frequency: models.FrequencyIrregular, AmountConfidence: 0.5}
	if got := forecastability(irregular, 1); math.Abs(got-0.8) > 1e-9 {
		t.Errorf("irregular forecastability = %.4f, want 0.8", got)
	}

	regular := models.Pattern{Frequency: models.FrequencyMonthly, FrequencyConfidence: 1, AmountConfidence: 0.5}
	if got := forecastability(regular, 0); math.Abs(got-0.65) > 1e-9 {
		t.Errorf("regular forecastability = %.4f, want 0.65", got)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"zero lookback", func(c *Config) { c.LookbackDays = 0 }, true},
		{"multiplier too small", func(c *Config) { c.LargeMultiplier = 1 }, true},
		{"share above one", func(c *Config) { c.DailyWeekdayShare = 1.5 }, true},
		{"bad override", func(c *Config) {
			c.TimingOverrides = map[string]TimingOverride{"x": {Weekday: "someday"}}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
