// Package analyzer classifies a vendor group's transaction history into a
// recurrence Pattern.
//
// Classification runs in three independent passes over the lookback window:
//  1. Frequency: consecutive-date gaps are bucketed (daily, weekly,
//     bi-weekly, monthly, quarterly) and the dominant bucket wins. When the
//     amounts contain a cluster of "large" transactions (above twice the
//     median absolute amount) that cluster is classified first so that
//     incidental fees do not drown out the real cadence.
//  2. Timing: the favored weekday (weekly, bi-weekly), day-of-month band
//     (monthly) or weekday share (daily).
//  3. Amount: a frequency-dependent, outlier-resistant estimate together
//     with a confidence derived from its coefficient of variation.
//
// The analyzer holds no mutable state. Per-vendor timing overrides are part
// of Config, so one Analyzer can be shared by goroutines working on
// different vendor groups.
//
// Example usage:
//
//	config := analyzer.DefaultConfig()
//	config.LookbackDays = 365
//
//	a, err := analyzer.NewAnalyzer(config)
//	if err != nil {
//		return err
//	}
//	pattern := a.Analyze(transactions)
package analyzer

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cashflow-forecast-service/internal/models"
)

// Config holds the thresholds used by the analyzer.
//
// Use DefaultConfig() and adjust individual fields. Validate() is called by
// NewAnalyzer.
type Config struct {
	// LookbackDays bounds the history considered, counted back from AsOf.
	LookbackDays int `json:"lookback_days" mapstructure:"lookback_days"`

	// AsOf is the analysis date. Zero means the date of the latest transaction.
	AsOf time.Time `json:"as_of,omitempty" mapstructure:"-"`

	// MinTransactions below which a series is irregular outright.
	MinTransactions int `json:"min_transactions" mapstructure:"min_transactions"`

	// LargeMultiplier times the median absolute amount defines a "large" transaction.
	LargeMultiplier float64 `json:"large_multiplier" mapstructure:"large_multiplier"`

	// LargeSubsetMinConfidence is the frequency confidence the large subset
	// must reach before the full set is ignored.
	LargeSubsetMinConfidence float64 `json:"large_subset_min_confidence" mapstructure:"large_subset_min_confidence"`

	// MinBucketShare is the score the winning gap bucket needs; below it the
	// series is irregular.
	MinBucketShare float64 `json:"min_bucket_share" mapstructure:"min_bucket_share"`

	// BiWeeklyMonthlyCredit weights monthly-interval gaps as evidence for a
	// bi-weekly cadence with skipped cycles.
	BiWeeklyMonthlyCredit float64 `json:"bi_weekly_monthly_credit" mapstructure:"bi_weekly_monthly_credit"`

	MinMonthsForMonthly   int `json:"min_months_for_monthly" mapstructure:"min_months_for_monthly"`
	MinTransactionsWeekly int `json:"min_transactions_weekly" mapstructure:"min_transactions_weekly"`

	// DailyWeekdayShare is the Mon-Fri share above which daily timing is "weekdays".
	DailyWeekdayShare float64 `json:"daily_weekday_share" mapstructure:"daily_weekday_share"`

	// DailyWeeklyRollUp flags daily patterns for one Monday roll-up event per week.
	DailyWeeklyRollUp bool `json:"daily_weekly_roll_up" mapstructure:"daily_weekly_roll_up"`

	// IrregularRecentDays is the trailing window averaged for irregular series.
	IrregularRecentDays int `json:"irregular_recent_days" mapstructure:"irregular_recent_days"`

	// SufficiencySamples is the sample count at which amount confidence is no
	// longer scaled down.
	SufficiencySamples int `json:"sufficiency_samples" mapstructure:"sufficiency_samples"`

	// TimingOverrides pins the timing of specific vendor groups.
	TimingOverrides map[string]TimingOverride `json:"timing_overrides,omitempty" mapstructure:"-"`
}

// TimingOverride pins the weekday or day-of-month of a vendor group. Only
// the field matching the detected frequency is applied.
type TimingOverride struct {
	Weekday string `json:"weekday,omitempty" yaml:"weekday,omitempty"`
	Day     int    `json:"day,omitempty" yaml:"day,omitempty"`
}

// DefaultConfig returns the standard analyzer configuration
func DefaultConfig() *Config {
	return &Config{
		LookbackDays:             180,
		MinTransactions:          3,
		LargeMultiplier:          2.0,
		LargeSubsetMinConfidence: 0.6,
		MinBucketShare:           0.5,
		BiWeeklyMonthlyCredit:    0.5,
		MinMonthsForMonthly:      6,
		MinTransactionsWeekly:    4,
		DailyWeekdayShare:        0.8,
		IrregularRecentDays:      90,
		SufficiencySamples:       24,
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.LookbackDays <= 0 {
		return fmt.Errorf("lookback days must be positive, got %d", c.LookbackDays)
	}
	if c.MinTransactions < 2 {
		return fmt.Errorf("min transactions must be at least 2, got %d", c.MinTransactions)
	}
	if c.LargeMultiplier <= 1 {
		return fmt.Errorf("large multiplier must be greater than 1, got %.2f", c.LargeMultiplier)
	}
	for name, v := range map[string]float64{
		"large subset min confidence": c.LargeSubsetMinConfidence,
		"min bucket share":            c.MinBucketShare,
		"bi-weekly monthly credit":    c.BiWeeklyMonthlyCredit,
		"daily weekday share":         c.DailyWeekdayShare,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %.2f", name, v)
		}
	}
	if c.MinMonthsForMonthly < 1 || c.MinTransactionsWeekly < 1 {
		return fmt.Errorf("coverage gates must be positive")
	}
	if c.IrregularRecentDays <= 0 {
		return fmt.Errorf("irregular recent days must be positive, got %d", c.IrregularRecentDays)
	}
	if c.SufficiencySamples <= 0 {
		return fmt.Errorf("sufficiency samples must be positive, got %d", c.SufficiencySamples)
	}
	for group, o := range c.TimingOverrides {
		if err := o.Validate(); err != nil {
			return fmt.Errorf("timing override for %s: %w", group, err)
		}
	}
	return nil
}

// Validate checks that the override names a weekday or a day of month
func (o TimingOverride) Validate() error {
	if o.Weekday == "" && o.Day == 0 {
		return fmt.Errorf("either weekday or day is required")
	}
	if o.Weekday != "" {
		if _, err := ParseWeekday(o.Weekday); err != nil {
			return err
		}
	}
	if o.Day < 0 || o.Day > 31 {
		return fmt.Errorf("day must be between 1 and 31, got %d", o.Day)
	}
	return nil
}

// timingFor applies the override to a detected frequency. It returns nil
// when the override has nothing for that frequency.
func (o TimingOverride) timingFor(freq models.Frequency) *models.Timing {
	switch freq {
	case models.FrequencyWeekly, models.FrequencyBiWeekly:
		if wd, err := ParseWeekday(o.Weekday); err == nil {
			t := models.WeekdayTiming(wd)
			t.Override = true
			return t
		}
	case models.FrequencyMonthly:
		if o.Day > 0 {
			t := models.DayOfMonthTiming(o.Day)
			t.Override = true
			return t
		}
	}
	return nil
}

// ParseWeekday accepts full or three-letter English weekday names
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		name := strings.ToLower(wd.String())
		if s == name || s == name[:3] {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday '%s'", s)
}

type timingOverrideFile struct {
	Overrides map[string]TimingOverride `yaml:"timing_overrides"`
}

// LoadTimingOverrides reads a YAML file of the form
//
//	timing_overrides:
//	  payroll: {weekday: friday}
//	  rent: {day: 1}
func LoadTimingOverrides(path string) (map[string]TimingOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read timing overrides: %w", err)
	}

	var file timingOverrideFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse timing overrides %s: %w", path, err)
	}

	for group, o := range file.Overrides {
		if err := o.Validate(); err != nil {
			return nil, fmt.Errorf("timing override for %s: %w", group, err)
		}
	}
	return file.Overrides, nil
}
