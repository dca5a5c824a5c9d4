package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Frequency is the classified recurrence cadence of a vendor group
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyBiWeekly  Frequency = "bi_weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyIrregular Frequency = "irregular"
	// FrequencyOneTime only appears on events inserted by add_occurrence overrides.
	FrequencyOneTime Frequency = "one_time"
)

// String returns the string representation of Frequency
func (f Frequency) String() string {
	return string(f)
}

// IsRecurring reports whether f describes a calendar cadence.
func (f Frequency) IsRecurring() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiWeekly, FrequencyMonthly, FrequencyQuarterly:
		return true
	}
	return false
}

// ParseFrequency parses a frequency name as written in config files
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	if f.IsRecurring() || f == FrequencyIrregular || f == FrequencyOneTime {
		return f, nil
	}
	return "", fmt.Errorf("invalid frequency '%s'", s)
}

// TimingKind says which field of Timing is meaningful
type TimingKind string

const (
	TimingNone       TimingKind = ""
	TimingWeekday    TimingKind = "weekday"
	TimingDayOfMonth TimingKind = "day_of_month"
	TimingDailyMode  TimingKind = "daily_mode"
)

// Daily modes
const (
	DailyWeekdays = "weekdays"
	DailyAllDays  = "all_days"
)

// Timing is the weekday or day-of-month a recurring pattern favors.
type Timing struct {
	Kind      TimingKind   `json:"kind" yaml:"kind"`
	Weekday   time.Weekday `json:"weekday,omitempty" yaml:"-"`
	Day       int          `json:"day,omitempty" yaml:"day,omitempty"`
	DailyMode string       `json:"daily_mode,omitempty" yaml:"daily_mode,omitempty"`
	// Override is set when the timing came from configuration rather than history.
	Override bool `json:"override,omitempty" yaml:"-"`
}

// WeekdayTiming builds a weekday timing
func WeekdayTiming(wd time.Weekday) *Timing {
	return &Timing{Kind: TimingWeekday, Weekday: wd}
}

// DayOfMonthTiming builds a day-of-month timing
func DayOfMonthTiming(day int) *Timing {
	return &Timing{Kind: TimingDayOfMonth, Day: day}
}

// String renders the timing as shown in reports: "Tuesday", "15th", "weekdays".
func (t *Timing) String() string {
	if t == nil {
		return "none"
	}
	switch t.Kind {
	case TimingWeekday:
		return t.Weekday.String()
	case TimingDayOfMonth:
		return Ordinal(t.Day)
	case TimingDailyMode:
		return t.DailyMode
	}
	return "none"
}

// Ordinal formats n as 1st, 2nd, 3rd, 4th, 11th, 21st...
func Ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}

// AmountMethod names how an amount estimate was derived
type AmountMethod string

const (
	MethodWeeklySumWeighted AmountMethod = "weekly_sum_weighted"
	MethodIQRMean           AmountMethod = "iqr_mean"
	MethodLargeMedian       AmountMethod = "large_median"
	MethodWeightedMean      AmountMethod = "weighted_mean"
	MethodRecentMean        AmountMethod = "recent_mean"
	MethodMeanAll           AmountMethod = "mean_all"
	MethodNone              AmountMethod = "none"
)

// Pattern is the result of one analysis of a vendor group's history.
// A new analysis produces a new Pattern; nothing mutates one afterwards.
type Pattern struct {
	VendorGroup         string          `json:"vendor_group"`
	Frequency           Frequency       `json:"frequency"`
	FrequencyConfidence float64         `json:"frequency_confidence"`
	Timing              *Timing         `json:"timing,omitempty"`
	AmountEstimate      decimal.Decimal `json:"amount_estimate"`
	AmountConfidence    float64         `json:"amount_confidence"`
	Method              AmountMethod    `json:"method"`
	Forecastability     float64         `json:"forecastability"`
	SampleCount         int             `json:"sample_count"`
	UsedLargeSubset     bool            `json:"used_large_subset"`
	// DailyWeekly marks a daily pattern whose estimate is a weekly total;
	// the generator rolls it up into one Monday event per week.
	DailyWeekly bool      `json:"daily_weekly,omitempty"`
	LastSeen    time.Time `json:"last_seen,omitempty"`
}

// IsIrregular reports whether no cadence was detected
func (p Pattern) IsIrregular() bool {
	return p.Frequency == FrequencyIrregular || p.Frequency == ""
}

// String returns a one-line description of the pattern
func (p Pattern) String() string {
	return fmt.Sprintf("Pattern{%s: %s (%.2f) timing=%s amount=%s (%.2f, %s)}",
		p.VendorGroup, p.Frequency, p.FrequencyConfidence, p.Timing.String(),
		p.AmountEstimate.StringFixed(2), p.AmountConfidence, p.Method)
}
