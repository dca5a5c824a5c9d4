package analyzer

import (
	"fmt"
	"sort"
	"time"

	"cashflow-forecast-service/internal/models"
)

// Forecastability blend weights. Irregular series cannot anchor an estimate
// on timing, so macro-consistency carries most of the weight there.
const (
	regularFrequencyWeight = 0.5
	regularAmountWeight    = 0.3
	regularMacroWeight     = 0.2

	irregularAmountWeight = 0.4
	irregularMacroWeight  = 0.6
)

// Analyzer classifies transaction series into Patterns
type Analyzer struct {
	config *Config
}

// NewAnalyzer creates an analyzer with the given configuration
func NewAnalyzer(config *Config) (*Analyzer, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analyzer configuration: %w", err)
	}
	return &Analyzer{config: config}, nil
}

// Config returns the analyzer configuration
func (a *Analyzer) Config() *Config {
	return a.config
}

// Analyze classifies the transactions of one vendor group. The input is not
// modified. An empty or patternless series yields an irregular Pattern with
// zero frequency confidence; Analyze never fails.
func (a *Analyzer) Analyze(txns []models.Transaction) models.Pattern {
	var group string
	if len(txns) > 0 {
		group = txns[0].Group()
	}
	return a.AnalyzeGroup(group, txns)
}

// AnalyzeGroup is Analyze for a caller that already knows the vendor group.
// The group names the Pattern and selects its timing override.
func (a *Analyzer) AnalyzeGroup(group string, txns []models.Transaction) models.Pattern {
	window, asOf := a.lookbackWindow(txns)

	pattern := models.Pattern{
		VendorGroup: group,
		Frequency:   models.FrequencyIrregular,
		SampleCount: len(window),
	}
	if len(window) > 0 {
		pattern.LastSeen = window[len(window)-1].Date
	}

	freq, usedLarge := a.detectFrequency(window)
	pattern.Frequency = freq.frequency
	pattern.FrequencyConfidence = freq.confidence
	pattern.UsedLargeSubset = usedLarge

	if freq.frequency != models.FrequencyIrregular {
		pattern.Timing = a.detectTiming(freq.frequency, freq.subset)
		if o, ok := a.config.TimingOverrides[pattern.VendorGroup]; ok {
			if t := o.timingFor(freq.frequency); t != nil {
				pattern.Timing = t
			}
		}
	}

	amount := a.estimateAmount(freq.frequency, window, freq.subset, asOf)
	pattern.AmountEstimate = amount.value
	pattern.AmountConfidence = amount.confidence
	pattern.Method = amount.method

	pattern.DailyWeekly = freq.frequency == models.FrequencyDaily && a.config.DailyWeeklyRollUp
	pattern.Forecastability = forecastability(pattern, macroConsistency(window))

	return pattern
}

// lookbackWindow returns the date-sorted transactions within LookbackDays of
// the analysis date, and that date.
func (a *Analyzer) lookbackWindow(txns []models.Transaction) ([]models.Transaction, time.Time) {
	sorted := make([]models.Transaction, len(txns))
	copy(sorted, txns)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	asOf := models.DateOnly(a.config.AsOf)
	if a.config.AsOf.IsZero() {
		if len(sorted) == 0 {
			return nil, time.Time{}
		}
		asOf = models.DateOnly(sorted[len(sorted)-1].Date)
	}

	var window []models.Transaction
	for _, t := range sorted {
		age := models.DaysBetween(t.Date, asOf)
		if age >= 0 && age <= a.config.LookbackDays {
			window = append(window, t)
		}
	}
	return window, asOf
}

func forecastability(p models.Pattern, macro float64) float64 {
	if p.IsIrregular() {
		return clamp01(irregularAmountWeight*p.AmountConfidence + irregularMacroWeight*macro)
	}
	return clamp01(regularFrequencyWeight*p.FrequencyConfidence +
		regularAmountWeight*p.AmountConfidence +
		regularMacroWeight*macro)
}
