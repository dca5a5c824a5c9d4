package analyzer

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"cashflow-forecast-service/internal/models"
)

type amountEstimate struct {
	value      decimal.Decimal
	confidence float64
	method     models.AmountMethod
	samples    int
}

// estimateAmount picks the estimator for freq. window is the full lookback
// series, basis the subset the frequency was detected on.
func (a *Analyzer) estimateAmount(freq models.Frequency, window, basis []models.Transaction, asOf time.Time) amountEstimate {
	switch freq {
	case models.FrequencyDaily:
		return a.weeklySumEstimate(window)
	case models.FrequencyWeekly, models.FrequencyBiWeekly, models.FrequencyMonthly, models.FrequencyQuarterly:
		if len(basis) >= 3 {
			return a.iqrEstimate(amountsOf(basis))
		}
		amounts := amountsOf(window)
		return a.finish(recencyWeightedMean(amounts), amounts, models.MethodWeightedMean)
	default:
		return a.irregularEstimate(window, asOf)
	}
}

// weeklySumEstimate sums each ISO week and averages the sums with recency weighting.
func (a *Analyzer) weeklySumEstimate(txns []models.Transaction) amountEstimate {
	if len(txns) == 0 {
		return amountEstimate{value: decimal.Zero, method: models.MethodNone}
	}

	var sums []decimal.Decimal
	var lastYear, lastWeek int
	for i, t := range txns {
		year, week := t.Date.ISOWeek()
		if i == 0 || year != lastYear || week != lastWeek {
			sums = append(sums, decimal.Zero)
			lastYear, lastWeek = year, week
		}
		sums[len(sums)-1] = sums[len(sums)-1].Add(t.Amount)
	}

	return a.finish(recencyWeightedMean(sums), sums, models.MethodWeeklySumWeighted)
}

// iqrEstimate averages the points inside the Tukey fences. If every point is
// outside them it returns the median instead.
func (a *Analyzer) iqrEstimate(amounts []decimal.Decimal) amountEstimate {
	values := toFloats(amounts)
	q1 := quantile(values, 0.25)
	q3 := quantile(values, 0.75)
	iqr := q3 - q1
	lower, upper := q1-1.5*iqr, q3+1.5*iqr

	var inside []decimal.Decimal
	for i, v := range values {
		if v >= lower && v <= upper {
			inside = append(inside, amounts[i])
		}
	}

	if len(inside) == 0 {
		return a.finish(decimalMedian(amounts), amounts, models.MethodLargeMedian)
	}
	return a.finish(decimalMean(inside), inside, models.MethodIQRMean)
}

// irregularEstimate averages the trailing IrregularRecentDays, then all
// transactions, then gives up with zero.
func (a *Analyzer) irregularEstimate(txns []models.Transaction, asOf time.Time) amountEstimate {
	var recent []decimal.Decimal
	for _, t := range txns {
		if models.DaysBetween(t.Date, asOf) < a.config.IrregularRecentDays {
			recent = append(recent, t.Amount)
		}
	}
	if len(recent) > 0 {
		return a.finish(decimalMean(recent), recent, models.MethodRecentMean)
	}

	if len(txns) > 0 {
		all := amountsOf(txns)
		return a.finish(decimalMean(all), all, models.MethodMeanAll)
	}

	return amountEstimate{value: decimal.Zero, method: models.MethodNone}
}

// finish rounds value to cents, kept within the range of the amounts it was
// computed from so sub-cent inputs cannot round past their own extremes.
func (a *Analyzer) finish(value decimal.Decimal, contributing []decimal.Decimal, method models.AmountMethod) amountEstimate {
	rounded := value.Round(2)
	if len(contributing) > 0 {
		lo, hi := decimal.Min(contributing[0], contributing[1:]...), decimal.Max(contributing[0], contributing[1:]...)
		if rounded.LessThan(lo) {
			rounded = lo
		} else if rounded.GreaterThan(hi) {
			rounded = hi
		}
	}
	return amountEstimate{
		value:      rounded,
		confidence: a.amountConfidence(toFloats(contributing)),
		method:     method,
		samples:    len(contributing),
	}
}

// amountConfidence maps the coefficient of variation onto a fixed ladder and
// scales it down for small samples.
func (a *Analyzer) amountConfidence(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var base float64
	switch cv := coefficientOfVariation(values); {
	case cv < 0.1:
		base = 0.95
	case cv < 0.3:
		base = 0.8
	case cv < 0.5:
		base = 0.6
	default:
		base = 0.4
	}

	sufficiency := math.Min(1, float64(len(values))/float64(a.config.SufficiencySamples))
	return base * sufficiency
}

// macroConsistency scores how stable monthly and quarterly totals are:
// 1 - CV of the totals, averaged over whichever of the two has at least two periods.
func macroConsistency(txns []models.Transaction) float64 {
	monthly := periodTotals(txns, func(t time.Time) int { return t.Year()*12 + int(t.Month()) - 1 })
	quarterly := periodTotals(txns, func(t time.Time) int { return t.Year()*4 + (int(t.Month())-1)/3 })

	var scores []float64
	for _, totals := range [][]float64{monthly, quarterly} {
		if len(totals) >= 2 {
			scores = append(scores, clamp01(1-coefficientOfVariation(totals)))
		}
	}
	return mean(scores)
}

// periodTotals sums amounts per period key, including empty periods between
// the first and last one.
func periodTotals(txns []models.Transaction, key func(time.Time) int) []float64 {
	if len(txns) == 0 {
		return nil
	}
	first := key(txns[0].Date)
	last := key(txns[len(txns)-1].Date)
	totals := make([]float64, last-first+1)
	for _, t := range txns {
		totals[key(t.Date)-first] += t.Amount.InexactFloat64()
	}
	return totals
}

func amountsOf(txns []models.Transaction) []decimal.Decimal {
	out := make([]decimal.Decimal, len(txns))
	for i, t := range txns {
		out[i] = t.Amount
	}
	return out
}
