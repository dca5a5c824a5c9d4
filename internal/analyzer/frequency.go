package analyzer

import (
	"cashflow-forecast-service/internal/models"
)

// gapBucket is an inclusive range of day gaps that counts as evidence for a frequency.
type gapBucket struct {
	frequency models.Frequency
	minDays   int
	maxDays   int
}

// gapBuckets is ordered; on equal scores the earlier bucket wins.
var gapBuckets = []gapBucket{
	{models.FrequencyDaily, 0, 3},
	{models.FrequencyWeekly, 5, 9},
	{models.FrequencyBiWeekly, 11, 17},
	{models.FrequencyMonthly, 25, 35},
	{models.FrequencyQuarterly, 80, 100},
}

// frequencyResult is the outcome of one classification attempt.
type frequencyResult struct {
	frequency  models.Frequency
	confidence float64
	subset     []models.Transaction
}

func irregularResult(subset []models.Transaction) frequencyResult {
	return frequencyResult{frequency: models.FrequencyIrregular, subset: subset}
}

// detectFrequency classifies the large-transaction subset first and falls
// back to the full series when that subset is absent or not convincing.
func (a *Analyzer) detectFrequency(txns []models.Transaction) (frequencyResult, bool) {
	if len(txns) < a.config.MinTransactions {
		return irregularResult(txns), false
	}

	if large := a.largeSubset(txns); len(large) >= a.config.MinTransactions && len(large) < len(txns) {
		res := a.classify(large)
		if res.frequency != models.FrequencyIrregular && res.confidence >= a.config.LargeSubsetMinConfidence {
			return res, true
		}
	}

	return a.classify(txns), false
}

// largeSubset returns transactions whose absolute amount exceeds
// LargeMultiplier times the median absolute amount.
func (a *Analyzer) largeSubset(txns []models.Transaction) []models.Transaction {
	abs := make([]float64, len(txns))
	for i, t := range txns {
		abs[i] = t.Amount.Abs().InexactFloat64()
	}
	threshold := median(abs) * a.config.LargeMultiplier
	if threshold <= 0 {
		return nil
	}

	var large []models.Transaction
	for i, t := range txns {
		if abs[i] > threshold {
			large = append(large, t)
		}
	}
	return large
}

// classify scores every gap bucket over the distinct transaction dates of
// txns and applies the coverage gates to the winner.
func (a *Analyzer) classify(txns []models.Transaction) frequencyResult {
	if len(txns) < a.config.MinTransactions {
		return irregularResult(txns)
	}

	gaps := dateGaps(txns)
	if len(gaps) == 0 {
		return irregularResult(txns)
	}

	counts := make(map[models.Frequency]int, len(gapBuckets))
	for _, g := range gaps {
		for _, b := range gapBuckets {
			if g >= b.minDays && g <= b.maxDays {
				counts[b.frequency]++
				break
			}
		}
	}

	total := float64(len(gaps))
	best := irregularResult(txns)
	for _, b := range gapBuckets {
		score := float64(counts[b.frequency]) / total
		if b.frequency == models.FrequencyBiWeekly {
			score += a.config.BiWeeklyMonthlyCredit * float64(counts[models.FrequencyMonthly]) / total
		}
		score = clamp01(score)
		if score > best.confidence {
			best = frequencyResult{frequency: b.frequency, confidence: score, subset: txns}
		}
	}

	if best.confidence < a.config.MinBucketShare || !a.passesCoverage(best.frequency, txns) {
		return irregularResult(txns)
	}
	return best
}

func (a *Analyzer) passesCoverage(freq models.Frequency, txns []models.Transaction) bool {
	switch freq {
	case models.FrequencyMonthly:
		return distinctMonths(txns) >= a.config.MinMonthsForMonthly
	case models.FrequencyWeekly:
		return len(txns) >= a.config.MinTransactionsWeekly
	}
	return true
}

// dateGaps returns the day differences between consecutive distinct dates.
// txns must be sorted by date.
func dateGaps(txns []models.Transaction) []int {
	var gaps []int
	for i := 1; i < len(txns); i++ {
		if g := models.DaysBetween(txns[i-1].Date, txns[i].Date); g > 0 {
			gaps = append(gaps, g)
		}
	}
	return gaps
}

func distinctMonths(txns []models.Transaction) int {
	seen := make(map[[2]int]struct{})
	for _, t := range txns {
		seen[[2]int{t.Date.Year(), int(t.Date.Month())}] = struct{}{}
	}
	return len(seen)
}
