// Package testutil generates synthetic vendor transaction histories for tests.
package testutil

import (
	"encoding/csv"
	"math/rand"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"cashflow-forecast-service/internal/models"
)

// SeriesGenerator produces reproducible transaction series with a given cadence.
type SeriesGenerator struct {
	rng *rand.Rand
}

// SeriesParams describes one synthetic series
type SeriesParams struct {
	Vendor    string
	Frequency models.Frequency
	Start     time.Time
	// End bounds the series; occurrences after it are not emitted.
	End    time.Time
	Amount decimal.Decimal
	// AmountJitter is the maximum relative deviation of each amount (0.02 = ±2%).
	AmountJitter float64
	// DateJitterDays is the maximum number of days an occurrence is moved
	// away from its nominal date.
	DateJitterDays int
}

// NewSeriesGenerator creates a generator seeded for reproducible output
func NewSeriesGenerator(seed int64) *SeriesGenerator {
	return &SeriesGenerator{rng: rand.New(rand.NewSource(seed))}
}

// Generate emits the series in date order. Daily series cover weekdays
// only. Each occurrence is placed relative to its nominal date, so jitter
// does not accumulate.
func (g *SeriesGenerator) Generate(params SeriesParams) []models.Transaction {
	var out []models.Transaction
	start := models.DateOnly(params.Start)
	end := models.DateOnly(params.End)

	for k := 0; ; k++ {
		nominal, ok := nominalDate(params.Frequency, start, k)
		if !ok || nominal.After(end) {
			break
		}
		if params.Frequency == models.FrequencyDaily && !models.IsWeekday(nominal) {
			continue
		}

		date := nominal
		if params.DateJitterDays > 0 {
			date = date.AddDate(0, 0, g.rng.Intn(2*params.DateJitterDays+1)-params.DateJitterDays)
		}
		if date.After(end) {
			continue
		}

		out = append(out, models.NewTransaction(date, g.jitterAmount(params.Amount, params.AmountJitter), params.Vendor))
	}
	return out
}

// Noise emits n small transactions spread over [start, end] to simulate fees
// that share a vendor with a recurring payment. Output is date ordered.
func (g *SeriesGenerator) Noise(vendor string, start, end time.Time, n int, maxAmount decimal.Decimal) []models.Transaction {
	span := models.DaysBetween(start, end)
	if span <= 0 || n <= 0 {
		return nil
	}

	out := make([]models.Transaction, 0, n)
	for i := 0; i < n; i++ {
		offset := i * span / n
		amount := maxAmount.Mul(decimal.NewFromFloat(0.5 + g.rng.Float64()/2)).Round(2)
		out = append(out, models.NewTransaction(models.DateOnly(start).AddDate(0, 0, offset), amount, vendor))
	}
	return out
}

func (g *SeriesGenerator) jitterAmount(amount decimal.Decimal, jitter float64) decimal.Decimal {
	if jitter <= 0 {
		return amount
	}
	factor := 1 + (g.rng.Float64()*2-1)*jitter
	return amount.Mul(decimal.NewFromFloat(factor)).Round(2)
}

func nominalDate(freq models.Frequency, start time.Time, k int) (time.Time, bool) {
	switch freq {
	case models.FrequencyDaily:
		return start.AddDate(0, 0, k), true
	case models.FrequencyWeekly:
		return start.AddDate(0, 0, 7*k), true
	case models.FrequencyBiWeekly:
		return start.AddDate(0, 0, 14*k), true
	case models.FrequencyMonthly:
		return start.AddDate(0, k, 0), true
	case models.FrequencyQuarterly:
		return start.AddDate(0, 0, 90*k), true
	}
	return time.Time{}, false
}

// WriteCSV writes transactions as a date,amount,vendor CSV file
func WriteCSV(filename string, txns []models.Transaction) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"date", "amount", "vendor"}); err != nil {
		return err
	}
	for _, t := range txns {
		if err := writer.Write([]string{t.Date.Format(models.DateLayout), t.Amount.StringFixed(2), t.VendorName}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
