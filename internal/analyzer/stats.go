package analyzer

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// Float statistics are used for scoring only. Estimates that end up in a
// Pattern are computed in decimal.

func sortedFloats(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	s := sortedFloats(values)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

// quantile uses linear interpolation between closest ranks.
func quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	s := sortedFloats(values)
	pos := q * float64(len(s)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return s[lo]
	}
	return s[lo] + (s[hi]-s[lo])*(pos-float64(lo))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

// coefficientOfVariation returns +Inf when the mean is zero.
func coefficientOfVariation(values []float64) float64 {
	m := math.Abs(mean(values))
	if m == 0 {
		return math.Inf(1)
	}
	return stdDev(values) / m
}

func toFloats(amounts []decimal.Decimal) []float64 {
	out := make([]float64, len(amounts))
	for i, a := range amounts {
		out[i] = a.InexactFloat64()
	}
	return out
}

func decimalMean(amounts []decimal.Decimal) decimal.Decimal {
	if len(amounts) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(amounts[0], amounts[1:]...).Div(decimal.NewFromInt(int64(len(amounts))))
}

func decimalMedian(amounts []decimal.Decimal) decimal.Decimal {
	if len(amounts) == 0 {
		return decimal.Zero
	}
	s := make([]decimal.Decimal, len(amounts))
	copy(s, amounts)
	sort.Slice(s, func(i, j int) bool { return s[i].LessThan(s[j]) })
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return s[mid-1].Add(s[mid]).Div(decimal.NewFromInt(2))
}

// recencyWeights ramps linearly from 0.5 for the oldest value to 1.0 for
// the most recent one.
func recencyWeights(n int) []decimal.Decimal {
	weights := make([]decimal.Decimal, n)
	if n == 1 {
		weights[0] = decimal.NewFromInt(1)
		return weights
	}
	half := decimal.NewFromFloat(0.5)
	span := decimal.NewFromInt(int64(n - 1))
	for i := 0; i < n; i++ {
		weights[i] = half.Add(half.Mul(decimal.NewFromInt(int64(i))).Div(span))
	}
	return weights
}

// recencyWeightedMean expects amounts in chronological order.
func recencyWeightedMean(amounts []decimal.Decimal) decimal.Decimal {
	if len(amounts) == 0 {
		return decimal.Zero
	}
	weights := recencyWeights(len(amounts))
	total := decimal.Zero
	weightSum := decimal.Zero
	for i, a := range amounts {
		total = total.Add(a.Mul(weights[i]))
		weightSum = weightSum.Add(weights[i])
	}
	return total.Div(weightSum)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
