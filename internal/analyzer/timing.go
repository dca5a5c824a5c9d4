package analyzer

import (
	"sort"
	"time"

	"cashflow-forecast-service/internal/models"
)

// dayBand groups days of month so that a few days of jitter stay in one band.
type dayBand struct {
	first, last int
}

var dayBands = []dayBand{
	{1, 5},
	{6, 10},
	{11, 20},
	{21, 25},
	{26, 31},
}

func (a *Analyzer) detectTiming(freq models.Frequency, subset []models.Transaction) *models.Timing {
	switch freq {
	case models.FrequencyWeekly, models.FrequencyBiWeekly:
		return models.WeekdayTiming(modalWeekday(subset))
	case models.FrequencyMonthly:
		return models.DayOfMonthTiming(modalBandDay(subset))
	case models.FrequencyDaily:
		return a.dailyTiming(subset)
	}
	return nil
}

// modalWeekday returns the most frequent weekday. Ties go to the weekday
// earliest in the ISO week (Monday first).
func modalWeekday(txns []models.Transaction) time.Weekday {
	var counts [7]int
	for _, t := range txns {
		counts[models.ISOWeekdayIndex(t.Date.Weekday())]++
	}

	best := 0
	for i := 1; i < len(counts); i++ {
		if counts[i] > counts[best] {
			best = i
		}
	}
	return time.Weekday((best + 1) % 7)
}

// modalBandDay returns the lower median day of the most populated day band.
// Ties go to the earliest band.
func modalBandDay(txns []models.Transaction) int {
	days := make([][]int, len(dayBands))
	for _, t := range txns {
		d := t.Date.Day()
		for i, b := range dayBands {
			if d >= b.first && d <= b.last {
				days[i] = append(days[i], d)
				break
			}
		}
	}

	best := 0
	for i := 1; i < len(days); i++ {
		if len(days[i]) > len(days[best]) {
			best = i
		}
	}
	if len(days[best]) == 0 {
		return 1
	}

	sort.Ints(days[best])
	return days[best][(len(days[best])-1)/2]
}

func (a *Analyzer) dailyTiming(txns []models.Transaction) *models.Timing {
	weekdays := 0
	for _, t := range txns {
		if models.IsWeekday(t.Date) {
			weekdays++
		}
	}

	mode := models.DailyAllDays
	if len(txns) > 0 && float64(weekdays)/float64(len(txns)) >= a.config.DailyWeekdayShare {
		mode = models.DailyWeekdays
	}
	return &models.Timing{Kind: models.TimingDailyMode, DailyMode: mode}
}
