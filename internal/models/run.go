package models

import "time"

// ForecastRun is a persisted forecast: the patterns behind it and the
// resolved events it produced.
type ForecastRun struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	AsOf      time.Time       `json:"as_of"`
	StartDate time.Time       `json:"start_date"`
	EndDate   time.Time       `json:"end_date"`
	Patterns  []Pattern       `json:"patterns"`
	Events    []ForecastEvent `json:"events"`
}
