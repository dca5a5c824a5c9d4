// Package storage persists transactions, overrides and forecast runs.
package storage

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"cashflow-forecast-service/internal/models"
)

// Store is the persistence surface used by the forecaster and the CLI.
type Store interface {
	SaveTransactions(ctx context.Context, txns []models.Transaction) error
	Transactions(ctx context.Context, group string, since time.Time) ([]models.Transaction, error)
	VendorGroups(ctx context.Context) ([]string, error)

	SaveOverride(ctx context.Context, o models.Override) (models.Override, error)
	Overrides(ctx context.Context, group string, from, to time.Time) ([]models.Override, error)

	SaveForecastRun(ctx context.Context, run models.ForecastRun) (string, error)
	ForecastRun(ctx context.Context, id string) (*models.ForecastRun, error)

	Close() error
}

// ErrNotFound is returned when a lookup by id matches nothing.
var ErrNotFound = errors.New("record not found")

func formatDate(t time.Time) string {
	return t.Format(models.DateLayout)
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(models.DateLayout, s)
}

// inWindow reports whether d lies in [from, to]; a zero bound is open.
func inWindow(d, from, to time.Time) bool {
	if !from.IsZero() && d.Before(models.DateOnly(from)) {
		return false
	}
	if !to.IsZero() && d.After(models.DateOnly(to)) {
		return false
	}
	return true
}

func sortTransactions(txns []models.Transaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].Date.Before(txns[j].Date)
	})
}

func sortOverrides(overrides []models.Override) {
	sort.SliceStable(overrides, func(i, j int) bool {
		if !overrides[i].OverrideDate.Equal(overrides[j].OverrideDate) {
			return overrides[i].OverrideDate.Before(overrides[j].OverrideDate)
		}
		return overrides[i].CreatedAt.Before(overrides[j].CreatedAt)
	})
}
