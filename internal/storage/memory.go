package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"cashflow-forecast-service/internal/models"
)

// MemoryStore keeps everything in process memory. It backs tests and
// one-shot CLI runs that read straight from CSV files.
type MemoryStore struct {
	mu           sync.RWMutex
	transactions []models.Transaction
	overrides    map[string]models.Override
	runs         map[string]models.ForecastRun
	now          func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		overrides: make(map[string]models.Override),
		runs:      make(map[string]models.ForecastRun),
		now:       time.Now,
	}
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) SaveTransactions(ctx context.Context, txns []models.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, t := range txns {
		if err := t.Validate(); err != nil {
			return errors.Wrapf(err, "invalid transaction %s", t.Identity())
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range txns {
		t.Date = models.DateOnly(t.Date)
		t.VendorGroup = t.Group()
		m.transactions = append(m.transactions, t)
	}
	return nil
}

func (m *MemoryStore) Transactions(ctx context.Context, group string, since time.Time) ([]models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Transaction
	for _, t := range m.transactions {
		if group != "" && t.VendorGroup != group {
			continue
		}
		if !inWindow(t.Date, since, time.Time{}) {
			continue
		}
		out = append(out, t)
	}
	sortTransactions(out)
	return out, nil
}

func (m *MemoryStore) VendorGroups(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var groups []string
	for _, t := range m.transactions {
		if !seen[t.VendorGroup] {
			seen[t.VendorGroup] = true
			groups = append(groups, t.VendorGroup)
		}
	}
	sort.Strings(groups)
	return groups, nil
}

func (m *MemoryStore) SaveOverride(ctx context.Context, o models.Override) (models.Override, error) {
	if err := ctx.Err(); err != nil {
		return models.Override{}, err
	}
	if err := o.Validate(); err != nil {
		return models.Override{}, errors.Wrap(err, "invalid override")
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = m.now().UTC()
	}
	o.OverrideDate = models.DateOnly(o.OverrideDate)

	m.mu.Lock()
	m.overrides[o.ID] = o
	m.mu.Unlock()
	return o, nil
}

func (m *MemoryStore) Overrides(ctx context.Context, group string, from, to time.Time) ([]models.Override, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Override
	for _, o := range m.overrides {
		if group != "" && o.VendorGroup != group {
			continue
		}
		if !inWindow(o.OverrideDate, from, to) {
			continue
		}
		out = append(out, o)
	}
	sortOverrides(out)
	return out, nil
}

func (m *MemoryStore) SaveForecastRun(ctx context.Context, run models.ForecastRun) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = m.now().UTC()
	}
	run.Patterns = append([]models.Pattern(nil), run.Patterns...)
	run.Events = append([]models.ForecastEvent(nil), run.Events...)

	m.mu.Lock()
	m.runs[run.ID] = run
	m.mu.Unlock()
	return run.ID, nil
}

func (m *MemoryStore) ForecastRun(ctx context.Context, id string) (*models.ForecastRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	run, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "forecast run %s", id)
	}
	return &run, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
