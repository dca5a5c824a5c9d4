package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"cashflow-forecast-service/internal/models"
	"cashflow-forecast-service/pkg/errors"
	"cashflow-forecast-service/pkg/logger"
)

// SQLiteStore is a Store backed by a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger logger.Logger
	now    func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// applies pending migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.StorageError(errors.CodeStorageUnavailable, "create_data_dir", err).
				WithContext("path", dir)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageUnavailable, "open_database", err).
			WithContext("path", dbPath)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.StorageError(errors.CodeStorageUnavailable, "ping_database", err).
			WithContext("path", dbPath)
	}

	log := logger.GetGlobalLogger().WithComponent("storage")
	err = logger.TimedOperation("migrate_schema", log.WithField("path", dbPath), func() error {
		return RunMigrations(dbPath)
	})
	if err != nil {
		db.Close()
		return nil, errors.StorageError(errors.CodeMigrationFailed, "migrate", err).
			WithContext("path", dbPath)
	}
	log.WithField("path", dbPath).Debug("SQLite store ready")

	return &SQLiteStore{db: db, logger: log, now: time.Now}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveTransactions inserts txns in one database transaction. The stored
// vendor group is the transaction's effective group.
func (s *SQLiteStore) SaveTransactions(ctx context.Context, txns []models.Transaction) error {
	if len(txns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StorageError(errors.CodeQueryFailed, "save_transactions", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (date, amount, vendor_name, vendor_group, imported_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.StorageError(errors.CodeQueryFailed, "save_transactions", err)
	}
	defer stmt.Close()

	importedAt := s.now().UTC().Format(time.RFC3339)
	for _, t := range txns {
		if err := t.Validate(); err != nil {
			return errors.ValidationError(errors.CodeInvalidData, "transaction", t.Identity(), err)
		}
		if _, err := stmt.ExecContext(ctx, formatDate(t.Date), t.Amount.String(), t.VendorName, t.Group(), importedAt); err != nil {
			return errors.StorageError(errors.CodeQueryFailed, "save_transactions", err).
				WithContext("record", t.Identity())
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.StorageError(errors.CodeQueryFailed, "save_transactions", err)
	}

	s.logger.WithField("count", len(txns)).Debug("Saved transactions")
	return nil
}

// Transactions returns the history of group (every group when empty) on or
// after since (all history when zero), ordered by date.
func (s *SQLiteStore) Transactions(ctx context.Context, group string, since time.Time) ([]models.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if group != "" {
		where = append(where, "vendor_group = ?")
		args = append(args, group)
	}
	if !since.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, formatDate(since))
	}

	query := "SELECT date, amount, vendor_name, vendor_group FROM transactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "list_transactions", err)
	}
	defer rows.Close()

	var txns []models.Transaction
	for rows.Next() {
		var dateStr, amountStr string
		var t models.Transaction
		if err := rows.Scan(&dateStr, &amountStr, &t.VendorName, &t.VendorGroup); err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, "list_transactions", err)
		}
		if t.Date, err = parseDate(dateStr); err != nil {
			return nil, corrupt("list_transactions", "date", dateStr, err)
		}
		if t.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, corrupt("list_transactions", "amount", amountStr, err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "list_transactions", err)
	}
	return txns, nil
}

// VendorGroups lists every group with stored history, sorted by name.
func (s *SQLiteStore) VendorGroups(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT vendor_group FROM transactions ORDER BY vendor_group")
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "list_vendor_groups", err)
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, "list_vendor_groups", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "list_vendor_groups", err)
	}
	return groups, nil
}

// SaveOverride stores o, assigning an id and creation time when missing.
// Saving an existing id replaces it.
func (s *SQLiteStore) SaveOverride(ctx context.Context, o models.Override) (models.Override, error) {
	if err := o.Validate(); err != nil {
		return models.Override{}, errors.ValidationError(errors.CodeInvalidData, "override", o.VendorGroup, err)
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now().UTC()
	}

	var newDate sql.NullString
	if o.NewDate != nil {
		newDate = sql.NullString{String: formatDate(*o.NewDate), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO overrides
			(id, vendor_group, override_date, override_type, override_amount, new_date, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.VendorGroup, formatDate(o.OverrideDate), string(o.Type), o.Amount.String(),
		newDate, o.Reason, o.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return models.Override{}, errors.StorageError(errors.CodeQueryFailed, "save_override", err).
			WithContext("override_id", o.ID)
	}
	return o, nil
}

// Overrides returns the overrides of group (every group when empty) whose
// target date lies in [from, to]. Zero bounds are open.
func (s *SQLiteStore) Overrides(ctx context.Context, group string, from, to time.Time) ([]models.Override, error) {
	var (
		where []string
		args  []any
	)
	if group != "" {
		where = append(where, "vendor_group = ?")
		args = append(args, group)
	}
	if !from.IsZero() {
		where = append(where, "override_date >= ?")
		args = append(args, formatDate(from))
	}
	if !to.IsZero() {
		where = append(where, "override_date <= ?")
		args = append(args, formatDate(to))
	}

	query := `SELECT id, vendor_group, override_date, override_type, override_amount, new_date, reason, created_at
		FROM overrides`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY override_date, created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "list_overrides", err)
	}
	defer rows.Close()

	var overrides []models.Override
	for rows.Next() {
		var (
			o                            models.Override
			dateStr, kind, amountStr, ts string
			newDate                      sql.NullString
		)
		if err := rows.Scan(&o.ID, &o.VendorGroup, &dateStr, &kind, &amountStr, &newDate, &o.Reason, &ts); err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, "list_overrides", err)
		}
		o.Type = models.OverrideType(kind)
		if o.OverrideDate, err = parseDate(dateStr); err != nil {
			return nil, corrupt("list_overrides", "override_date", dateStr, err)
		}
		if o.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, corrupt("list_overrides", "override_amount", amountStr, err)
		}
		if newDate.Valid {
			d, err := parseDate(newDate.String)
			if err != nil {
				return nil, corrupt("list_overrides", "new_date", newDate.String, err)
			}
			o.NewDate = &d
		}
		if o.CreatedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, corrupt("list_overrides", "created_at", ts, err)
		}
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "list_overrides", err)
	}
	return overrides, nil
}

// SaveForecastRun persists a run with its patterns and events and returns
// the run id.
func (s *SQLiteStore) SaveForecastRun(ctx context.Context, run models.ForecastRun) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.StorageError(errors.CodeQueryFailed, "save_forecast_run", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO forecast_runs (id, created_at, as_of, start_date, end_date) VALUES (?, ?, ?, ?, ?)",
		run.ID, run.CreatedAt.Format(time.RFC3339Nano), formatDate(run.AsOf),
		formatDate(run.StartDate), formatDate(run.EndDate)); err != nil {
		return "", errors.StorageError(errors.CodeQueryFailed, "save_forecast_run", err)
	}

	for _, p := range run.Patterns {
		var timing sql.NullString
		if p.Timing != nil {
			raw, err := json.Marshal(p.Timing)
			if err != nil {
				return "", errors.InternalError(errors.CodeUnexpectedError, "encode_timing", err)
			}
			timing = sql.NullString{String: string(raw), Valid: true}
		}
		var lastSeen sql.NullString
		if !p.LastSeen.IsZero() {
			lastSeen = sql.NullString{String: formatDate(p.LastSeen), Valid: true}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO forecast_patterns
				(run_id, vendor_group, frequency, frequency_confidence, timing, amount_estimate,
				 amount_confidence, method, forecastability, sample_count, used_large_subset,
				 daily_weekly, last_seen)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, p.VendorGroup, string(p.Frequency), p.FrequencyConfidence, timing,
			p.AmountEstimate.String(), p.AmountConfidence, string(p.Method), p.Forecastability,
			p.SampleCount, p.UsedLargeSubset, p.DailyWeekly, lastSeen); err != nil {
			return "", errors.StorageError(errors.CodeQueryFailed, "save_forecast_run", err).
				WithContext("vendor_group", p.VendorGroup)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO forecast_events
			(run_id, date, vendor_group, amount, event_type, frequency, confidence, source, override_id, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", errors.StorageError(errors.CodeQueryFailed, "save_forecast_run", err)
	}
	defer stmt.Close()

	for _, e := range run.Events {
		if _, err := stmt.ExecContext(ctx, run.ID, formatDate(e.Date), e.VendorGroup, e.Amount.String(),
			string(e.EventType), string(e.Frequency), e.Confidence, string(e.Source), e.OverrideID, e.Note); err != nil {
			return "", errors.StorageError(errors.CodeQueryFailed, "save_forecast_run", err).
				WithContext("event", e.String())
		}
	}

	if err := tx.Commit(); err != nil {
		return "", errors.StorageError(errors.CodeQueryFailed, "save_forecast_run", err)
	}

	s.logger.WithFields(logger.Fields{
		"run_id":   run.ID,
		"patterns": len(run.Patterns),
		"events":   len(run.Events),
	}).Info("Saved forecast run")
	return run.ID, nil
}

// ForecastRun loads a saved run. A missing id yields an error wrapping
// ErrNotFound.
func (s *SQLiteStore) ForecastRun(ctx context.Context, id string) (*models.ForecastRun, error) {
	run := &models.ForecastRun{ID: id}

	var created, asOf, start, end string
	err := s.db.QueryRowContext(ctx,
		"SELECT created_at, as_of, start_date, end_date FROM forecast_runs WHERE id = ?", id).
		Scan(&created, &asOf, &start, &end)
	if err == sql.ErrNoRows {
		return nil, errors.StorageError(errors.CodeQueryFailed, "load_forecast_run", ErrNotFound).
			WithContext("run_id", id)
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "load_forecast_run", err)
	}
	if run.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, corrupt("load_forecast_run", "created_at", created, err)
	}
	for _, f := range []struct {
		dst *time.Time
		raw string
	}{{&run.AsOf, asOf}, {&run.StartDate, start}, {&run.EndDate, end}} {
		if *f.dst, err = parseDate(f.raw); err != nil {
			return nil, corrupt("load_forecast_run", "date", f.raw, err)
		}
	}

	if run.Patterns, err = s.runPatterns(ctx, id); err != nil {
		return nil, err
	}
	if run.Events, err = s.runEvents(ctx, id); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLiteStore) runPatterns(ctx context.Context, runID string) ([]models.Pattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT vendor_group, frequency, frequency_confidence, timing, amount_estimate, amount_confidence,
		       method, forecastability, sample_count, used_large_subset, daily_weekly, last_seen
		FROM forecast_patterns WHERE run_id = ? ORDER BY vendor_group`, runID)
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "load_forecast_patterns", err)
	}
	defer rows.Close()

	var patterns []models.Pattern
	for rows.Next() {
		var (
			p                      models.Pattern
			freq, method, estimate string
			timing, lastSeen       sql.NullString
		)
		if err := rows.Scan(&p.VendorGroup, &freq, &p.FrequencyConfidence, &timing, &estimate,
			&p.AmountConfidence, &method, &p.Forecastability, &p.SampleCount, &p.UsedLargeSubset,
			&p.DailyWeekly, &lastSeen); err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, "load_forecast_patterns", err)
		}
		if p.Frequency, err = models.ParseFrequency(freq); err != nil {
			return nil, corrupt("load_forecast_patterns", "frequency", freq, err)
		}
		p.Method = models.AmountMethod(method)
		if p.AmountEstimate, err = decimal.NewFromString(estimate); err != nil {
			return nil, corrupt("load_forecast_patterns", "amount_estimate", estimate, err)
		}
		if timing.Valid {
			p.Timing = &models.Timing{}
			if err := json.Unmarshal([]byte(timing.String), p.Timing); err != nil {
				return nil, corrupt("load_forecast_patterns", "timing", timing.String, err)
			}
		}
		if lastSeen.Valid {
			if p.LastSeen, err = parseDate(lastSeen.String); err != nil {
				return nil, corrupt("load_forecast_patterns", "last_seen", lastSeen.String, err)
			}
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "load_forecast_patterns", err)
	}
	return patterns, nil
}

func (s *SQLiteStore) runEvents(ctx context.Context, runID string) ([]models.ForecastEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, vendor_group, amount, event_type, frequency, confidence, source, override_id, note
		FROM forecast_events WHERE run_id = ? ORDER BY date, id`, runID)
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "load_forecast_events", err)
	}
	defer rows.Close()

	var events []models.ForecastEvent
	for rows.Next() {
		var (
			e                                      models.ForecastEvent
			dateStr, amountStr, kind, freq, source string
		)
		if err := rows.Scan(&dateStr, &e.VendorGroup, &amountStr, &kind, &freq, &e.Confidence,
			&source, &e.OverrideID, &e.Note); err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, "load_forecast_events", err)
		}
		e.EventType = models.EventType(kind)
		if e.Frequency, err = models.ParseFrequency(freq); err != nil {
			return nil, corrupt("load_forecast_events", "frequency", freq, err)
		}
		e.Source = models.EventSource(source)
		if e.Date, err = parseDate(dateStr); err != nil {
			return nil, corrupt("load_forecast_events", "date", dateStr, err)
		}
		if e.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, corrupt("load_forecast_events", "amount", amountStr, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "load_forecast_events", err)
	}
	models.SortEvents(events)
	return events, nil
}

func corrupt(operation, column, value string, err error) *errors.ForecastError {
	return errors.StorageError(errors.CodeQueryFailed, operation,
		fmt.Errorf("stored %s %q is unreadable: %w", column, value, err))
}
