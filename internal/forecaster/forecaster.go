// Package forecaster runs the forecast pipeline for a set of vendor groups.
//
// For each group the orchestrator loads history from a TransactionProvider,
// detects a pattern, projects it onto the calendar, applies manual overrides
// from an OverrideStore and finally buckets every group's events into weekly
// summaries. Groups are independent, so they are processed concurrently up
// to Config.MaxConcurrency.
//
// Example usage:
//
//	orch, err := forecaster.NewOrchestrator(store, store, analyzer.DefaultConfig(), forecaster.DefaultConfig())
//	orch.AddProgressCallback(func(p forecaster.Progress) {
//		fmt.Printf("%.0f%% %s\n", p.PercentComplete, p.CurrentGroup)
//	})
//	result, err := orch.ForecastAll(ctx, forecaster.Request{AsOf: today})
package forecaster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"cashflow-forecast-service/internal/aggregator"
	"cashflow-forecast-service/internal/analyzer"
	"cashflow-forecast-service/internal/calendar"
	"cashflow-forecast-service/internal/models"
	"cashflow-forecast-service/internal/overrides"
	"cashflow-forecast-service/pkg/errors"
	"cashflow-forecast-service/pkg/logger"
)

// TransactionProvider supplies the history of a vendor group
type TransactionProvider interface {
	Transactions(ctx context.Context, group string, since time.Time) ([]models.Transaction, error)
	VendorGroups(ctx context.Context) ([]string, error)
}

// OverrideStore supplies the manual overrides of a vendor group whose
// target date lies in [from, to]
type OverrideStore interface {
	Overrides(ctx context.Context, group string, from, to time.Time) ([]models.Override, error)
}

// Request describes one forecast run
type Request struct {
	// AsOf is the analysis date. Zero means today.
	AsOf time.Time
	// StartDate defaults to the day after AsOf.
	StartDate time.Time
	// EndDate defaults to StartDate plus Config.HorizonWeeks weeks.
	EndDate time.Time
	// Groups restricts the run. Empty means every group the provider knows.
	Groups []string
	// ReferenceDates pins the bi-weekly phase of a group to a known
	// occurrence. Groups not listed use their last observed transaction.
	ReferenceDates map[string]time.Time
}

// GroupForecast is the pipeline output for one vendor group
type GroupForecast struct {
	VendorGroup      string                  `json:"vendor_group"`
	Pattern          models.Pattern          `json:"pattern"`
	Events           []models.ForecastEvent  `json:"events"`
	Applied          []models.Override       `json:"applied_overrides,omitempty"`
	Unmatched        []models.Override       `json:"unmatched_overrides,omitempty"`
	TransactionCount int                     `json:"transaction_count"`
	SkippedRecords   []*errors.ForecastError `json:"-"`
}

// Result contains the merged output of a run
type Result struct {
	AsOf      time.Time               `json:"as_of"`
	StartDate time.Time               `json:"start_date"`
	EndDate   time.Time               `json:"end_date"`
	Groups    []*GroupForecast        `json:"groups"`
	Events    []models.ForecastEvent  `json:"events"`
	Weekly    []models.WeeklySummary  `json:"weekly"`
	Truncated []models.ForecastEvent  `json:"truncated,omitempty"`
	Errors    []*errors.ForecastError `json:"-"`
	Duration  time.Duration           `json:"duration"`
}

// Patterns returns the detected pattern of every group in run order
func (r *Result) Patterns() []models.Pattern {
	patterns := make([]models.Pattern, 0, len(r.Groups))
	for _, g := range r.Groups {
		patterns = append(patterns, g.Pattern)
	}
	return patterns
}

// Run converts the result into a persistable forecast run
func (r *Result) Run() models.ForecastRun {
	return models.ForecastRun{
		AsOf:      r.AsOf,
		StartDate: r.StartDate,
		EndDate:   r.EndDate,
		Patterns:  r.Patterns(),
		Events:    r.Events,
	}
}

// Progress tracks the progress of a multi-group run
type Progress struct {
	TotalGroups     int           `json:"total_groups"`
	CompletedGroups int           `json:"completed_groups"`
	FailedGroups    int           `json:"failed_groups"`
	CurrentGroup    string        `json:"current_group"`
	PercentComplete float64       `json:"percent_complete"`
	ElapsedTime     time.Duration `json:"elapsed_time"`
}

// ProgressCallback is called after each group finishes
type ProgressCallback func(Progress)

// Orchestrator runs the forecast pipeline over vendor groups
type Orchestrator struct {
	transactions   TransactionProvider
	overrides      OverrideStore
	analyzerConfig *analyzer.Config
	config         *Config
	logger         logger.Logger
	now            func() time.Time

	progressCallbacks []ProgressCallback
	progress          Progress
	progressMutex     sync.Mutex
}

// NewOrchestrator creates an orchestrator. overrideStore may be nil when no
// overrides are kept.
func NewOrchestrator(
	provider TransactionProvider,
	overrideStore OverrideStore,
	analyzerConfig *analyzer.Config,
	config *Config,
) (*Orchestrator, error) {
	if provider == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "transaction_provider", nil, nil).
			WithSuggestion("Provide a transaction provider such as a storage.MemoryStore")
	}
	if analyzerConfig == nil {
		analyzerConfig = analyzer.DefaultConfig()
	}
	if err := analyzerConfig.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "analyzer", nil, err)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "forecaster", nil, err)
	}

	log := logger.GetGlobalLogger().WithComponent("forecaster")
	log.WithFields(logger.Fields{
		"lookback_days":   config.LookbackDays,
		"max_concurrency": config.MaxConcurrency,
		"error_policy":    config.ErrorPolicy,
	}).Debug("Forecast orchestrator created")

	return &Orchestrator{
		transactions:   provider,
		overrides:      overrideStore,
		analyzerConfig: analyzerConfig,
		config:         config,
		logger:         log,
		now:            time.Now,
	}, nil
}

// AddProgressCallback adds a progress callback function
func (o *Orchestrator) AddProgressCallback(callback ProgressCallback) {
	o.progressMutex.Lock()
	defer o.progressMutex.Unlock()
	o.progressCallbacks = append(o.progressCallbacks, callback)
}

// normalize fills defaulted request dates and checks the window
func (o *Orchestrator) normalize(req Request) (Request, error) {
	if req.AsOf.IsZero() {
		req.AsOf = o.now()
	}
	req.AsOf = models.DateOnly(req.AsOf)

	if req.StartDate.IsZero() {
		req.StartDate = req.AsOf.AddDate(0, 0, 1)
	}
	req.StartDate = models.DateOnly(req.StartDate)

	if req.EndDate.IsZero() {
		req.EndDate = req.StartDate.AddDate(0, 0, 7*o.config.HorizonWeeks-1)
	}
	req.EndDate = models.DateOnly(req.EndDate)

	if req.EndDate.Before(req.StartDate) {
		return req, errors.ValidationError(errors.CodeOutOfRange, "end_date", req.EndDate.Format(models.DateLayout),
			fmt.Errorf("end date %s is before start date %s",
				req.EndDate.Format(models.DateLayout), req.StartDate.Format(models.DateLayout))).
			WithSuggestion("Pass an end date on or after the start date")
	}
	return req, nil
}

// ForecastGroup runs the pipeline for a single vendor group
func (o *Orchestrator) ForecastGroup(ctx context.Context, group string, req Request) (*GroupForecast, error) {
	req, err := o.normalize(req)
	if err != nil {
		return nil, err
	}
	return o.forecastGroup(ctx, group, req)
}

func (o *Orchestrator) forecastGroup(ctx context.Context, group string, req Request) (*GroupForecast, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.InternalError(errors.CodeCancelled, "forecast_group", err).WithContext("vendor_group", group)
	}

	op := logger.NewOperationLogger("forecast_group", o.logger.WithGroup(group))
	since := req.AsOf.AddDate(0, 0, -o.config.LookbackDays)

	txns, err := o.transactions.Transactions(ctx, group, since)
	if err != nil {
		return nil, errors.AnalysisError(errors.CodeGroupFailed, group, err).
			WithSuggestion("Check that the transaction store is reachable")
	}

	gf := &GroupForecast{VendorGroup: group}
	op.Step("check_records")
	txns, gf.SkippedRecords, err = o.checkRecords(group, txns)
	if err != nil {
		return nil, err
	}
	gf.TransactionCount = len(txns)

	cfg := *o.analyzerConfig
	cfg.AsOf = req.AsOf
	cfg.LookbackDays = o.config.LookbackDays
	a, err := analyzer.NewAnalyzer(&cfg)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "analyzer", nil, err)
	}

	op.Step("analyze")
	gf.Pattern = a.AnalyzeGroup(group, txns)

	opts := calendar.Options{RollUpDaily: o.config.RollUpDaily}
	if ref, ok := req.ReferenceDates[group]; ok {
		ref = models.DateOnly(ref)
		opts.ReferenceDate = &ref
	} else if gf.Pattern.Frequency == models.FrequencyBiWeekly && !gf.Pattern.LastSeen.IsZero() {
		ref := gf.Pattern.LastSeen
		opts.ReferenceDate = &ref
	}
	op.Step("generate")
	events := calendar.Generate(gf.Pattern, req.StartDate, req.EndDate, opts)

	var pending []models.Override
	if o.overrides != nil {
		pending, err = o.overrides.Overrides(ctx, group, req.StartDate, req.EndDate)
		if err != nil {
			return nil, errors.AnalysisError(errors.CodeGroupFailed, group, err).
				WithSuggestion("Check that the override store is reachable")
		}
	}

	op.Step("resolve_overrides")
	res := overrides.Resolve(events, pending)
	gf.Events = res.Events
	gf.Applied = res.Applied
	gf.Unmatched = res.Unmatched

	if len(gf.Unmatched) > 0 {
		op.Warning(fmt.Sprintf("%d overrides did not match any forecast event", len(gf.Unmatched)))
	}
	op.WithFields(logger.Fields{
		"frequency":       gf.Pattern.Frequency,
		"confidence":      gf.Pattern.FrequencyConfidence,
		"events":          len(gf.Events),
		"transactions":    gf.TransactionCount,
		"forecastability": gf.Pattern.Forecastability,
	}).Success("Vendor group forecast")

	return gf, nil
}

// checkRecords drops malformed records under the skip policy and fails on
// the first one under the abort policy.
func (o *Orchestrator) checkRecords(group string, txns []models.Transaction) ([]models.Transaction, []*errors.ForecastError, error) {
	valid := make([]models.Transaction, 0, len(txns))
	var skipped []*errors.ForecastError

	for _, t := range txns {
		if err := t.Validate(); err != nil {
			ferr := errors.AnalysisError(errors.CodeMalformedRecord, group, err).
				WithContext("record", t.Identity())
			if o.config.ErrorPolicy == ErrorPolicyAbort {
				return nil, nil, ferr
			}
			skipped = append(skipped, ferr)
			continue
		}
		valid = append(valid, t)
	}

	if len(skipped) > 0 {
		o.logger.WithFields(logger.Fields{
			"vendor_group": group,
			"skipped":      len(skipped),
			"first_record": skipped[0].Context["record"],
		}).Warn("Skipped malformed records")
	}
	return valid, skipped, nil
}

// ForecastAll runs every requested group concurrently and merges the
// results. Under the skip policy a failing group is reported in
// Result.Errors; under the abort policy it cancels the run.
func (o *Orchestrator) ForecastAll(ctx context.Context, req Request) (*Result, error) {
	startTime := time.Now()

	req, err := o.normalize(req)
	if err != nil {
		return nil, err
	}

	groups := req.Groups
	if len(groups) == 0 {
		groups, err = o.transactions.VendorGroups(ctx)
		if err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, "list_vendor_groups", err)
		}
	}
	if o.config.MaxVendorGroups > 0 && len(groups) > o.config.MaxVendorGroups {
		return nil, errors.AnalysisError(errors.CodeBatchLimit, fmt.Sprintf("%d vendor groups", len(groups)),
			fmt.Errorf("limit is %d vendor groups per run", o.config.MaxVendorGroups)).
			WithSuggestion("Narrow the run with --group or raise max_vendor_groups")
	}

	op := logger.NewOperationLogger("forecast_all", o.logger).WithFields(logger.Fields{
		"groups":     len(groups),
		"as_of":      req.AsOf.Format(models.DateLayout),
		"start_date": req.StartDate.Format(models.DateLayout),
		"end_date":   req.EndDate.Format(models.DateLayout),
	})
	tracker := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: "forecast_groups",
		Total:     int64(len(groups)),
		Logger:    o.logger,
	})
	o.resetProgress(len(groups))

	forecasts := make([]*GroupForecast, len(groups))
	failures := make([]*errors.ForecastError, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.MaxConcurrency)

	for i, group := range groups {
		i, group := i, group
		g.Go(func() error {
			gf, err := o.forecastGroup(gctx, group, req)
			tracker.Done(err != nil)
			o.groupDone(group, err != nil, startTime)
			if err == nil {
				forecasts[i] = gf
				return nil
			}

			ferr := errors.WrapIfNeeded(err, errors.CategoryAnalysis, errors.CodeGroupFailed,
				fmt.Sprintf("forecast for vendor group %s failed", group)).WithContext("vendor_group", group)
			if o.config.ErrorPolicy == ErrorPolicyAbort || !errors.IsRecoverable(ferr) {
				return ferr
			}
			failures[i] = ferr
			return nil
		})
	}

	err = g.Wait()
	tracker.Complete(err)
	if err != nil {
		op.Error(err, "Forecast run stopped")
		return nil, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err := errors.InternalError(errors.CodeCancelled, "forecast_all", ctxErr)
		op.Error(err, "Forecast run cancelled")
		return nil, err
	}

	result := &Result{
		AsOf:      req.AsOf,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}
	for i := range groups {
		if failures[i] != nil {
			result.Errors = append(result.Errors, failures[i])
			continue
		}
		gf := forecasts[i]
		result.Groups = append(result.Groups, gf)
		result.Events = append(result.Events, gf.Events...)
		result.Errors = append(result.Errors, gf.SkippedRecords...)
	}
	models.SortEvents(result.Events)

	weeks := (models.DaysBetween(req.StartDate, req.EndDate) + 7) / 7
	agg := aggregator.Aggregate(result.Events, req.StartDate, weeks, aggregator.Options{Truncate: !o.config.ExtendWeeks})
	result.Weekly = agg.Summaries
	result.Truncated = agg.Truncated
	result.Duration = time.Since(startTime)

	op.WithFields(logger.Fields{
		"events":   len(result.Events),
		"weeks":    len(result.Weekly),
		"failures": len(result.Errors),
	}).Success("Forecast run completed")
	return result, nil
}

func (o *Orchestrator) resetProgress(total int) {
	o.progressMutex.Lock()
	defer o.progressMutex.Unlock()
	o.progress = Progress{TotalGroups: total}
}

func (o *Orchestrator) groupDone(group string, failed bool, startTime time.Time) {
	o.progressMutex.Lock()
	defer o.progressMutex.Unlock()

	o.progress.CompletedGroups++
	if failed {
		o.progress.FailedGroups++
	}
	o.progress.CurrentGroup = group
	o.progress.ElapsedTime = time.Since(startTime)
	if o.progress.TotalGroups > 0 {
		o.progress.PercentComplete = float64(o.progress.CompletedGroups) / float64(o.progress.TotalGroups) * 100
	}

	snapshot := o.progress
	for _, callback := range o.progressCallbacks {
		callback(snapshot)
	}
}
