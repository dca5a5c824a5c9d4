package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cashflow-forecast-service/cmd/forecaster/config"
	"cashflow-forecast-service/internal/forecaster"
	"cashflow-forecast-service/internal/reporter"
	"cashflow-forecast-service/pkg/errors"
)

// forecastOptions holds the resolved flag and config values of a forecast run
type forecastOptions struct {
	transactions  []string
	overrides     string
	rulesFile     string
	timingFile    string
	dbPath        string
	asOf          time.Time
	start         time.Time
	end           time.Time
	weeks         int
	lookbackDays  int
	format        string
	csvContent    string
	output        string
	save          bool
	onError       string
	groups        []string
	truncateWeeks bool
	progress      bool
}

// forecastCmd represents the forecast command
var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Forecast future cash movements per vendor group",
	Long: `Forecast detects the recurring pattern of every vendor group, projects it
into dated events over the forecast window, applies manual overrides and
summarises the result per week.

Transactions come from CSV files, from a database filled by 'import', or both.

Examples:
  # Thirteen weeks from tomorrow
  forecaster forecast --transactions ledger.csv

  # Explicit window with overrides and vendor grouping rules
  forecaster forecast --transactions ledger.csv --overrides overrides.csv \
    --rules rules.yaml --start 2025-07-09 --end 2025-10-07

  # From a database, weekly CSV, keeping the run
  forecaster forecast --db forecast.db --format csv --csv-content weekly --save`,

	PreRunE: validateForecastFlags,
	RunE:    runForecast,
}

func init() {
	rootCmd.AddCommand(forecastCmd)

	// Input flags
	forecastCmd.Flags().StringSliceP("transactions", "t", []string{}, "comma-separated transaction CSV files")
	forecastCmd.Flags().String("overrides", "", "override CSV file")
	forecastCmd.Flags().String("rules", "", "vendor grouping rules (YAML)")
	forecastCmd.Flags().String("timing", "", "vendor timing overrides (YAML)")
	forecastCmd.Flags().String("db", "", "SQLite database path (default: in-memory)")
	forecastCmd.Flags().String("date-format", "", "Go layout of CSV dates (default: auto-detect)")

	// Window flags
	forecastCmd.Flags().String("as-of", "", "analysis date YYYY-MM-DD (default: today)")
	forecastCmd.Flags().String("start", "", "forecast start date YYYY-MM-DD (default: day after as-of)")
	forecastCmd.Flags().String("end", "", "forecast end date YYYY-MM-DD (default: start + weeks)")
	forecastCmd.Flags().IntP("weeks", "w", 13, "forecast horizon in weeks when --end is not given")
	forecastCmd.Flags().Int("lookback-days", 180, "days of history analysed")
	forecastCmd.Flags().StringSliceP("group", "g", []string{}, "only forecast these vendor groups")

	// Processing flags
	forecastCmd.Flags().String("on-error", "skip", "malformed records or failing groups: skip, abort")
	forecastCmd.Flags().Int("max-concurrency", 4, "vendor groups analysed in parallel")
	forecastCmd.Flags().Bool("truncate-weeks", false, "drop events outside the requested weeks from the weekly summary")
	forecastCmd.Flags().Bool("progress", false, "show progress indicators")

	// Output flags
	forecastCmd.Flags().StringP("format", "f", "console", "output format: console, json, csv")
	forecastCmd.Flags().String("csv-content", "events", "CSV rows: events, weekly")
	forecastCmd.Flags().StringP("output", "o", "", "output file path (default: stdout)")
	forecastCmd.Flags().Bool("save", false, "store the forecast run in the database")
}

func readForecastOptions() (*forecastOptions, error) {
	opts := &forecastOptions{
		transactions:  viper.GetStringSlice("transactions"),
		overrides:     viper.GetString("overrides"),
		rulesFile:     viper.GetString("rules"),
		timingFile:    viper.GetString("timing"),
		dbPath:        viper.GetString("db"),
		weeks:         viper.GetInt("weeks"),
		lookbackDays:  viper.GetInt("lookback-days"),
		format:        strings.ToLower(viper.GetString("format")),
		csvContent:    viper.GetString("csv-content"),
		output:        viper.GetString("output"),
		save:          viper.GetBool("save"),
		onError:       viper.GetString("on-error"),
		groups:        viper.GetStringSlice("group"),
		truncateWeeks: viper.GetBool("truncate-weeks"),
		progress:      viper.GetBool("progress"),
	}

	var err error
	if opts.asOf, err = parseDateFlag("as-of", viper.GetString("as-of")); err != nil {
		return nil, err
	}
	if opts.start, err = parseDateFlag("start", viper.GetString("start")); err != nil {
		return nil, err
	}
	if opts.end, err = parseDateFlag("end", viper.GetString("end")); err != nil {
		return nil, err
	}
	return opts, nil
}

var currentForecast *forecastOptions

func validateForecastFlags(cmd *cobra.Command, args []string) error {
	opts, err := readForecastOptions()
	if err != nil {
		return err
	}

	if len(opts.transactions) == 0 && opts.dbPath == "" {
		return errors.ValidationError(errors.CodeMissingField, "transactions", nil,
			fmt.Errorf("either --transactions or --db is required"))
	}
	for i, f := range opts.transactions {
		if err := validateFileExists(f, fmt.Sprintf("transaction file %d", i+1)); err != nil {
			return err
		}
	}
	for _, f := range []struct{ path, what string }{
		{opts.overrides, "override file"},
		{opts.rulesFile, "rules file"},
		{opts.timingFile, "timing file"},
	} {
		if f.path == "" {
			continue
		}
		if err := validateFileExists(f.path, f.what); err != nil {
			return err
		}
	}

	if !reporter.OutputFormat(opts.format).IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "format", opts.format,
			fmt.Errorf("valid formats: console, json, csv"))
	}
	if !opts.start.IsZero() && !opts.end.IsZero() && opts.start.After(opts.end) {
		return errors.ValidationError(errors.CodeOutOfRange, "end", opts.end.Format("2006-01-02"),
			fmt.Errorf("start date cannot be after end date"))
	}
	if opts.weeks <= 0 {
		return errors.ValidationError(errors.CodeOutOfRange, "weeks", opts.weeks,
			fmt.Errorf("weeks must be positive"))
	}
	if opts.lookbackDays <= 0 {
		return errors.ValidationError(errors.CodeOutOfRange, "lookback-days", opts.lookbackDays,
			fmt.Errorf("lookback days must be positive"))
	}
	if opts.save && opts.dbPath == "" {
		return errors.ConfigurationError(errors.CodeConfigConflict, "save", true,
			fmt.Errorf("--save needs --db"))
	}
	if opts.output != "" {
		if dir := filepath.Dir(opts.output); dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return errors.FileError(errors.CodeFileNotFound, dir, err).
					WithSuggestion("Create the output directory first")
			}
		}
	}

	currentForecast = opts
	return nil
}

func runForecast(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	opts := currentForecast

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Starting forecast...\n")
		if len(opts.transactions) > 0 {
			fmt.Fprintf(os.Stderr, "Transaction files: %s\n", strings.Join(opts.transactions, ", "))
		}
		if opts.dbPath != "" {
			fmt.Fprintf(os.Stderr, "Database: %s\n", opts.dbPath)
		}
		fmt.Fprintf(os.Stderr, "Output format: %s\n", opts.format)
	}

	classifier, err := config.CreateClassifier(opts.rulesFile)
	if err != nil {
		return err
	}
	analyzerConfig, err := config.CreateAnalyzerConfig(opts.lookbackDays, opts.timingFile)
	if err != nil {
		return err
	}
	forecasterConfig, err := config.CreateForecasterConfig(opts.lookbackDays, opts.weeks, opts.onError, !opts.truncateWeeks)
	if err != nil {
		return err
	}
	if n := viper.GetInt("max-concurrency"); n > 0 {
		forecasterConfig.MaxConcurrency = n
	}
	reportConfig := config.CreateReportConfig(opts.format, opts.csvContent)
	txConfig, err := config.CreateTransactionParserConfig(viper.GetString("date-format"))
	if err != nil {
		return err
	}
	if err := config.ValidateConfig(txConfig, analyzerConfig, forecasterConfig, reportConfig); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "forecast", nil, err)
	}

	store, err := openStore(opts.dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	loaded, err := loadTransactions(ctx, store, opts.transactions, txConfig, classifier)
	if err != nil {
		return err
	}
	applied, err := loadOverrides(ctx, store, opts.overrides)
	if err != nil {
		return err
	}

	orchestrator, err := forecaster.NewOrchestrator(store, store, analyzerConfig, forecasterConfig)
	if err != nil {
		return err
	}
	if opts.progress {
		orchestrator.AddProgressCallback(func(p forecaster.Progress) {
			fmt.Fprintf(os.Stderr, "\r[%d/%d] %s (%.1f%% complete)",
				p.CompletedGroups, p.TotalGroups, p.CurrentGroup, p.PercentComplete)
		})
	}

	result, err := orchestrator.ForecastAll(ctx, forecaster.Request{
		AsOf:      opts.asOf,
		StartDate: opts.start,
		EndDate:   opts.end,
		Groups:    opts.groups,
	})
	if opts.progress {
		fmt.Fprintf(os.Stderr, "\n")
	}
	if err != nil {
		return err
	}

	if err := writeReport(reportConfig, opts.output, result); err != nil {
		return err
	}

	if opts.save {
		runID, err := store.SaveForecastRun(ctx, result.Run())
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Saved forecast run %s\n", runID)
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "\nForecast completed.\n")
		fmt.Fprintf(os.Stderr, "Loaded %d transactions and %d overrides.\n", loaded, applied)
		fmt.Fprintf(os.Stderr, "Forecast %d vendor groups into %d events over %d weeks.\n",
			len(result.Groups), len(result.Events), len(result.Weekly))
		if len(result.Errors) > 0 {
			problems := make([]error, len(result.Errors))
			for i, e := range result.Errors {
				problems[i] = e
			}
			fmt.Fprintf(os.Stderr, "%s\n", FormatValidationErrors(problems))
		}
		fmt.Fprintf(os.Stderr, "Processing time: %v\n", result.Duration)
	}
	return nil
}

// writeReport renders result to path, or stdout when path is empty
func writeReport(reportConfig *reporter.ReportConfig, path string, result *forecaster.Result) error {
	generator, err := reporter.NewSafeReportGenerator(reportConfig, nil)
	if err != nil {
		return err
	}

	output, closeOutput, err := outputFile(path)
	if err != nil {
		return err
	}
	defer closeOutput()

	return generator.GenerateReportSafely(result, output)
}
