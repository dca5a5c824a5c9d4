package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"cashflow-forecast-service/cmd/forecaster/config"
	"cashflow-forecast-service/internal/grouping"
	"cashflow-forecast-service/internal/models"
	"cashflow-forecast-service/internal/parsers"
	"cashflow-forecast-service/internal/storage"
	"cashflow-forecast-service/pkg/errors"
	"cashflow-forecast-service/pkg/logger"
)

// openStore opens the SQLite database at dbPath, or an in-memory store when
// no path is given.
func openStore(dbPath string) (storage.Store, error) {
	if dbPath == "" {
		return storage.NewMemoryStore(), nil
	}
	return storage.NewSQLiteStore(dbPath)
}

// loadTransactions parses the transaction files, assigns vendor groups and
// saves the result into store. It returns the number of transactions saved.
func loadTransactions(ctx context.Context, store storage.Store, files []string,
	txConfig *parsers.TransactionParserConfig, classifier *grouping.Classifier) (int, error) {
	if len(files) == 0 {
		return 0, nil
	}

	parser, err := parsers.NewTransactionParser(txConfig)
	if err != nil {
		return 0, err
	}

	results, err := parser.ParseTransactionFiles(ctx, files, viper.GetInt("max-concurrency"))
	if err != nil {
		return 0, err
	}
	for _, r := range results {
		reportParseProblems(r.Stats)
	}

	txns := classifier.Assign(parsers.MergeResults(results))
	if err := store.SaveTransactions(ctx, txns); err != nil {
		return 0, err
	}
	return len(txns), nil
}

// loadOverrides parses an override file and saves every row into store.
func loadOverrides(ctx context.Context, store storage.Store, path string) (int, error) {
	if path == "" {
		return 0, nil
	}

	overrideConfig, err := config.CreateOverrideParserConfig(viper.GetString("date-format"))
	if err != nil {
		return 0, err
	}
	parser, err := parsers.NewOverrideParser(overrideConfig)
	if err != nil {
		return 0, err
	}

	overrides, stats, err := parser.ParseOverrides(ctx, path)
	if err != nil {
		return 0, err
	}
	reportParseProblems(stats)

	for _, o := range overrides {
		if _, err := store.SaveOverride(ctx, o); err != nil {
			return 0, err
		}
	}
	return len(overrides), nil
}

// reportParseProblems prints skipped rows to stderr in verbose mode
func reportParseProblems(stats *parsers.ParseStats) {
	if stats == nil || !stats.HasErrors() {
		return
	}

	logger.GetGlobalLogger().WithComponent("cli").WithFields(logger.Fields{
		"file":    stats.File,
		"skipped": stats.ErrorCount(),
	}).Warn("Some rows were skipped")

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "%s:\n%s\n", stats.File, errors.FormatParseErrorsForUser(stats.Errors))
	}
}

// parseDateFlag parses an optional YYYY-MM-DD flag value. Empty yields the zero time.
func parseDateFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(models.DateLayout, value)
	if err != nil {
		return time.Time{}, errors.ValidationError(errors.CodeInvalidDate, name, value, err).
			WithSuggestion("Use the YYYY-MM-DD format")
	}
	return d, nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return errors.ValidationError(errors.CodeMissingField, description, nil, nil)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err).
			WithContext("description", description)
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err)
	}
	if info.IsDir() {
		return errors.FileError(errors.CodeFileCorrupted, filePath,
			fmt.Errorf("%s is a directory, expected a file", description))
	}

	file, err := os.Open(filePath)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err)
	}
	file.Close()
	return nil
}
