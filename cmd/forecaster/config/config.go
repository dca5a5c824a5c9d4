package config

import (
	"fmt"
	"strings"

	"cashflow-forecast-service/internal/analyzer"
	"cashflow-forecast-service/internal/forecaster"
	"cashflow-forecast-service/internal/grouping"
	"cashflow-forecast-service/internal/parsers"
	"cashflow-forecast-service/internal/reporter"
	"cashflow-forecast-service/pkg/errors"
	"cashflow-forecast-service/pkg/logger"
)

// CreateTransactionParserConfig creates a transaction parser configuration.
// An empty dateFormat accepts the common layouts.
func CreateTransactionParserConfig(dateFormat string) (*parsers.TransactionParserConfig, error) {
	config := parsers.DefaultTransactionParserConfig()
	config.DateFormat = dateFormat
	config.ColumnAliases = map[string][]string{
		// Common export headers from accounting tools
		parsers.ColumnDate:   {"booking_date", "value_date"},
		parsers.ColumnAmount: {"amt", "sum"},
		parsers.ColumnVendor: {"merchant", "memo"},
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "transaction_parser", nil, err)
	}
	return config, nil
}

// CreateOverrideParserConfig creates an override parser configuration
func CreateOverrideParserConfig(dateFormat string) (*parsers.OverrideParserConfig, error) {
	config := parsers.DefaultOverrideParserConfig()
	config.DateFormat = dateFormat
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "override_parser", nil, err)
	}
	return config, nil
}

// CreateAnalyzerConfig creates an analyzer configuration with the lookback
// window and, when timingFile is set, the vendor timing overrides it lists.
func CreateAnalyzerConfig(lookbackDays int, timingFile string) (*analyzer.Config, error) {
	config := analyzer.DefaultConfig()
	if lookbackDays > 0 {
		config.LookbackDays = lookbackDays
	}

	if timingFile != "" {
		overrides, err := analyzer.LoadTimingOverrides(timingFile)
		if err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "timing", timingFile, err).
				WithSuggestion("Check the timing_overrides YAML file")
		}
		config.TimingOverrides = overrides
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "analyzer", nil, err)
	}
	return config, nil
}

// CreateForecasterConfig creates the orchestrator configuration from CLI values
func CreateForecasterConfig(lookbackDays, horizonWeeks int, onError string, extendWeeks bool) (*forecaster.Config, error) {
	config := forecaster.DefaultConfig()
	if lookbackDays > 0 {
		config.LookbackDays = lookbackDays
	}
	if horizonWeeks > 0 {
		config.HorizonWeeks = horizonWeeks
	}
	config.ExtendWeeks = extendWeeks

	policy, err := forecaster.ParseErrorPolicy(onError)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "on-error", onError, err)
	}
	config.ErrorPolicy = policy

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "forecaster", nil, err)
	}
	return config, nil
}

// CreateClassifier loads vendor grouping rules. Without a rules file every
// vendor forms its own group.
func CreateClassifier(rulesFile string) (*grouping.Classifier, error) {
	if rulesFile == "" {
		return grouping.NewClassifier(nil)
	}
	classifier, err := grouping.LoadRules(rulesFile)
	if err != nil {
		return nil, err
	}
	logger.GetGlobalLogger().WithComponent("config").WithFields(logger.Fields{
		"rules_file": rulesFile,
		"rules":      classifier.Len(),
	}).Debug("Vendor grouping rules loaded")
	return classifier, nil
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format string, csvContent string) *reporter.ReportConfig {
	config := reporter.DefaultReportConfig()

	switch strings.ToLower(format) {
	case "console":
		config.Format = reporter.FormatConsole
	case "json":
		config.Format = reporter.FormatJSON
		config.MaxEvents = 0
	case "csv":
		config.Format = reporter.FormatCSV
		config.CSVHeaders = true
		config.CSVDelimiter = ','
		config.CSVContent = reporter.CSVContent(strings.ToLower(csvContent))
		if config.CSVContent == "" {
			config.CSVContent = reporter.CSVEvents
		}
	default:
		config.Format = reporter.OutputFormat(format)
	}

	return config
}

// CreatePatternReportConfig creates a report configuration that lists
// detected patterns only
func CreatePatternReportConfig(format string) *reporter.ReportConfig {
	config := CreateReportConfig(format, "")
	config.IncludeEvents = false
	config.IncludeWeekly = false
	return config
}

// CreateLoggerConfig maps CLI verbosity onto a logger configuration
func CreateLoggerConfig(verbose bool, format string) *logger.Config {
	config := logger.DefaultConfig()
	if verbose {
		config = logger.DebugConfig()
	}
	if format != "" {
		config.Format = logger.Format(strings.ToLower(format))
	}
	return config
}

// ValidateConfig validates that all required configurations are valid
func ValidateConfig(
	transactionConfig *parsers.TransactionParserConfig,
	analyzerConfig *analyzer.Config,
	forecasterConfig *forecaster.Config,
	reportConfig *reporter.ReportConfig,
) error {
	if err := transactionConfig.Validate(); err != nil {
		return fmt.Errorf("invalid transaction config: %w", err)
	}
	if err := analyzerConfig.Validate(); err != nil {
		return fmt.Errorf("invalid analyzer config: %w", err)
	}
	if err := forecasterConfig.Validate(); err != nil {
		return fmt.Errorf("invalid forecaster config: %w", err)
	}
	if err := reportConfig.Validate(); err != nil {
		return fmt.Errorf("invalid report config: %w", err)
	}
	return nil
}
