package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cashflow-forecast-service/cmd/forecaster/config"
	"cashflow-forecast-service/internal/forecaster"
	"cashflow-forecast-service/internal/reporter"
	"cashflow-forecast-service/pkg/errors"
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Detect the payment pattern of each vendor group",
	Long: `Analyze classifies every vendor group's history by frequency, timing and
amount without projecting any events. Use it to check how forecastable a
ledger is before running a forecast.

Examples:
  forecaster analyze --transactions ledger.csv
  forecaster analyze --transactions ledger.csv --rules rules.yaml --format json
  forecaster analyze --db forecast.db --group Payroll,Rent`,

	PreRunE: validateAnalyzeFlags,
	RunE:    runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringSliceP("transactions", "t", []string{}, "comma-separated transaction CSV files")
	analyzeCmd.Flags().String("rules", "", "vendor grouping rules (YAML)")
	analyzeCmd.Flags().String("timing", "", "vendor timing overrides (YAML)")
	analyzeCmd.Flags().String("db", "", "SQLite database path (default: in-memory)")
	analyzeCmd.Flags().String("date-format", "", "Go layout of CSV dates (default: auto-detect)")
	analyzeCmd.Flags().String("as-of", "", "analysis date YYYY-MM-DD (default: today)")
	analyzeCmd.Flags().Int("lookback-days", 180, "days of history analysed")
	analyzeCmd.Flags().StringSliceP("group", "g", []string{}, "only analyse these vendor groups")
	analyzeCmd.Flags().Int("max-concurrency", 4, "vendor groups analysed in parallel")
	analyzeCmd.Flags().StringP("format", "f", "console", "output format: console, json")
	analyzeCmd.Flags().StringP("output", "o", "", "output file path (default: stdout)")
}

func validateAnalyzeFlags(cmd *cobra.Command, args []string) error {
	files := viper.GetStringSlice("transactions")
	if len(files) == 0 && viper.GetString("db") == "" {
		return errors.ValidationError(errors.CodeMissingField, "transactions", nil,
			fmt.Errorf("either --transactions or --db is required"))
	}
	for i, f := range files {
		if err := validateFileExists(f, fmt.Sprintf("transaction file %d", i+1)); err != nil {
			return err
		}
	}

	// CSV reports list events or weeks, neither of which analyze produces.
	format := strings.ToLower(viper.GetString("format"))
	if format != string(reporter.FormatConsole) && format != string(reporter.FormatJSON) {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "format", format,
			fmt.Errorf("valid formats: console, json"))
	}
	if _, err := parseDateFlag("as-of", viper.GetString("as-of")); err != nil {
		return err
	}
	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	classifier, err := config.CreateClassifier(viper.GetString("rules"))
	if err != nil {
		return err
	}
	lookbackDays := viper.GetInt("lookback-days")
	analyzerConfig, err := config.CreateAnalyzerConfig(lookbackDays, viper.GetString("timing"))
	if err != nil {
		return err
	}
	forecasterConfig, err := config.CreateForecasterConfig(lookbackDays, 0, "skip", true)
	if err != nil {
		return err
	}
	if n := viper.GetInt("max-concurrency"); n > 0 {
		forecasterConfig.MaxConcurrency = n
	}
	asOf, _ := parseDateFlag("as-of", viper.GetString("as-of"))

	store, err := openStore(viper.GetString("db"))
	if err != nil {
		return err
	}
	defer store.Close()

	txConfig, err := config.CreateTransactionParserConfig(viper.GetString("date-format"))
	if err != nil {
		return err
	}
	if _, err := loadTransactions(ctx, store, viper.GetStringSlice("transactions"), txConfig, classifier); err != nil {
		return err
	}

	// Without an override store the run only detects patterns; the events it
	// projects are not reported.
	orchestrator, err := forecaster.NewOrchestrator(store, nil, analyzerConfig, forecasterConfig)
	if err != nil {
		return err
	}
	result, err := orchestrator.ForecastAll(ctx, forecaster.Request{
		AsOf:   asOf,
		Groups: viper.GetStringSlice("group"),
	})
	if err != nil {
		return err
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Analysed %d vendor groups in %v\n", len(result.Groups), result.Duration)
	}
	return writeReport(config.CreatePatternReportConfig(viper.GetString("format")), viper.GetString("output"), result)
}
