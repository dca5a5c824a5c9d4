package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cashflow-forecast-service/cmd/forecaster/config"
	"cashflow-forecast-service/internal/models"
	"cashflow-forecast-service/internal/parsers"
	"cashflow-forecast-service/pkg/errors"
	"cashflow-forecast-service/pkg/logger"
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load transactions and overrides into a database",
	Long: `Import streams transaction CSV files into a SQLite database in batches,
assigning vendor groups on the way, and stores manual overrides. Later
'forecast --db' and 'analyze --db' runs read from the same database.

Examples:
  forecaster import --transactions ledger.csv --db forecast.db
  forecaster import --transactions jan.csv,feb.csv --rules rules.yaml --db forecast.db
  forecaster import --overrides overrides.csv --db forecast.db`,

	PreRunE: validateImportFlags,
	RunE:    runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringSliceP("transactions", "t", []string{}, "comma-separated transaction CSV files")
	importCmd.Flags().String("overrides", "", "override CSV file")
	importCmd.Flags().String("rules", "", "vendor grouping rules (YAML)")
	importCmd.Flags().String("db", "", "SQLite database path (required)")
	importCmd.Flags().String("date-format", "", "Go layout of CSV dates (default: auto-detect)")
	importCmd.Flags().Int("batch-size", 500, "transactions written per database batch")
}

func validateImportFlags(cmd *cobra.Command, args []string) error {
	files := viper.GetStringSlice("transactions")
	overrides := viper.GetString("overrides")

	if viper.GetString("db") == "" {
		return errors.ValidationError(errors.CodeMissingField, "db", nil, fmt.Errorf("--db is required"))
	}
	if len(files) == 0 && overrides == "" {
		return errors.ValidationError(errors.CodeMissingField, "transactions", nil,
			fmt.Errorf("nothing to import: give --transactions and/or --overrides"))
	}
	for i, f := range files {
		if err := validateFileExists(f, fmt.Sprintf("transaction file %d", i+1)); err != nil {
			return err
		}
	}
	if overrides != "" {
		if err := validateFileExists(overrides, "override file"); err != nil {
			return err
		}
	}
	if viper.GetInt("batch-size") <= 0 {
		return errors.ValidationError(errors.CodeOutOfRange, "batch-size", viper.GetInt("batch-size"),
			fmt.Errorf("batch size must be positive"))
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	log := logger.GetGlobalLogger().WithComponent("cli")

	classifier, err := config.CreateClassifier(viper.GetString("rules"))
	if err != nil {
		return err
	}
	txConfig, err := config.CreateTransactionParserConfig(viper.GetString("date-format"))
	if err != nil {
		return err
	}
	parser, err := parsers.NewTransactionParser(txConfig)
	if err != nil {
		return err
	}

	store, err := openStore(viper.GetString("db"))
	if err != nil {
		return err
	}
	defer store.Close()

	batchSize := viper.GetInt("batch-size")
	var imported int
	for _, file := range viper.GetStringSlice("transactions") {
		stats, err := parser.ParseTransactionsStream(ctx, file, batchSize,
			func(ctx context.Context, batch []models.Transaction) error {
				if err := store.SaveTransactions(ctx, classifier.Assign(batch)); err != nil {
					return err
				}
				imported += len(batch)
				return nil
			})
		reportParseProblems(stats)
		if err != nil {
			return err
		}
		log.WithFields(logger.Fields{"file": file, "summary": stats.String()}).Info("Transaction file imported")
	}

	overrides, err := loadOverrides(ctx, store, viper.GetString("overrides"))
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Imported %d transactions and %d overrides into %s\n",
		imported, overrides, viper.GetString("db"))
	return nil
}
