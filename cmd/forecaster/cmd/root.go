package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"cashflow-forecast-service/cmd/forecaster/config"
	"cashflow-forecast-service/pkg/errors"
	"cashflow-forecast-service/pkg/logger"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "forecaster",
	Short: "Cash flow forecasting from transaction history",
	Long: `Forecaster detects recurring payment patterns in a ledger's transaction
history and projects them into dated future events with weekly totals.
Manual overrides can skip, move or change individual occurrences.

Examples:
  forecaster forecast --transactions ledger.csv --start 2025-07-09 --end 2025-10-07
  forecaster forecast --db forecast.db --weeks 13 --format json --save
  forecaster analyze --transactions ledger.csv --rules rules.yaml
  forecaster import --transactions ledger.csv --overrides overrides.csv --db forecast.db`,
	Version:           getVersionString(),
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// ExecuteContext runs the root command. Cancelling ctx stops a running forecast.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.forecaster.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("log-format", "text", "log format: text, json")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig loads .env, the config file and FORECASTER_* variables, then
// sets up the global logger.
func initConfig(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
		viper.SetConfigName(".forecaster")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("FORECASTER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "config", cfgFile, err).
				WithSuggestion("Check the config file path and YAML syntax")
		}
	}

	logConfig := config.CreateLoggerConfig(viper.GetBool("verbose"), viper.GetString("log-format"))
	log, err := logger.NewLogger(logConfig)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log-format", logConfig.Format, err)
	}
	logger.SetGlobalLogger(log)

	if viper.ConfigFileUsed() != "" {
		log.WithField("file", viper.ConfigFileUsed()).Debug("Using config file")
	}

	// Command flags are bound here rather than in init so that subcommands
	// sharing a flag name each read their own value.
	return bindFlags(cmd.Flags())
}

func bindFlags(flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if bindErr == nil {
			bindErr = viper.BindPFlag(f.Name, f)
		}
	})
	return bindErr
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}

// commandContext returns the context cobra was executed with
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// outputFile opens path for the report, or returns stdout when path is empty.
func outputFile(path string) (*os.File, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, errors.FileError(errors.CodeFilePermission, dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.FileError(errors.CodeFilePermission, path, err)
	}
	return f, func() { f.Close() }, nil
}
