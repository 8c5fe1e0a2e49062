package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"petsirdrecon/pkg/config"
	"petsirdrecon/pkg/logging"
)

// LUTDatabaseEnv overrides output.lutDatabase when set
const LUTDatabaseEnv = "PETSIRD_LUT_DATABASE"

var (
	configFile string
	dbURL      string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "petsirdrecon",
	Short: "PET list-mode preparation for reconstruction engines",
	Long: `petsirdrecon canonicalizes hierarchical PET scanner descriptions into
ring-ordered detector layouts and decodes time-block streams into list-mode
events addressed by flat detector ids.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "petsirdrecon.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "lut-db", "", "LUT database URL (sqlite://path, postgres://... or mysql://...)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
}

// Execute runs the root command; ctx is cancelled on interrupt
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// setup loads the environment file and the configuration, applies flag
// overrides and installs the logger
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if url := os.Getenv(LUTDatabaseEnv); url != "" {
		cfg.Output.LUTDatabase = url
	}
	if cmd.Flags().Changed("lut-db") {
		cfg.Output.LUTDatabase = dbURL
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Output.LogLevel = logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Output.LogFormat = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(os.Stderr, cfg.Output.LogFormat, cfg.Output.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}
