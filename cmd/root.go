package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pressmetrics/metrictask/internal/config"
)

var (
	// Logger is the shared logger instance for all commands
	Logger *logrus.Logger

	envFile string

	rootCmd = &cobra.Command{
		Use:   "metrictask",
		Short: "Metrictask - content analytics task runner",
		Long: `Metrictask loads declarative metric task documents, pulls raw analytics
counts from the warehouse, and computes per-content and per-organization
metric rollups.

Run without arguments to launch interactive mode, or use subcommands for direct operations.`,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			// An explicit env file loads first; config.Load's default .env
			// pass never overrides variables that are already set.
			if envFile != "" {
				if err := godotenv.Load(envFile); err != nil {
					return fmt.Errorf("failed to load env file '%s': %w", envFile, err)
				}
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			Logger = newLogger(cfg.LogLevel)

			return nil
		},
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "Env file to load before reading configuration (defaults to .env)")
}

// InitLogger prepares the shared logger for the interactive entry point,
// which bypasses cobra and its PersistentPreRunE.
func InitLogger() {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}

	Logger = newLogger(level)
}
