package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pressmetrics/metrictask/internal/config"
	"github.com/pressmetrics/metrictask/internal/ingest"
	"github.com/pressmetrics/metrictask/internal/pipeline"
	"github.com/pressmetrics/metrictask/internal/rollup"
	"github.com/pressmetrics/metrictask/internal/task"
)

var (
	runFixture    string
	runWindowDays int
	runOrgID      int64
	runOut        string
)

var runCmd = &cobra.Command{
	Use:   "run <slug>",
	Short: "Execute one metric task",
	Long: `Execute one metric task end to end: load its document, compile the
schema and formulas, fetch raw counts, and write the result set as JSON.

By default raw counts come from the ClickHouse warehouse. With --fixture
the run reads seed data from a YAML file instead, which needs no warehouse
at all.

Examples:
  metrictask run ga-content-timeseries
  metrictask run ga-content-domain-facets --fixture fixtures/demo.yaml --org 1
  metrictask run ga-content-timeseries --window-days 7 --out results.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		slug := args[0]

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		windowDays := runWindowDays
		if windowDays <= 0 {
			windowDays = cfg.RunWindowDays
		}

		orgID := runOrgID
		if orgID == 0 {
			orgID = cfg.OrgID
		}

		sink := io.Writer(os.Stdout)

		if runOut != "" {
			f, createErr := os.Create(runOut) //nolint:gosec // G304: output path comes from the CLI flag
			if createErr != nil {
				return fmt.Errorf("failed to create output file: %w", createErr)
			}
			defer func() {
				if closeErr := f.Close(); closeErr != nil {
					Logger.WithError(closeErr).Warn("Failed to close output file")
				}
			}()

			sink = f
		}

		ingestor, cleanup, err := buildIngestor(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		registry := pipeline.NewRegistry()
		if err := pipeline.RegisterDefaults(registry, Logger, ingestor); err != nil {
			return fmt.Errorf("failed to register handlers: %w", err)
		}

		ctx := context.Background()

		metrics := pipeline.NewCollector(Logger)
		if err := metrics.Start(ctx); err != nil {
			return fmt.Errorf("failed to start run metrics: %w", err)
		}
		defer func() {
			if stopErr := metrics.Stop(); stopErr != nil {
				Logger.WithError(stopErr).Warn("Failed to stop run metrics")
			}
		}()

		runner := pipeline.NewRunner(&pipeline.RunnerConfig{
			Logger:   Logger,
			Loader:   task.NewLoader(Logger, cfg.TasksDir),
			Registry: registry,
			Metrics:  metrics,
			Sink:     sink,
		})

		req := pipeline.Request{
			OrgID:       orgID,
			Window:      runWindow(windowDays, time.Now()),
			Concurrency: cfg.MaxConcurrency,
		}

		if _, err := runner.Run(ctx, slug, req); err != nil {
			runner.LogSummary()

			return fmt.Errorf("task %s: %w", slug, err)
		}

		runner.LogSummary()

		return nil
	},
}

// buildIngestor picks the sample source: the fixture file when given, the
// warehouse otherwise. The cleanup function releases whichever was opened.
func buildIngestor(cfg *config.Config) (ingest.Ingestor, func(), error) {
	if runFixture != "" {
		mem, err := ingest.LoadFixture(Logger, runFixture)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load fixture: %w", err)
		}

		return mem, func() {}, nil
	}

	db, err := ingest.Open(Logger, cfg.ClickHouseURL())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open warehouse connection: %w", err)
	}

	cleanup := func() {
		if closeErr := db.Close(); closeErr != nil {
			Logger.WithError(closeErr).Warn("Failed to close warehouse connection")
		}
	}

	return ingest.NewStore(Logger, db), cleanup, nil
}

// runWindow is the last n whole days ending after today, UTC.
func runWindow(days int, now time.Time) rollup.Window {
	end := now.UTC().Truncate(24 * time.Hour).AddDate(0, 0, 1)

	return rollup.Window{Start: end.AddDate(0, 0, -days), End: end}
}

func init() {
	runCmd.Flags().StringVar(&runFixture, "fixture", "", "YAML seed file to run against instead of the warehouse")
	runCmd.Flags().IntVar(&runWindowDays, "window-days", 0, "Request window length in days (defaults to RUN_WINDOW_DAYS)")
	runCmd.Flags().Int64Var(&runOrgID, "org", 0, "Organization id for org-scope rollups (defaults to ORG_ID)")
	runCmd.Flags().StringVar(&runOut, "out", "", "Write the result set JSON to this file instead of stdout")
	rootCmd.AddCommand(runCmd)
}
