package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pressmetrics/metrictask/internal/config"
	"github.com/pressmetrics/metrictask/internal/task"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List available task documents",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		loader := task.NewLoader(Logger, cfg.TasksDir)

		docs, err := loader.LoadDir()
		if err != nil {
			return fmt.Errorf("failed to load task documents: %w", err)
		}

		if len(docs) == 0 {
			fmt.Printf("No task documents found in %s\n", cfg.TasksDir)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "SLUG\tNAME\tRUNS\tMETRICS")

		for _, doc := range docs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", doc.Slug, doc.Name, doc.Runs, len(doc.Metrics.Entries))
		}

		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(tasksCmd)
}
