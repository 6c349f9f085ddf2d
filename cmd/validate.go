package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pressmetrics/metrictask/internal/config"
	"github.com/pressmetrics/metrictask/internal/formula"
	"github.com/pressmetrics/metrictask/internal/task"
)

var validateTasksDir string

var errValidationFailed = errors.New("validation failed")

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate every task document",
	Long: `Load every task document from the tasks directory and compile its metric
schema, options, and formulas.

Prints PASS or FAIL per document and exits non-zero if any document fails.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		dir := validateTasksDir
		if dir == "" {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			dir = cfg.TasksDir
		}

		loader := task.NewLoader(Logger, dir)

		files, err := loader.Files()
		if err != nil {
			return fmt.Errorf("failed to list task documents: %w", err)
		}

		if len(files) == 0 {
			fmt.Printf("No task documents found in %s\n", dir)
			return nil
		}

		failed := 0
		for _, file := range files {
			if err := compileTaskFile(loader, file); err != nil {
				failed++
				fmt.Printf("❌ FAIL %s\n   %v\n", filepath.Base(file), err)
				continue
			}
			fmt.Printf("✅ PASS %s\n", filepath.Base(file))
		}

		fmt.Printf("\n%d/%d documents valid\n", len(files)-failed, len(files))

		if failed > 0 {
			return fmt.Errorf("%w: %d document(s)", errValidationFailed, failed)
		}
		return nil
	},
}

// compileTaskFile runs a document through every compile stage a real run
// would: parse, schema, options, formulas.
func compileTaskFile(loader task.Loader, file string) error {
	doc, err := loader.LoadFile(file)
	if err != nil {
		return err
	}

	schema, err := task.BuildSchema(doc)
	if err != nil {
		return err
	}

	if _, err := task.BuildOptions(doc); err != nil {
		return err
	}

	if _, err := formula.Compile(Logger, schema); err != nil {
		return err
	}

	return nil
}

func init() {
	validateCmd.Flags().StringVar(&validateTasksDir, "tasks-dir", "", "Directory with task documents (defaults to TASKS_DIR)")
	rootCmd.AddCommand(validateCmd)
}
