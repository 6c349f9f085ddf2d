package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pressmetrics/metrictask/cmd"
	"github.com/pressmetrics/metrictask/internal/actions"
	"github.com/pressmetrics/metrictask/internal/config"
	"github.com/pressmetrics/metrictask/internal/interactive"
	"github.com/pressmetrics/metrictask/internal/task"
)

func runInteractive() {
	fmt.Println("Metrictask - Interactive Mode")
	fmt.Println("=============================")
	fmt.Println()

	for {
		options := []interactive.MenuOption{
			{
				Name:        "▶️  Run Task",
				Description: "Execute one metric task and print its result set",
				Action:      runTaskInteractive,
			},
			{
				Name:        "🔍 Validate Tasks",
				Description: "Compile every task document and report PASS/FAIL",
				Action: func() error {
					return runCLICommand("validate")
				},
			},
			{
				Name:        "📃 List Tasks",
				Description: "List available task documents",
				Action: func() error {
					return runCLICommand("tasks")
				},
			},
			{
				Name:        "🗄️  Warehouse Management",
				Description: "Migrate, inspect, and clean the warehouse",
				Action:      showWarehouseMenu,
			},
			{
				Name:        "📋 Show Config",
				Description: "Display current environment configuration",
				Action: func() error {
					if err := actions.ShowConfig(); err != nil {
						fmt.Printf("\n❌ Error: %v\n", err)
					}
					interactive.PauseForEnter()
					return nil
				},
			},
		}

		if err := interactive.ShowMainMenu(options); err != nil {
			if errors.Is(err, interactive.ErrExit) {
				fmt.Println("Goodbye!")
				return
			}
			log.Fatal(err)
		}

		fmt.Println()
	}
}

func showWarehouseMenu() error {
	for {
		options := []interactive.MenuOption{
			{
				Name:        "Migrate",
				Description: "Create the database and apply pending DDL (safe to run multiple times)",
				Action: func() error {
					if err := actions.Migrate(true, false); err != nil {
						fmt.Printf("\n❌ Error: %v\n", err)
						interactive.PauseForEnter()
						return nil
					}

					if !interactive.Confirm("Do you want to proceed with the migration?") {
						fmt.Println("Migration canceled.")
						interactive.PauseForEnter()
						return nil
					}

					if err := actions.Migrate(true, true); err != nil {
						fmt.Printf("\n❌ Error: %v\n", err)
						interactive.PauseForEnter()
						return nil
					}

					interactive.PauseForEnter()
					return nil
				},
			},
			{
				Name:        "Status",
				Description: "Show the current migration version",
				Action: func() error {
					if err := actions.MigrationStatus(); err != nil {
						fmt.Printf("\n❌ Error: %v\n", err)
					}
					interactive.PauseForEnter()
					return nil
				},
			},
			{
				Name:        "Teardown",
				Description: "Truncate all warehouse data tables (destructive)",
				Action: func() error {
					if err := actions.Teardown(true, false); err != nil {
						fmt.Printf("\n❌ Error: %v\n", err)
						interactive.PauseForEnter()
						return nil
					}

					if !interactive.Confirm("⚠️  Are you SURE you want to truncate all data tables? This cannot be undone!") {
						fmt.Println("Teardown canceled.")
						interactive.PauseForEnter()
						return nil
					}

					if err := actions.Teardown(true, true); err != nil {
						fmt.Printf("\n❌ Error: %v\n", err)
						interactive.PauseForEnter()
						return nil
					}

					interactive.PauseForEnter()
					return nil
				},
			},
		}

		fmt.Println("\n🗄️  Warehouse Management")
		fmt.Println("=======================")
		if err := interactive.ShowMainMenu(options); err != nil {
			if errors.Is(err, interactive.ErrExit) {
				return nil // Return to main menu
			}
			return err
		}
	}
}

func runTaskInteractive() error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("\n❌ Error: %v\n", err)
		interactive.PauseForEnter()
		return nil
	}

	loader := task.NewLoader(cmd.Logger, cfg.TasksDir)

	docs, err := loader.LoadDir()
	if err != nil {
		fmt.Printf("\n❌ Error: %v\n", err)
		interactive.PauseForEnter()
		return nil
	}

	if len(docs) == 0 {
		fmt.Printf("\n❌ No task documents found in %s\n", cfg.TasksDir)
		interactive.PauseForEnter()
		return nil
	}

	slugs := make([]string, 0, len(docs))
	for _, doc := range docs {
		slugs = append(slugs, doc.Slug)
	}

	slug, err := interactive.SelectFromList("Select task:", slugs)
	if err != nil {
		fmt.Println("Selection canceled.")
		interactive.PauseForEnter()
		return nil
	}

	args := []string{"run", slug}
	if interactive.Confirm("Run against the demo fixture instead of the warehouse?") {
		args = append(args, "--fixture", filepath.Join("fixtures", "demo.yaml"))
	}

	return runCLICommand(args...)
}

func runCLICommand(args ...string) error {
	// Get the binary path - should be in ./bin/metrictask
	binaryPath := filepath.Join(".", "bin", "metrictask")

	// Check if binary exists
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		fmt.Printf("\n❌ Binary not found at %s\n", binaryPath)
		fmt.Println("Please run 'make' to build the binary first.")
		interactive.PauseForEnter()
		return nil
	}

	fmt.Printf("\n🚀 Running: %s %v\n\n", binaryPath, args)

	// #nosec G204 -- binaryPath is hardcoded to ./bin/metrictask and args are controlled by menu selections
	command := exec.Command(binaryPath, args...)
	command.Stdout = os.Stdout
	command.Stderr = os.Stderr
	command.Stdin = os.Stdin

	if err := command.Run(); err != nil {
		fmt.Printf("\n❌ Command failed: %v\n", err)
		interactive.PauseForEnter()
		return nil
	}

	interactive.PauseForEnter()
	return nil
}
