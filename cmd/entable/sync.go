package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/entable/entable/pkg/config"
	"github.com/entable/entable/pkg/entity"
	"github.com/entable/entable/pkg/schema"
)

var (
	syncDropTables  bool
	syncForeignKeys bool
	syncName        string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Create the tables behind the entity definitions",
	Long: `Load the entity definitions and create every missing table, junction
tables included. Existing tables are skipped; the run is idempotent.
Each run is recorded in the schema_migrations table.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSync(cmd.Context()); err != nil {
			fmt.Println("❌ Sync failed:", err)
			os.Exit(1)
		}
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncDropTables, "drop-tables", false,
		"drop and recreate every table (data is lost)")
	syncCmd.Flags().BoolVar(&syncForeignKeys, "foreign-keys", false,
		"create foreign-key constraints on new tables")
	syncCmd.Flags().StringVar(&syncName, "name", "",
		"name recorded for this run")
}

func runSync(ctx context.Context) error {
	configs, err := entity.LoadDir(entityDir)
	if err != nil {
		return err
	}
	if len(configs) == 0 {
		return fmt.Errorf("no entity definitions in %s", entityDir)
	}

	a, closeDB, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	start := time.Now()
	report, err := schema.New(a, config.GetLogger()).Synchronize(ctx, configs, schema.Options{
		DropTables:        syncDropTables,
		CreateForeignKeys: syncForeignKeys,
	})
	if err != nil {
		return err
	}
	printReport(report)

	if err := schema.EnsureMigrationTable(ctx, a); err != nil {
		return fmt.Errorf("migration table: %w", err)
	}
	name := syncName
	if name == "" {
		name = "sync " + filepath.Base(entityDir)
	}
	if err := schema.RecordMigration(ctx, a, schema.Migration{
		Name:       name,
		DurationMS: time.Since(start).Milliseconds(),
	}); err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	if !report.Ok() {
		return fmt.Errorf("%d table(s) failed", len(report.Failed))
	}
	return nil
}

func printReport(report *schema.Report) {
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed, color.Bold)

	fmt.Println("📋 Tables:")
	for _, table := range report.Created {
		green.Printf("  ➕ created  %s\n", table)
	}
	for _, table := range report.Skipped {
		yellow.Printf("  ⏭  exists   %s\n", table)
	}
	for _, failure := range report.Failed {
		red.Printf("  ❌ failed   %s: %v\n", failure.Table, failure.Err)
	}
	fmt.Printf("\n📊 %d created, %d skipped, %d failed\n",
		len(report.Created), len(report.Skipped), len(report.Failed))
}
