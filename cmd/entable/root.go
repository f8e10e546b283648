package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/entable/entable/pkg/adapter"
	"github.com/entable/entable/pkg/config"
	"github.com/entable/entable/pkg/core"
)

var entityDir string

var rootCmd = &cobra.Command{
	Use:   "entable",
	Short: "Configuration-driven data layer tooling",
	Long: `entable keeps a database in step with JSON entity definitions.

Examples:

  entable validate -e ./entities
  entable sync -e ./entities
  entable status -e ./entities

The database connection comes from entable.yaml or ENTABLE_* environment
variables (a .env file is read when present).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Missing .env is fine; the environment and config file carry
		// the settings.
		_ = godotenv.Load()
		return config.Load()
	},
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("❌", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&entityDir, "entities", "e", "entities",
		"directory of entity definition files (*.json)")
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(validateCmd)
}

// openDatabase connects per the loaded configuration. The returned
// func closes the connection.
func openDatabase(ctx context.Context) (adapter.Adapter, func(), error) {
	dbCtx := core.NewDBContext()
	a, err := dbCtx.Database(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return a, func() { _ = dbCtx.CloseDatabase() }, nil
}
