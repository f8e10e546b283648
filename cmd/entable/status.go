package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/entable/entable/pkg/adapter"
	"github.com/entable/entable/pkg/entity"
	"github.com/entable/entable/pkg/schema"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Compare entity definitions against the live database",
	Long: `Report, per entity, whether its table exists and whether every declared
column is present, plus the junction tables and the recorded sync runs.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runStatus(cmd.Context()); err != nil {
			fmt.Println("❌ Status error:", err)
			os.Exit(1)
		}
	},
}

func runStatus(ctx context.Context) error {
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

	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	pending := 0
	fmt.Println("📋 Entities:")
	for _, cfg := range configs {
		exists, err := a.TableExists(ctx, cfg.Table)
		if err != nil {
			return err
		}
		if !exists {
			yellow.Printf("  🕒 pending  %s (%s)\n", cfg.Table, cfg.Entity)
			pending++
			continue
		}
		missing, err := missingColumns(ctx, a, cfg)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			red.Printf("  ⚡ drifted  %s (%s): missing %s\n",
				cfg.Table, cfg.Entity, strings.Join(missing, ", "))
			continue
		}
		green.Printf("  ✅ ok       %s (%s)\n", cfg.Table, cfg.Entity)
	}

	junctions := junctionTables(configs)
	if len(junctions) > 0 {
		fmt.Println("\n📋 Junction tables:")
		for _, table := range junctions {
			exists, err := a.TableExists(ctx, table)
			if err != nil {
				return err
			}
			if exists {
				green.Printf("  ✅ ok       %s\n", table)
			} else {
				yellow.Printf("  🕒 pending  %s\n", table)
				pending++
			}
		}
	}

	if err := printHistory(ctx, a); err != nil {
		return err
	}

	if pending > 0 {
		fmt.Printf("\n💡 %d table(s) pending; run `entable sync` to create them.\n", pending)
	}
	return nil
}

// missingColumns lists declared physical columns absent from the live
// table.
func missingColumns(ctx context.Context, a adapter.Adapter, cfg *entity.Config) ([]string, error) {
	live, err := a.TableColumns(ctx, cfg.Table)
	if err != nil {
		return nil, err
	}
	present := make(map[string]struct{}, len(live))
	for _, col := range live {
		present[col.Name] = struct{}{}
	}
	var missing []string
	for _, col := range cfg.Columns {
		if _, ok := present[col.Physical]; !ok {
			missing = append(missing, col.Physical)
		}
	}
	return missing, nil
}

// junctionTables gathers the junction table names the entity set
// needs, deduplicated across both declaring sides.
func junctionTables(configs []*entity.Config) []string {
	seen := map[string]struct{}{}
	var tables []string
	add := func(table string) {
		if _, ok := seen[table]; ok {
			return
		}
		seen[table] = struct{}{}
		tables = append(tables, table)
	}
	for _, cfg := range configs {
		for _, jt := range cfg.JunctionTables {
			add(jt.Table)
		}
		for _, rel := range cfg.Relations {
			if rel.Kind == entity.ManyToMany && rel.Junction != nil {
				add(rel.Junction.Table)
			}
		}
	}
	return tables
}

func printHistory(ctx context.Context, a adapter.Adapter) error {
	exists, err := a.TableExists(ctx, schema.MigrationTable)
	if err != nil {
		return err
	}
	if !exists {
		fmt.Println("\n🕒 No sync has been recorded yet.")
		return nil
	}
	runs, err := schema.ListMigrations(ctx, a)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("\n🕒 No sync has been recorded yet.")
		return nil
	}
	last := runs[len(runs)-1]
	fmt.Printf("\n🕒 %d run(s) recorded; last: %s at %s (%d ms)\n",
		len(runs), last.Name, last.ExecutedAt.Format("2006-01-02 15:04:05"), last.DurationMS)
	return nil
}
