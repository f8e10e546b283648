package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/entable/entable/pkg/entity"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the entity definition files",
	Long: `Check every definition file in the entities directory: JSON syntax,
column and relation invariants, duplicate names across files, and that
every relation target resolves to a defined entity. No database needed.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(); err != nil {
			fmt.Println("❌ Validation failed:", err)
			os.Exit(1)
		}
	},
}

func runValidate() error {
	entries, err := os.ReadDir(entityDir)
	if err != nil {
		return err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return fmt.Errorf("no entity definitions in %s", entityDir)
	}

	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	var all []*entity.Config
	seen := make(map[string]string)
	problems := 0
	for _, name := range files {
		configs, err := entity.LoadFile(filepath.Join(entityDir, name))
		if err != nil {
			red.Printf("  ❌ %s: %v\n", name, err)
			problems++
			continue
		}
		entities := make([]string, len(configs))
		for i, cfg := range configs {
			entities[i] = cfg.Entity
			if prev, dup := seen[cfg.Entity]; dup {
				red.Printf("  ❌ %s: entity %q already defined in %s\n", name, cfg.Entity, prev)
				problems++
			} else {
				seen[cfg.Entity] = name
			}
		}
		green.Printf("  ✅ %s: %s\n", name, strings.Join(entities, ", "))
		all = append(all, configs...)
	}

	// Cross-file checks: duplicate entities and dangling relation
	// targets only show up over the combined set. The registry itself
	// is last-write-wins on purpose, so duplicates are caught above.
	reg := entity.NewRegistry()
	if err := reg.Replace(all); err != nil {
		red.Printf("  ❌ %v\n", err)
		problems++
	} else {
		for _, cfg := range all {
			for _, rel := range cfg.Relations {
				if _, ok := reg.Get(rel.Target); !ok {
					red.Printf("  ❌ entity %q: relation %q: unknown target %q\n",
						cfg.Entity, rel.Name, rel.Target)
					problems++
				}
			}
			for _, jt := range cfg.JunctionTables {
				for _, side := range []entity.JunctionSide{jt.Source, jt.Target} {
					if _, ok := reg.Get(side.Entity); !ok {
						red.Printf("  ❌ entity %q: junction table %q: unknown entity %q\n",
							cfg.Entity, jt.Table, side.Entity)
						problems++
					}
				}
			}
		}
	}

	fmt.Printf("\n📊 %d file(s), %d entit%s, %d problem(s)\n",
		len(files), len(all), plural(len(all), "y", "ies"), problems)
	if problems > 0 {
		return fmt.Errorf("%d problem(s) found", problems)
	}
	green.Println("🎉 Definitions are valid and ready to sync.")
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
