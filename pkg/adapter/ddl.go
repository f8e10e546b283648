package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/entable/entable/pkg/entity"
)

// CreateTable derives CREATE TABLE DDL from an entity config and runs
// it, honoring composite primary keys. Foreign-key clauses are inlined
// when requested; engines without ALTER-time constraint support get
// them at creation or not at all.
func (a *SQLAdapter) CreateTable(ctx context.Context, cfg *entity.Config, withForeignKeys bool) error {
	var defs []string
	pks := cfg.PrimaryKeyColumns()
	auto, hasAuto := cfg.AutoIncrementColumn()
	// The inline auto-increment form only exists for a single-column
	// key; composite keys render the column as a plain typed member of
	// the table-level PRIMARY KEY.
	inlineAuto := hasAuto && len(pks) == 1

	for _, col := range cfg.Columns {
		def := a.d.Quote(col.Physical) + " "
		switch {
		case inlineAuto && col == auto:
			def += a.d.AutoIncrementType() + " " + a.d.AutoIncrementClause()
		default:
			def += a.d.SQLType(col.Type)
			if col.PrimaryKey && len(pks) == 1 && !inlineAuto {
				def += " PRIMARY KEY"
			}
			if !col.Nullable && !col.PrimaryKey {
				def += " NOT NULL"
			}
			if col.Unique && !col.PrimaryKey {
				def += " UNIQUE"
			}
			if col.Default != nil {
				def += " DEFAULT " + sqlLiteral(col.Default)
			}
		}
		if withForeignKeys && col.ForeignKey != nil {
			def += fmt.Sprintf(" REFERENCES %s(%s)",
				a.d.Quote(col.ForeignKey.Table), a.d.Quote(col.ForeignKey.Column))
		}
		defs = append(defs, def)
	}

	if len(pks) > 1 {
		names := make([]string, len(pks))
		for i, col := range pks {
			names[i] = a.d.Quote(col.Physical)
		}
		defs = append(defs, "PRIMARY KEY ("+strings.Join(names, ", ")+")")
	}

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		a.d.Quote(cfg.Table), strings.Join(defs, ", "))
	if err := a.ExecuteScript(ctx, ddl); err != nil {
		return err
	}
	a.invalidateTable(cfg.Table)
	return nil
}

// CreateJunctionTable derives DDL for an association table: both
// foreign-key column sets (possibly composite), a composite primary
// key spanning them, optional extra descriptive columns and, when
// requested, FK constraints to both owning tables. Column types come
// from the referenced entity columns via the registry.
func (a *SQLAdapter) CreateJunctionTable(ctx context.Context, jt *entity.JunctionTable, reg *entity.Registry, withForeignKeys bool) error {
	var defs, pk, constraints []string

	for _, side := range []entity.JunctionSide{jt.Source, jt.Target} {
		cfg, ok := reg.Get(side.Entity)
		if !ok {
			return fmt.Errorf("junction table %q: unknown entity %q", jt.Table, side.Entity)
		}
		var localCols, refCols []string
		for _, ref := range side.Columns {
			col, err := cfg.Column(ref.Ref)
			if err != nil {
				return fmt.Errorf("junction table %q: %w", jt.Table, err)
			}
			defs = append(defs, a.d.Quote(ref.Column)+" "+a.d.SQLType(col.Type)+" NOT NULL")
			pk = append(pk, a.d.Quote(ref.Column))
			localCols = append(localCols, a.d.Quote(ref.Column))
			refCols = append(refCols, a.d.Quote(col.Physical))
		}
		if withForeignKeys {
			constraints = append(constraints, fmt.Sprintf(
				"FOREIGN KEY (%s) REFERENCES %s (%s)",
				strings.Join(localCols, ", "), a.d.Quote(cfg.Table), strings.Join(refCols, ", ")))
		}
	}

	for _, extra := range jt.Extra {
		def := a.d.Quote(extra.Name) + " " + a.d.SQLType(extra.Type)
		if !extra.Nullable {
			def += " NOT NULL"
		}
		if extra.Default != nil {
			def += " DEFAULT " + sqlLiteral(extra.Default)
		}
		defs = append(defs, def)
	}

	defs = append(defs, "PRIMARY KEY ("+strings.Join(pk, ", ")+")")
	defs = append(defs, constraints...)

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		a.d.Quote(jt.Table), strings.Join(defs, ", "))
	if err := a.ExecuteScript(ctx, ddl); err != nil {
		return err
	}
	a.invalidateTable(jt.Table)
	return nil
}

// DropTable removes a table if it exists.
func (a *SQLAdapter) DropTable(ctx context.Context, table string) error {
	if err := a.ExecuteScript(ctx, "DROP TABLE IF EXISTS "+a.d.Quote(table)); err != nil {
		return err
	}
	a.invalidateTable(table)
	return nil
}

// sqlLiteral renders a default value into DDL text. Strings are always
// quoted literals; expression defaults are out of this layer's scope.
func sqlLiteral(v any) string {
	switch val := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case bool:
		if val {
			return "1"
		}
		return "0"
	case nil:
		return "NULL"
	default:
		return fmt.Sprintf("%v", val)
	}
}
