package adapter

import (
	"context"

	"github.com/entable/entable/pkg/dialect"
)

// Introspection answers come from the engine's catalog and are cached
// in the adapter's LRU so schema synchronization does not re-query the
// catalog for every entity. DDL through this adapter invalidates the
// affected table's entries; DDL run elsewhere is invisible to the
// cache until it evicts.

func (a *SQLAdapter) TableExists(ctx context.Context, table string) (bool, error) {
	key := "exists:" + table
	if v, ok := a.meta.Get(key); ok {
		return v.(bool), nil
	}
	sqlText, args := a.d.TableExistsSQL(table)
	row, err := a.QuerySingle(ctx, sqlText, args...)
	if err != nil {
		return false, err
	}
	exists := row != nil
	a.meta.Add(key, exists)
	return exists, nil
}

func (a *SQLAdapter) TableColumns(ctx context.Context, table string) ([]dialect.ColumnInfo, error) {
	key := "cols:" + table
	if v, ok := a.meta.Get(key); ok {
		return v.([]dialect.ColumnInfo), nil
	}
	sqlText, args := a.d.ColumnsSQL(table)
	rows, err := a.Query(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	cols := make([]dialect.ColumnInfo, 0, len(rows))
	for _, row := range rows {
		cols = append(cols, dialect.ColumnInfoFromRow(row))
	}
	a.meta.Add(key, cols)
	return cols, nil
}

func (a *SQLAdapter) PrimaryKey(ctx context.Context, table string) ([]string, error) {
	key := "pk:" + table
	if v, ok := a.meta.Get(key); ok {
		return v.([]string), nil
	}
	sqlText, args := a.d.PrimaryKeySQL(table)
	rows, err := a.Query(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		if name, ok := row["name"].(string); ok && name != "" {
			names = append(names, name)
		}
	}
	a.meta.Add(key, names)
	return names, nil
}

func (a *SQLAdapter) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	cols, err := a.TableColumns(ctx, table)
	if err != nil {
		return false, err
	}
	for _, col := range cols {
		if col.Name == column {
			return true, nil
		}
	}
	return false, nil
}

func (a *SQLAdapter) invalidateTable(table string) {
	a.meta.Remove("exists:" + table)
	a.meta.Remove("cols:" + table)
	a.meta.Remove("pk:" + table)
}
