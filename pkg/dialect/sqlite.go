package dialect

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/entable/entable/pkg/query"
)

// Sqlite is the embedded single-file engine, the primary dialect and
// the one used throughout the test fixtures.
type Sqlite struct{}

func init() {
	Register(Sqlite{})
}

func (Sqlite) Name() string       { return "sqlite3" }
func (Sqlite) DriverName() string { return "sqlite3" }

func (Sqlite) DSN(opts DSNOptions) string {
	path := opts.Path
	if path == "" {
		path = ":memory:"
	}
	if len(opts.Params) == 0 {
		return path
	}
	keys := make([]string, 0, len(opts.Params))
	for k := range opts.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+opts.Params[k])
	}
	return path + "?" + strings.Join(pairs, "&")
}

func (Sqlite) Quote(ident string) string { return quoteWith(ident, '"', '"') }

func (Sqlite) SQLType(t ColumnType) string {
	switch t {
	case TypeInteger:
		return "INTEGER"
	case TypeBoolean:
		return "INTEGER"
	case TypeNumber:
		return "REAL"
	case TypeDatetime:
		return "DATETIME"
	case TypeJSON:
		return "TEXT"
	default:
		return "TEXT"
	}
}

func (Sqlite) AutoIncrementType() string   { return "INTEGER" }
func (Sqlite) AutoIncrementClause() string { return "PRIMARY KEY AUTOINCREMENT" }

func (Sqlite) Rebind(text string) string { return text }

// TxIsolation always reports the default level: sqlite is a
// single-writer engine, so requested levels are accepted and ignored.
func (Sqlite) TxIsolation(sql.IsolationLevel) sql.IsolationLevel {
	return sql.LevelDefault
}

func (Sqlite) Dates() DateFunctions { return sqliteDates{} }

// FullText reports no native predicate; callers degrade to LIKE.
// FTS5 needs a dedicated virtual table, which entity tables are not.
func (Sqlite) FullText(string, string) (query.Cond, bool) { return nil, false }

func (Sqlite) TableExistsSQL(table string) (string, []any) {
	return "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", []any{table}
}

func (Sqlite) ColumnsSQL(table string) (string, []any) {
	return "SELECT name AS name, type AS type, " +
		"CASE WHEN \"notnull\" = 0 THEN 1 ELSE 0 END AS nullable, " +
		"dflt_value AS dflt, pk AS pk " +
		"FROM pragma_table_info(?) ORDER BY cid", []any{table}
}

func (Sqlite) PrimaryKeySQL(table string) (string, []any) {
	return "SELECT name AS name FROM pragma_table_info(?) WHERE pk > 0 ORDER BY pk", []any{table}
}

func (Sqlite) VersionSQL() string { return "SELECT sqlite_version() AS version" }

func (Sqlite) OnConnect() []string {
	return []string{"PRAGMA foreign_keys = ON"}
}

type sqliteDates struct{}

func (sqliteDates) Now() string         { return "datetime('now')" }
func (sqliteDates) CurrentDate() string { return "date('now')" }

func (sqliteDates) DateAdd(expr string, n int, unit DateUnit) string {
	return fmt.Sprintf("datetime(%s, '%+d %s')", expr, n, unit)
}

// DateDiff counts whole days between two date expressions.
func (sqliteDates) DateDiff(a, b string) string {
	return fmt.Sprintf("CAST(julianday(%s) - julianday(%s) AS INTEGER)", a, b)
}

func (sqliteDates) DateFormat(expr, format string) string {
	return fmt.Sprintf("strftime('%s', %s)", format, expr)
}
