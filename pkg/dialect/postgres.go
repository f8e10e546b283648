package dialect

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/entable/entable/pkg/query"
)

// Postgres targets the pgx stdlib driver.
type Postgres struct{}

func init() {
	Register(Postgres{})
}

func (Postgres) Name() string       { return "postgres" }
func (Postgres) DriverName() string { return "pgx" }

func (Postgres) DSN(opts DSNOptions) string {
	host := opts.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := opts.Port
	if port == 0 {
		port = 5432
	}
	parts := []string{
		fmt.Sprintf("host=%s", host),
		fmt.Sprintf("port=%d", port),
		fmt.Sprintf("dbname=%s", opts.Database),
	}
	if opts.User != "" {
		parts = append(parts, "user="+opts.User)
	}
	if opts.Password != "" {
		parts = append(parts, "password="+opts.Password)
	}
	keys := make([]string, 0, len(opts.Params))
	for k := range opts.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+opts.Params[k])
	}
	return strings.Join(parts, " ")
}

func (Postgres) Quote(ident string) string { return quoteWith(ident, '"', '"') }

func (Postgres) SQLType(t ColumnType) string {
	switch t {
	case TypeInteger:
		return "INTEGER"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeNumber:
		return "DOUBLE PRECISION"
	case TypeDatetime:
		return "TIMESTAMP"
	case TypeJSON:
		return "JSONB"
	default:
		return "TEXT"
	}
}

func (Postgres) AutoIncrementType() string   { return "SERIAL" }
func (Postgres) AutoIncrementClause() string { return "PRIMARY KEY" }

// Rebind rewrites '?' markers to $1..$N positional parameters.
func (Postgres) Rebind(text string) string { return rebindDollar(text) }

func (Postgres) TxIsolation(level sql.IsolationLevel) sql.IsolationLevel {
	return level
}

func (Postgres) Dates() DateFunctions { return postgresDates{} }

func (Postgres) FullText(col, term string) (query.Cond, bool) {
	return query.Expr(fmt.Sprintf("to_tsvector(%s) @@ plainto_tsquery(?)", col), term), true
}

func (Postgres) TableExistsSQL(table string) (string, []any) {
	return "SELECT table_name AS name FROM information_schema.tables " +
		"WHERE table_schema = current_schema() AND table_name = ?", []any{table}
}

func (Postgres) ColumnsSQL(table string) (string, []any) {
	return "SELECT c.column_name AS name, c.data_type AS type, " +
		"CASE WHEN c.is_nullable = 'YES' THEN 1 ELSE 0 END AS nullable, " +
		"c.column_default AS dflt, " +
		"CASE WHEN k.column_name IS NULL THEN 0 ELSE 1 END AS pk " +
		"FROM information_schema.columns c " +
		"LEFT JOIN information_schema.key_column_usage k " +
		"ON k.table_schema = c.table_schema AND k.table_name = c.table_name " +
		"AND k.column_name = c.column_name AND k.constraint_name IN (" +
		"SELECT constraint_name FROM information_schema.table_constraints " +
		"WHERE table_schema = c.table_schema AND table_name = c.table_name AND constraint_type = 'PRIMARY KEY') " +
		"WHERE c.table_schema = current_schema() AND c.table_name = ? ORDER BY c.ordinal_position", []any{table}
}

func (Postgres) PrimaryKeySQL(table string) (string, []any) {
	return "SELECT k.column_name AS name FROM information_schema.table_constraints t " +
		"JOIN information_schema.key_column_usage k " +
		"ON k.constraint_name = t.constraint_name AND k.table_schema = t.table_schema " +
		"WHERE t.table_schema = current_schema() AND t.table_name = ? " +
		"AND t.constraint_type = 'PRIMARY KEY' ORDER BY k.ordinal_position", []any{table}
}

func (Postgres) VersionSQL() string { return "SELECT version() AS version" }

func (Postgres) OnConnect() []string { return nil }

type postgresDates struct{}

func (postgresDates) Now() string         { return "NOW()" }
func (postgresDates) CurrentDate() string { return "CURRENT_DATE" }

func (postgresDates) DateAdd(expr string, n int, unit DateUnit) string {
	return fmt.Sprintf("%s + INTERVAL '%d %s'", expr, n, unit)
}

// DateDiff counts whole days between two date expressions.
func (postgresDates) DateDiff(a, b string) string {
	return fmt.Sprintf("(%s::date - %s::date)", a, b)
}

func (postgresDates) DateFormat(expr, format string) string {
	return fmt.Sprintf("TO_CHAR(%s, '%s')", expr, format)
}
