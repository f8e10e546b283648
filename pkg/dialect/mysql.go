package dialect

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/entable/entable/pkg/query"
)

// MySQL targets the go-sql-driver/mysql driver.
type MySQL struct{}

func init() {
	Register(MySQL{})
}

func (MySQL) Name() string       { return "mysql" }
func (MySQL) DriverName() string { return "mysql" }

// DSN renders user:pass@tcp(host:port)/db. parseTime is always set so
// DATETIME columns scan as time.Time.
func (MySQL) DSN(opts DSNOptions) string {
	host := opts.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := opts.Port
	if port == 0 {
		port = 3306
	}
	var sb strings.Builder
	if opts.User != "" {
		sb.WriteString(opts.User)
		if opts.Password != "" {
			sb.WriteString(":" + opts.Password)
		}
		sb.WriteString("@")
	}
	fmt.Fprintf(&sb, "tcp(%s:%d)/%s?parseTime=true", host, port, opts.Database)
	keys := make([]string, 0, len(opts.Params))
	for k := range opts.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString("&" + k + "=" + opts.Params[k])
	}
	return sb.String()
}

func (MySQL) Quote(ident string) string { return quoteWith(ident, '`', '`') }

func (MySQL) SQLType(t ColumnType) string {
	switch t {
	case TypeInteger:
		return "INT"
	case TypeBoolean:
		return "TINYINT(1)"
	case TypeNumber:
		return "DOUBLE"
	case TypeDatetime:
		return "DATETIME"
	case TypeJSON:
		return "JSON"
	default:
		return "VARCHAR(255)"
	}
}

func (MySQL) AutoIncrementType() string   { return "INT" }
func (MySQL) AutoIncrementClause() string { return "PRIMARY KEY AUTO_INCREMENT" }

func (MySQL) Rebind(text string) string { return text }

func (MySQL) TxIsolation(level sql.IsolationLevel) sql.IsolationLevel {
	return level
}

func (MySQL) Dates() DateFunctions { return mysqlDates{} }

func (MySQL) FullText(col, term string) (query.Cond, bool) {
	return query.Expr(fmt.Sprintf("MATCH(%s) AGAINST (? IN NATURAL LANGUAGE MODE)", col), term), true
}

func (MySQL) TableExistsSQL(table string) (string, []any) {
	return "SELECT table_name AS name FROM information_schema.tables " +
		"WHERE table_schema = DATABASE() AND table_name = ?", []any{table}
}

func (MySQL) ColumnsSQL(table string) (string, []any) {
	return "SELECT column_name AS name, data_type AS type, " +
		"CASE WHEN is_nullable = 'YES' THEN 1 ELSE 0 END AS nullable, " +
		"column_default AS dflt, " +
		"CASE WHEN column_key = 'PRI' THEN 1 ELSE 0 END AS pk " +
		"FROM information_schema.columns " +
		"WHERE table_schema = DATABASE() AND table_name = ? ORDER BY ordinal_position", []any{table}
}

func (MySQL) PrimaryKeySQL(table string) (string, []any) {
	return "SELECT column_name AS name FROM information_schema.key_column_usage " +
		"WHERE table_schema = DATABASE() AND table_name = ? AND constraint_name = 'PRIMARY' " +
		"ORDER BY ordinal_position", []any{table}
}

func (MySQL) VersionSQL() string { return "SELECT VERSION() AS version" }

func (MySQL) OnConnect() []string { return nil }

type mysqlDates struct{}

func (mysqlDates) Now() string         { return "NOW()" }
func (mysqlDates) CurrentDate() string { return "CURDATE()" }

func (mysqlDates) DateAdd(expr string, n int, unit DateUnit) string {
	return fmt.Sprintf("DATE_ADD(%s, INTERVAL %d %s)", expr, n, strings.ToUpper(string(unit)))
}

// DateDiff counts whole days between two date expressions.
func (mysqlDates) DateDiff(a, b string) string {
	return fmt.Sprintf("DATEDIFF(%s, %s)", a, b)
}

func (mysqlDates) DateFormat(expr, format string) string {
	return fmt.Sprintf("DATE_FORMAT(%s, '%s')", expr, format)
}
