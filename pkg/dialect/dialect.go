// Package dialect isolates the differences between the supported SQL
// engines behind small strategy objects. Adding an engine means adding
// one file that implements Dialect and registers itself; nothing in
// the builder or adapter layers changes.
package dialect

import (
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/entable/entable/pkg/query"
)

// ColumnType is the semantic type declared for an entity column. The
// dialect maps it to a physical SQL type.
type ColumnType string

const (
	TypeInteger  ColumnType = "integer"
	TypeString   ColumnType = "string"
	TypeBoolean  ColumnType = "boolean"
	TypeNumber   ColumnType = "number"
	TypeDatetime ColumnType = "datetime"
	TypeJSON     ColumnType = "json"
)

// DateUnit names a calendar unit for date arithmetic.
type DateUnit string

const (
	UnitSecond DateUnit = "second"
	UnitMinute DateUnit = "minute"
	UnitHour   DateUnit = "hour"
	UnitDay    DateUnit = "day"
	UnitMonth  DateUnit = "month"
	UnitYear   DateUnit = "year"
)

// DateFunctions produces SQL fragments for the date expressions whose
// syntax differs per engine. Format strings are in the engine's own
// format language.
type DateFunctions interface {
	Now() string
	CurrentDate() string
	DateAdd(expr string, n int, unit DateUnit) string
	DateDiff(a, b string) string
	DateFormat(expr, format string) string
}

// DSNOptions carries the connection settings a dialect turns into a
// driver DSN.
type DSNOptions struct {
	Path     string // file path or :memory: (embedded engines)
	Host     string
	Port     int
	Database string
	User     string
	Password string
	Params   map[string]string
}

// ColumnInfo is the normalized shape of one introspected column.
type ColumnInfo struct {
	Name       string
	Type       string
	Nullable   bool
	Default    string
	HasDefault bool
	PrimaryKey bool
}

// Dialect is the per-engine strategy consumed by the adapter, the
// entity DDL builder and the date helpers on entity-aware builders.
type Dialect interface {
	Name() string
	DriverName() string
	// DSN renders driver connection text from the options.
	DSN(opts DSNOptions) string
	// Quote wraps an identifier in the engine's quoting characters.
	Quote(ident string) string
	// SQLType maps a semantic column type to the engine's type name.
	SQLType(t ColumnType) string
	// AutoIncrementType is the type text for a single-column
	// auto-increment primary key.
	AutoIncrementType() string
	// AutoIncrementClause follows the type of such a column; it
	// includes the PRIMARY KEY keyword when the engine requires the
	// two inline together.
	AutoIncrementClause() string
	// Rebind rewrites '?' placeholders into the engine's positional
	// markers. Engines that use '?' return the text unchanged.
	Rebind(query string) string
	// TxIsolation clamps an isolation request to what the engine can
	// honor. Embedded single-writer engines return LevelDefault for
	// every request: the level is accepted and ignored, never an
	// error.
	TxIsolation(level sql.IsolationLevel) sql.IsolationLevel
	Dates() DateFunctions
	// FullText returns a native full-text predicate for the column,
	// or ok=false when the engine has none and the caller should
	// degrade to LIKE.
	FullText(col, term string) (query.Cond, bool)
	TableExistsSQL(table string) (string, []any)
	// ColumnsSQL must select the aliases name, type, nullable and
	// dflt so ColumnInfoFromRow can normalize rows for any engine.
	ColumnsSQL(table string) (string, []any)
	// PrimaryKeySQL selects the primary-key column names, aliased
	// name, in key order.
	PrimaryKeySQL(table string) (string, []any)
	VersionSQL() string
	// OnConnect lists statements to run once per fresh connection,
	// e.g. enabling foreign-key enforcement on sqlite.
	OnConnect() []string
}

var registry = map[string]Dialect{}

// Register adds a dialect to the static capability registry. The
// built-in engines register themselves; external packages may add
// more.
func Register(d Dialect) {
	registry[d.Name()] = d
}

// Get looks up a registered dialect by name.
func Get(name string) (Dialect, error) {
	d, ok := registry[name]
	if !ok {
		names := make([]string, 0, len(registry))
		for n := range registry {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("dialect: unknown dialect %q (registered: %s)", name, strings.Join(names, ", "))
	}
	return d, nil
}

// ColumnInfoFromRow normalizes one row of a ColumnsSQL result.
func ColumnInfoFromRow(row query.Row) ColumnInfo {
	info := ColumnInfo{
		Name: asString(row["name"]),
		Type: asString(row["type"]),
	}
	if v, ok := row["nullable"]; ok && v != nil {
		info.Nullable = query.ToInt64(v) != 0
	}
	if v, ok := row["dflt"]; ok && v != nil {
		info.Default = asString(v)
		info.HasDefault = true
	}
	if v, ok := row["pk"]; ok && v != nil {
		info.PrimaryKey = query.ToInt64(v) > 0
	}
	return info
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// rebindDollar rewrites '?' markers to $1..$N. Quoted text is not
// parsed; callers embedding literal question marks should bind them
// instead.
func rebindDollar(text string) string {
	var sb strings.Builder
	sb.Grow(len(text) + 8)
	n := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(text[i])
	}
	return sb.String()
}

func quoteWith(ident string, open, close byte) string {
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		parts[i] = string(open) + p + string(close)
	}
	return strings.Join(parts, ".")
}
