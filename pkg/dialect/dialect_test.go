package dialect

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	for _, name := range []string{"sqlite3", "mysql", "postgres"} {
		d, err := Get(name)
		require.NoError(t, err)
		assert.Equal(t, name, d.Name())
	}
	_, err := Get("oracle")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dialect")
	assert.Contains(t, err.Error(), "sqlite3")
}

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		d    Dialect
		opts DSNOptions
		want string
	}{
		{"sqlite memory default", Sqlite{}, DSNOptions{}, ":memory:"},
		{"sqlite file", Sqlite{}, DSNOptions{Path: "/var/data/app.db"}, "/var/data/app.db"},
		{
			"sqlite params sorted",
			Sqlite{},
			DSNOptions{Path: "app.db", Params: map[string]string{"cache": "shared", "_busy_timeout": "5000"}},
			"app.db?_busy_timeout=5000&cache=shared",
		},
		{
			"mysql",
			MySQL{},
			DSNOptions{Host: "db", Port: 3307, Database: "app", User: "root", Password: "pw"},
			"root:pw@tcp(db:3307)/app?parseTime=true",
		},
		{
			"mysql defaults",
			MySQL{},
			DSNOptions{Database: "app"},
			"tcp(127.0.0.1:3306)/app?parseTime=true",
		},
		{
			"postgres",
			Postgres{},
			DSNOptions{Host: "db", Port: 5433, Database: "app", User: "app", Password: "pw"},
			"host=db port=5433 dbname=app user=app password=pw",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.d.DSN(tt.opts))
		})
	}
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `"users"`, Sqlite{}.Quote("users"))
	assert.Equal(t, `"users"."name"`, Sqlite{}.Quote("users.name"))
	assert.Equal(t, "`users`.`name`", MySQL{}.Quote("users.name"))
	assert.Equal(t, `"users"."name"`, Postgres{}.Quote("users.name"))
}

func TestSQLType(t *testing.T) {
	tests := []struct {
		d    Dialect
		t    ColumnType
		want string
	}{
		{Sqlite{}, TypeInteger, "INTEGER"},
		{Sqlite{}, TypeString, "TEXT"},
		{Sqlite{}, TypeBoolean, "INTEGER"},
		{Sqlite{}, TypeNumber, "REAL"},
		{Sqlite{}, TypeDatetime, "DATETIME"},
		{Sqlite{}, TypeJSON, "TEXT"},
		{MySQL{}, TypeString, "VARCHAR(255)"},
		{MySQL{}, TypeBoolean, "TINYINT(1)"},
		{MySQL{}, TypeJSON, "JSON"},
		{Postgres{}, TypeBoolean, "BOOLEAN"},
		{Postgres{}, TypeNumber, "DOUBLE PRECISION"},
		{Postgres{}, TypeJSON, "JSONB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.d.SQLType(tt.t), "%s/%s", tt.d.Name(), tt.t)
	}
}

func TestRebind(t *testing.T) {
	text := "SELECT * FROM t WHERE a = ? AND b IN (?, ?)"
	assert.Equal(t, text, Sqlite{}.Rebind(text))
	assert.Equal(t, text, MySQL{}.Rebind(text))
	assert.Equal(t,
		"SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)",
		Postgres{}.Rebind(text))
}

func TestTxIsolation(t *testing.T) {
	// sqlite clamps everything to the default; the request is ignored,
	// never rejected.
	assert.Equal(t, sql.LevelDefault, Sqlite{}.TxIsolation(sql.LevelSerializable))
	assert.Equal(t, sql.LevelSerializable, MySQL{}.TxIsolation(sql.LevelSerializable))
	assert.Equal(t, sql.LevelRepeatableRead, Postgres{}.TxIsolation(sql.LevelRepeatableRead))
}

func TestDates(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"sqlite now", Sqlite{}.Dates().Now(), "datetime('now')"},
		{"sqlite current date", Sqlite{}.Dates().CurrentDate(), "date('now')"},
		{"sqlite add", Sqlite{}.Dates().DateAdd("created_at", 5, UnitDay), "datetime(created_at, '+5 day')"},
		{"sqlite subtract", Sqlite{}.Dates().DateAdd("created_at", -1, UnitMonth), "datetime(created_at, '-1 month')"},
		{"sqlite diff", Sqlite{}.Dates().DateDiff("a", "b"), "CAST(julianday(a) - julianday(b) AS INTEGER)"},
		{"sqlite format", Sqlite{}.Dates().DateFormat("created_at", "%Y-%m"), "strftime('%Y-%m', created_at)"},
		{"mysql add", MySQL{}.Dates().DateAdd("created_at", 2, UnitHour), "DATE_ADD(created_at, INTERVAL 2 HOUR)"},
		{"mysql diff", MySQL{}.Dates().DateDiff("a", "b"), "DATEDIFF(a, b)"},
		{"mysql format", MySQL{}.Dates().DateFormat("created_at", "%Y-%m"), "DATE_FORMAT(created_at, '%Y-%m')"},
		{"postgres add", Postgres{}.Dates().DateAdd("created_at", 3, UnitYear), "created_at + INTERVAL '3 year'"},
		{"postgres diff", Postgres{}.Dates().DateDiff("a", "b"), "(a::date - b::date)"},
		{"postgres format", Postgres{}.Dates().DateFormat("created_at", "YYYY-MM"), "TO_CHAR(created_at, 'YYYY-MM')"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestFullText(t *testing.T) {
	_, ok := Sqlite{}.FullText("bio", "gopher")
	assert.False(t, ok, "sqlite degrades to LIKE")

	cond, ok := MySQL{}.FullText("bio", "gopher")
	require.True(t, ok)
	assert.True(t, cond.IsValid())

	cond, ok = Postgres{}.FullText("bio", "gopher")
	require.True(t, ok)
	assert.True(t, cond.IsValid())
}

func TestColumnInfoFromRow(t *testing.T) {
	info := ColumnInfoFromRow(map[string]any{
		"name":     "user_id",
		"type":     "INTEGER",
		"nullable": int64(0),
		"dflt":     nil,
		"pk":       int64(1),
	})
	assert.Equal(t, "user_id", info.Name)
	assert.Equal(t, "INTEGER", info.Type)
	assert.False(t, info.Nullable)
	assert.False(t, info.HasDefault)
	assert.True(t, info.PrimaryKey)

	info = ColumnInfoFromRow(map[string]any{
		"name":     []byte("email"),
		"type":     []byte("TEXT"),
		"nullable": int64(1),
		"dflt":     "''",
	})
	assert.Equal(t, "email", info.Name)
	assert.True(t, info.Nullable)
	assert.True(t, info.HasDefault)
	assert.Equal(t, "''", info.Default)
	assert.False(t, info.PrimaryKey)
}
