package schema

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entable/entable/pkg/query"
)

func TestEnsureMigrationTable(t *testing.T) {
	f := newFakeAdapter()
	require.NoError(t, EnsureMigrationTable(context.Background(), f))

	cfg, ok := f.tableCfgs[MigrationTable]
	require.True(t, ok, "bookkeeping table rides the normal DDL path")
	assert.Equal(t, "schema_migrations", cfg.Table)
	require.Len(t, cfg.Columns, 5)
	auto, ok := cfg.AutoIncrementColumn()
	require.True(t, ok)
	assert.Equal(t, "id", auto.Logical)
}

func TestRecordMigration(t *testing.T) {
	f := newFakeAdapter()
	executed := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

	err := RecordMigration(context.Background(), f, Migration{
		Name:       "initial sync",
		Timestamp:  1700000000,
		ExecutedAt: executed,
		DurationMS: 42,
	})
	require.NoError(t, err)
	require.Len(t, f.inserts, 1)

	values := f.inserts[0]
	assert.Equal(t, "initial sync", values["name"])
	assert.Equal(t, int64(1700000000), values["timestamp"])
	assert.Equal(t, executed, values["executed_at"])
	assert.Equal(t, int64(42), values["duration_ms"])
}

func TestRecordMigrationDefaults(t *testing.T) {
	f := newFakeAdapter()
	require.NoError(t, RecordMigration(context.Background(), f, Migration{Name: "sync"}))
	require.Len(t, f.inserts, 1)

	values := f.inserts[0]
	executed, ok := values["executed_at"].(time.Time)
	require.True(t, ok)
	assert.False(t, executed.IsZero())
	assert.Equal(t, executed.Unix(), values["timestamp"].(int64))
}

func TestListMigrations(t *testing.T) {
	f := newFakeAdapter()
	executed := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	f.findRows = []query.Row{
		{
			"id": int64(1), "name": "initial sync", "timestamp": int64(1700000000),
			"executed_at": "2024-03-01T10:30:00Z", "duration_ms": int64(42),
		},
		{
			"id": int64(2), "name": "nightly sync", "timestamp": int64(1700000100),
			"executed_at": executed.Add(time.Hour), "duration_ms": int64(7),
		},
	}

	migrations, err := ListMigrations(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, int64(1), migrations[0].ID)
	assert.Equal(t, "initial sync", migrations[0].Name)
	assert.Equal(t, int64(1700000000), migrations[0].Timestamp)
	assert.True(t, migrations[0].ExecutedAt.Equal(executed), "text stamps parse back")
	assert.Equal(t, int64(42), migrations[0].DurationMS)

	assert.Equal(t, "nightly sync", migrations[1].Name)
	assert.True(t, migrations[1].ExecutedAt.Equal(executed.Add(time.Hour)))
}
