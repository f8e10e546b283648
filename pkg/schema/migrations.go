package schema

import (
	"context"
	"sync"
	"time"

	"github.com/jinzhu/now"

	"github.com/entable/entable/pkg/adapter"
	"github.com/entable/entable/pkg/dialect"
	"github.com/entable/entable/pkg/entity"
	"github.com/entable/entable/pkg/query"
)

// MigrationTable is the framework-owned bookkeeping table recording
// synchronization runs.
const MigrationTable = "schema_migrations"

// Migration is one recorded run. Timestamp is the run's logical
// version stamp; ExecutedAt the wall-clock moment it finished.
type Migration struct {
	ID         int64
	Name       string
	Timestamp  int64
	ExecutedAt time.Time
	DurationMS int64
}

var (
	migrationOnce sync.Once
	migrationCfg  *entity.Config
)

// migrationConfig describes the bookkeeping table with the same config
// machinery user entities use, so its DDL rides the normal path.
func migrationConfig() *entity.Config {
	migrationOnce.Do(func() {
		cfg := &entity.Config{
			Entity:  "SchemaMigration",
			Table:   MigrationTable,
			IDField: entity.IDField{"id"},
			Columns: []*entity.Column{
				{Logical: "id", Type: dialect.TypeInteger, PrimaryKey: true, AutoIncrement: true},
				{Logical: "name", Type: dialect.TypeString},
				{Logical: "timestamp", Type: dialect.TypeInteger},
				{Logical: "executedAt", Physical: "executed_at", Type: dialect.TypeDatetime},
				{Logical: "durationMs", Physical: "duration_ms", Type: dialect.TypeInteger},
			},
		}
		if err := cfg.Validate(); err != nil {
			panic(err)
		}
		migrationCfg = cfg
	})
	return migrationCfg
}

// EnsureMigrationTable creates the bookkeeping table if it is missing.
func EnsureMigrationTable(ctx context.Context, a adapter.Adapter) error {
	return a.CreateTable(ctx, migrationConfig(), false)
}

// RecordMigration appends one run. Zero Timestamp and ExecutedAt
// default to the current moment.
func RecordMigration(ctx context.Context, a adapter.Adapter, m Migration) error {
	if m.ExecutedAt.IsZero() {
		m.ExecutedAt = time.Now().UTC()
	}
	if m.Timestamp == 0 {
		m.Timestamp = m.ExecutedAt.Unix()
	}
	_, err := a.Insert(ctx, MigrationTable, map[string]any{
		"name":        m.Name,
		"timestamp":   m.Timestamp,
		"executed_at": m.ExecutedAt,
		"duration_ms": m.DurationMS,
	})
	return err
}

// ListMigrations returns every recorded run in insertion order.
func ListMigrations(ctx context.Context, a adapter.Adapter) ([]Migration, error) {
	rows, err := a.FindAll(ctx, MigrationTable, &adapter.FindOptions{
		OrderBy: []adapter.Order{{Field: "id", Dir: query.Asc}},
	})
	if err != nil {
		return nil, err
	}
	out := make([]Migration, 0, len(rows))
	for _, row := range rows {
		m := Migration{
			ID:         query.ToInt64(row["id"]),
			Timestamp:  query.ToInt64(row["timestamp"]),
			DurationMS: query.ToInt64(row["duration_ms"]),
		}
		if s, ok := row["name"].(string); ok {
			m.Name = s
		}
		switch v := row["executed_at"].(type) {
		case time.Time:
			m.ExecutedAt = v
		case string:
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				m.ExecutedAt = ts
			} else if ts, err := now.Parse(v); err == nil {
				m.ExecutedAt = ts
			}
		}
		out = append(out, m)
	}
	return out, nil
}
