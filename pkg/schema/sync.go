// Package schema creates the physical tables behind entity configs.
// Synchronization is best-effort and idempotent: existing tables are
// skipped, per-table failures are logged and collected, and the run
// keeps going so one bad entity cannot block the rest.
package schema

import (
	"context"

	"go.uber.org/zap"

	"github.com/entable/entable/pkg/adapter"
	"github.com/entable/entable/pkg/entity"
)

// Options selects the synchronization behavior.
type Options struct {
	// DropTables drops each table before creating it, recreating the
	// schema from scratch. Data is lost; meant for tests and dev.
	DropTables bool
	// CreateForeignKeys adds foreign-key constraints to the tables
	// being created.
	CreateForeignKeys bool
}

// Failure is one table that could not be synchronized.
type Failure struct {
	Table string
	Err   error
}

// Report lists the outcome per table. A table appears in exactly one
// list.
type Report struct {
	Created []string
	Skipped []string
	Failed  []Failure
}

// Ok reports whether every table synchronized cleanly.
func (r *Report) Ok() bool { return len(r.Failed) == 0 }

func (r *Report) created(table string) { r.Created = append(r.Created, table) }
func (r *Report) skipped(table string) { r.Skipped = append(r.Skipped, table) }
func (r *Report) failed(table string, err error) {
	r.Failed = append(r.Failed, Failure{Table: table, Err: err})
}

// Synchronizer drives table creation through one adapter.
type Synchronizer struct {
	a   adapter.Adapter
	log *zap.Logger
}

func New(a adapter.Adapter, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{a: a, log: logger}
}

// Synchronize creates the tables for every entity config, then the
// junction tables their relations and explicit declarations need. The
// returned error covers config validation only; table-level problems
// land in the report.
func (s *Synchronizer) Synchronize(ctx context.Context, entities []*entity.Config, opts Options) (*Report, error) {
	reg := entity.NewRegistry()
	if err := reg.Replace(entities); err != nil {
		return nil, err
	}

	report := &Report{}
	for _, cfg := range entities {
		s.syncTable(ctx, report, cfg.Table, opts, func() error {
			return s.a.CreateTable(ctx, cfg, opts.CreateForeignKeys)
		})
	}
	for _, jt := range collectJunctions(entities) {
		s.syncTable(ctx, report, jt.Table, opts, func() error {
			return s.a.CreateJunctionTable(ctx, jt, reg, opts.CreateForeignKeys)
		})
	}
	return report, nil
}

// syncTable applies the drop/skip/create sequence for one table and
// files the outcome.
func (s *Synchronizer) syncTable(ctx context.Context, report *Report, table string, opts Options, create func() error) {
	if opts.DropTables {
		if err := s.a.DropTable(ctx, table); err != nil {
			s.log.Warn("drop failed", zap.String("table", table), zap.Error(err))
			report.failed(table, err)
			return
		}
	}
	exists, err := s.a.TableExists(ctx, table)
	if err != nil {
		s.log.Warn("existence check failed", zap.String("table", table), zap.Error(err))
		report.failed(table, err)
		return
	}
	if exists {
		s.log.Debug("table exists", zap.String("table", table))
		report.skipped(table)
		return
	}
	if err := create(); err != nil {
		s.log.Warn("create failed", zap.String("table", table), zap.Error(err))
		report.failed(table, err)
		return
	}
	s.log.Info("table created", zap.String("table", table))
	report.created(table)
}

// collectJunctions gathers every junction table the entity set needs:
// the explicit declarations plus one per many-to-many relation. A
// table declared from both ends is created once; the owning side's
// declaration wins, otherwise the first seen.
func collectJunctions(entities []*entity.Config) []*entity.JunctionTable {
	var order []string
	byTable := map[string]*entity.JunctionTable{}
	owning := map[string]bool{}

	add := func(jt *entity.JunctionTable, owns bool) {
		if _, ok := byTable[jt.Table]; ok {
			if owns && !owning[jt.Table] {
				byTable[jt.Table] = jt
				owning[jt.Table] = true
			}
			return
		}
		byTable[jt.Table] = jt
		owning[jt.Table] = owns
		order = append(order, jt.Table)
	}

	for _, cfg := range entities {
		for _, jt := range cfg.JunctionTables {
			// Explicit declarations are authoritative for their table.
			add(jt, true)
		}
		for _, rel := range cfg.Relations {
			if rel.Kind != entity.ManyToMany {
				continue
			}
			jt, err := entity.JunctionTableFromRelation(cfg, rel)
			if err != nil {
				continue
			}
			add(jt, rel.Junction.Owning)
		}
	}

	out := make([]*entity.JunctionTable, 0, len(order))
	for _, table := range order {
		out = append(out, byTable[table])
	}
	return out
}
