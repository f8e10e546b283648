package entity

import (
	"context"
	"fmt"
	"time"

	"github.com/entable/entable/pkg/dialect"
	"github.com/entable/entable/pkg/query"
)

// Builder is the entity-aware query builder: the fluent surface of the
// generic query.Builder, but speaking logical column and relation
// names. Every name is resolved against the entity config before it
// reaches the generic builder; an unresolvable name poisons the
// builder with a MappingError, and no SQL reaches the driver once that
// has happened.
//
// Mutators keep chaining after a resolution failure; the first error
// sticks and surfaces from Err and from every execute method.
type Builder struct {
	cfg *Config
	reg *Registry
	d   dialect.Dialect
	qb  *query.Builder
	err error
}

// NewBuilder scopes a builder to one entity. The registry resolves
// relation targets; exec may be nil for render-only use.
func NewBuilder(cfg *Config, reg *Registry, d dialect.Dialect, exec query.Executor) *Builder {
	qb := query.NewBuilder().From(cfg.Table)
	if exec != nil {
		qb.Bind(exec)
	}
	return &Builder{cfg: cfg, reg: reg, d: d, qb: qb}
}

// Config reports the entity config the builder is scoped to.
func (b *Builder) Config() *Config { return b.cfg }

// Generic exposes the wrapped generic builder for clauses that have no
// logical-name equivalent, e.g. raw select expressions.
func (b *Builder) Generic() *query.Builder { return b.qb }

// Err reports the first name-resolution failure, if any.
func (b *Builder) Err() error { return b.err }

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// ref resolves a logical column to its table-qualified physical name.
func (b *Builder) ref(logical string) (string, error) {
	phys, err := b.cfg.Physical(logical)
	if err != nil {
		return "", err
	}
	return b.cfg.Table + "." + phys, nil
}

// SelectColumns appends logical columns to the select list.
func (b *Builder) SelectColumns(logical ...string) *Builder {
	for _, name := range logical {
		ref, err := b.ref(name)
		if err != nil {
			return b.fail(err)
		}
		b.qb.Select(ref)
	}
	return b
}

// SelectRaw appends a computed select expression verbatim.
func (b *Builder) SelectRaw(expr string, args ...any) *Builder {
	b.qb.SelectRaw(expr, args...)
	return b
}

// Distinct marks the select list DISTINCT.
func (b *Builder) Distinct() *Builder {
	b.qb.Distinct()
	return b
}

func (b *Builder) columnCond(logical string, op query.Op, value any) (query.Cond, error) {
	ref, err := b.ref(logical)
	if err != nil {
		return nil, err
	}
	return query.Compare(ref, op, value)
}

// WhereColumn starts a fresh predicate tree from one structured
// condition on a logical column.
func (b *Builder) WhereColumn(logical string, op query.Op, value any) *Builder {
	cond, err := b.columnCond(logical, op, value)
	if err != nil {
		return b.fail(err)
	}
	b.qb.Where(cond)
	return b
}

// AndWhereColumn grafts a structured condition onto the predicate tree
// with AND.
func (b *Builder) AndWhereColumn(logical string, op query.Op, value any) *Builder {
	cond, err := b.columnCond(logical, op, value)
	if err != nil {
		return b.fail(err)
	}
	b.qb.AndWhere(cond)
	return b
}

// OrWhereColumn grafts a structured condition onto the predicate tree
// with OR.
func (b *Builder) OrWhereColumn(logical string, op query.Op, value any) *Builder {
	cond, err := b.columnCond(logical, op, value)
	if err != nil {
		return b.fail(err)
	}
	b.qb.OrWhere(cond)
	return b
}

// Where passes a prebuilt condition through to the generic builder,
// discarding any previous predicate tree.
func (b *Builder) Where(cond query.Cond) *Builder {
	b.qb.Where(cond)
	return b
}

// AndWhere passes a prebuilt condition through with AND.
func (b *Builder) AndWhere(cond query.Cond) *Builder {
	b.qb.AndWhere(cond)
	return b
}

// OrWhere passes a prebuilt condition through with OR.
func (b *Builder) OrWhere(cond query.Cond) *Builder {
	b.qb.OrWhere(cond)
	return b
}

// OrderByColumn appends a sort on a logical column.
func (b *Builder) OrderByColumn(logical string, dir query.Direction) *Builder {
	ref, err := b.ref(logical)
	if err != nil {
		return b.fail(err)
	}
	b.qb.OrderBy(ref, dir)
	return b
}

// GroupByColumns appends grouping on logical columns.
func (b *Builder) GroupByColumns(logical ...string) *Builder {
	for _, name := range logical {
		ref, err := b.ref(name)
		if err != nil {
			return b.fail(err)
		}
		b.qb.GroupBy(ref)
	}
	return b
}

// Having grafts a HAVING condition onto the statement.
func (b *Builder) Having(cond query.Cond) *Builder {
	b.qb.Having(cond)
	return b
}

// Limit caps the row count.
func (b *Builder) Limit(n int) *Builder {
	b.qb.Limit(n)
	return b
}

// Offset skips leading rows.
func (b *Builder) Offset(n int) *Builder {
	b.qb.Offset(n)
	return b
}

// JoinRelated joins the named relation's target with an INNER JOIN.
// A ManyToMany relation emits two joins through its junction table;
// the junction always gets the alias "j_<relation>" so joining the
// same junction twice in one statement cannot collide. The optional
// alias names the target table; it defaults to the relation name when
// the relation is self-referential.
func (b *Builder) JoinRelated(name string, alias ...string) *Builder {
	return b.joinRelated(query.InnerJoinKind, name, alias...)
}

// LeftJoinRelated joins the named relation's target with a LEFT JOIN.
func (b *Builder) LeftJoinRelated(name string, alias ...string) *Builder {
	return b.joinRelated(query.LeftJoinKind, name, alias...)
}

func (b *Builder) joinRelated(kind query.JoinKind, name string, alias ...string) *Builder {
	rel, err := b.cfg.Relation(name)
	if err != nil {
		return b.fail(err)
	}
	target, ok := b.reg.Get(rel.Target)
	if !ok {
		return b.fail(unknownEntity(b.cfg.Entity, rel.Target))
	}
	srcPhys, err := b.cfg.Physical(rel.SourceColumn)
	if err != nil {
		return b.fail(err)
	}
	tgtPhys, err := target.Physical(rel.TargetColumn)
	if err != nil {
		return b.fail(&MappingError{Entity: rel.Target, Kind: "column", Name: rel.TargetColumn})
	}

	tgtAlias := ""
	if len(alias) > 0 {
		tgtAlias = alias[0]
	} else if target.Table == b.cfg.Table {
		tgtAlias = rel.Name
	}
	tgtRef := target.Table
	tgtClause := target.Table
	if tgtAlias != "" {
		tgtRef = tgtAlias
		tgtClause = target.Table + " AS " + tgtAlias
	}

	switch rel.Kind {
	case ManyToMany:
		j := rel.Junction
		jalias := "j_" + rel.Name
		b.qb.Join(kind, j.Table+" AS "+jalias,
			fmt.Sprintf("%s.%s = %s.%s", b.cfg.Table, srcPhys, jalias, j.SourceColumn))
		b.qb.Join(kind, tgtClause,
			fmt.Sprintf("%s.%s = %s.%s", jalias, j.TargetColumn, tgtRef, tgtPhys))
	default:
		b.qb.Join(kind, tgtClause,
			fmt.Sprintf("%s.%s = %s.%s", b.cfg.Table, srcPhys, tgtRef, tgtPhys))
	}
	return b
}

// TargetRef resolves a logical column on a relation's target entity to
// the reference JoinRelated produced for it, for select or order
// clauses spanning the join.
func (b *Builder) TargetRef(relation, logical string) (string, error) {
	rel, err := b.cfg.Relation(relation)
	if err != nil {
		return "", err
	}
	target, ok := b.reg.Get(rel.Target)
	if !ok {
		return "", unknownEntity(b.cfg.Entity, rel.Target)
	}
	phys, err := target.Physical(logical)
	if err != nil {
		return "", err
	}
	table := target.Table
	if target.Table == b.cfg.Table {
		table = rel.Name
	}
	return table + "." + phys, nil
}

// WhereCurrentDate compares a logical date column against the engine's
// current date.
func (b *Builder) WhereCurrentDate(logical string, op query.Op) *Builder {
	ref, err := b.ref(logical)
	if err != nil {
		return b.fail(err)
	}
	b.qb.AndWhere(query.Expr(fmt.Sprintf("%s %s %s", ref, op, b.d.Dates().CurrentDate())))
	return b
}

// WhereDateColumn compares a logical date column against a point in
// time.
func (b *Builder) WhereDateColumn(logical string, op query.Op, t time.Time) *Builder {
	return b.AndWhereColumn(logical, op, t)
}

// WhereFullText matches the term against the given logical columns,
// joined with OR. Engines without a native full-text operator degrade
// to LIKE '%term%'; that degradation is part of the contract, not an
// approximation to fix later.
func (b *Builder) WhereFullText(term string, logical ...string) *Builder {
	var conds []query.Cond
	for _, name := range logical {
		ref, err := b.ref(name)
		if err != nil {
			return b.fail(err)
		}
		if cond, ok := b.d.FullText(ref, term); ok {
			conds = append(conds, cond)
			continue
		}
		conds = append(conds, query.Like{ref, "%" + term + "%"})
	}
	b.qb.AndWhere(query.Or(conds...))
	return b
}

// subquery runs the callback against a fresh builder scoped to the
// same entity, so the sub-scope resolves logical names exactly like
// the outer one.
func (b *Builder) subquery(build func(*Builder)) (*query.Builder, error) {
	sub := NewBuilder(b.cfg, b.reg, b.d, nil)
	build(sub)
	if sub.err != nil {
		return nil, sub.err
	}
	return sub.qb, nil
}

// WhereSubquery compares a logical column against a scalar subquery.
func (b *Builder) WhereSubquery(logical string, op query.Op, build func(*Builder)) *Builder {
	ref, err := b.ref(logical)
	if err != nil {
		return b.fail(err)
	}
	sub, err := b.subquery(build)
	if err != nil {
		return b.fail(err)
	}
	cond, err := query.Compare(ref, op, sub)
	if err != nil {
		return b.fail(err)
	}
	b.qb.AndWhere(cond)
	return b
}

// WhereExists grafts EXISTS (<subquery>) onto the predicate tree.
func (b *Builder) WhereExists(build func(*Builder)) *Builder {
	sub, err := b.subquery(build)
	if err != nil {
		return b.fail(err)
	}
	b.qb.AndWhere(query.Exists(sub))
	return b
}

// WhereNotExists grafts NOT EXISTS (<subquery>) onto the predicate
// tree.
func (b *Builder) WhereNotExists(build func(*Builder)) *Builder {
	sub, err := b.subquery(build)
	if err != nil {
		return b.fail(err)
	}
	b.qb.AndWhere(query.NotExists(sub))
	return b
}

// WhereInSubquery grafts "col IN (<subquery>)" onto the predicate
// tree.
func (b *Builder) WhereInSubquery(logical string, build func(*Builder)) *Builder {
	ref, err := b.ref(logical)
	if err != nil {
		return b.fail(err)
	}
	sub, err := b.subquery(build)
	if err != nil {
		return b.fail(err)
	}
	b.qb.AndWhere(query.In(ref, sub))
	return b
}

// WhereNotInSubquery grafts "col NOT IN (<subquery>)" onto the
// predicate tree.
func (b *Builder) WhereNotInSubquery(logical string, build func(*Builder)) *Builder {
	ref, err := b.ref(logical)
	if err != nil {
		return b.fail(err)
	}
	sub, err := b.subquery(build)
	if err != nil {
		return b.fail(err)
	}
	b.qb.AndWhere(query.NotIn(ref, sub))
	return b
}

// SQL renders the statement, surfacing any pending resolution error.
func (b *Builder) SQL() (string, []any, error) {
	if b.err != nil {
		return "", nil, b.err
	}
	return b.qb.SQL()
}

// Execute runs the statement and returns rows keyed by physical
// column name.
func (b *Builder) Execute(ctx context.Context) ([]query.Row, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.qb.Execute(ctx)
}

// ExecuteAndMap runs the statement and reverse-maps each row to
// logical column names.
func (b *Builder) ExecuteAndMap(ctx context.Context) ([]query.Row, error) {
	rows, err := b.Execute(ctx)
	if err != nil {
		return nil, err
	}
	return b.cfg.LogicalRows(rows), nil
}

// GetOne runs the statement and returns the first row, or nil when
// there is none.
func (b *Builder) GetOne(ctx context.Context) (query.Row, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.qb.GetOne(ctx)
}

// GetOneAndMap runs the statement and reverse-maps the first row to
// logical column names. A nil row stays nil: absence is a successful
// outcome.
func (b *Builder) GetOneAndMap(ctx context.Context) (query.Row, error) {
	row, err := b.GetOne(ctx)
	if err != nil || row == nil {
		return nil, err
	}
	return b.cfg.LogicalRow(row), nil
}

// GetCount wraps the current statement in COUNT(*) and runs it without
// mutating the builder.
func (b *Builder) GetCount(ctx context.Context) (int64, error) {
	if b.err != nil {
		return 0, b.err
	}
	return b.qb.GetCount(ctx)
}
