package adapter

import (
	"context"
	"fmt"

	"github.com/entable/entable/pkg/query"
)

// The CRUD helpers exist so simple cases never require a caller to
// hand-build a query. They take physical table and column names;
// logical-name resolution is the entity builder's and repository's
// concern.

// conditions renders a condition map as equality predicates: nil value
// means IS NULL, a slice means IN, a query.Raw value renders verbatim.
func conditions(m map[string]any) query.Cond {
	if len(m) == 0 {
		return query.NewCond()
	}
	return query.Eq(m)
}

func pickFind(opts []*FindOptions) *FindOptions {
	if len(opts) > 0 && opts[0] != nil {
		return opts[0]
	}
	return &FindOptions{}
}

func applyFindOptions(b *query.Builder, o *FindOptions) {
	if len(o.Fields) > 0 {
		b.Select(o.Fields...)
	}
	for _, j := range o.Joins {
		b.Join(j.Kind, j.Table, j.On, j.Args...)
	}
	if len(o.GroupBy) > 0 {
		b.GroupBy(o.GroupBy...)
	}
	if o.Having != nil {
		b.Having(o.Having)
	}
	for _, ord := range o.OrderBy {
		b.OrderBy(ord.Field, ord.Dir)
	}
	if o.Limit > 0 {
		b.Limit(o.Limit)
	}
	if o.Offset > 0 {
		b.Offset(o.Offset)
	}
}

// FindByID fetches one row by its primary-key values. A missing row is
// a nil result, not an error.
func (a *SQLAdapter) FindByID(ctx context.Context, table string, id map[string]any, opts ...*FindOptions) (query.Row, error) {
	b := query.NewBuilder().From(table).Where(conditions(id)).Limit(1)
	applyFindOptions(b, pickFind(opts))
	text, args, err := b.SQL()
	if err != nil {
		return nil, err
	}
	return a.QuerySingle(ctx, text, args...)
}

// FindAll fetches every row of a table, subject to the options.
func (a *SQLAdapter) FindAll(ctx context.Context, table string, opts ...*FindOptions) ([]query.Row, error) {
	return a.FindBy(ctx, table, nil, opts...)
}

// FindBy fetches the rows matching the condition map.
func (a *SQLAdapter) FindBy(ctx context.Context, table string, cond map[string]any, opts ...*FindOptions) ([]query.Row, error) {
	b := query.NewBuilder().From(table).Where(conditions(cond))
	applyFindOptions(b, pickFind(opts))
	text, args, err := b.SQL()
	if err != nil {
		return nil, err
	}
	return a.Query(ctx, text, args...)
}

// Insert adds one row and reports the engine result. LastInsertID is
// zero on engines that do not report it.
func (a *SQLAdapter) Insert(ctx context.Context, table string, values map[string]any) (query.Result, error) {
	text, args, err := query.NewBuilder().Insert(table, values).SQL()
	if err != nil {
		return query.Result{}, err
	}
	return a.Execute(ctx, text, args...)
}

// Update modifies matching rows and reports how many were affected.
func (a *SQLAdapter) Update(ctx context.Context, table string, values, cond map[string]any) (int64, error) {
	text, args, err := query.NewBuilder().Update(table, values).Where(conditions(cond)).SQL()
	if err != nil {
		return 0, err
	}
	res, err := a.Execute(ctx, text, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

// Delete removes matching rows and reports how many were affected.
func (a *SQLAdapter) Delete(ctx context.Context, table string, cond map[string]any) (int64, error) {
	text, args, err := query.NewBuilder().DeleteFrom(table).Where(conditions(cond)).SQL()
	if err != nil {
		return 0, err
	}
	res, err := a.Execute(ctx, text, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

// Count reports the number of matching rows.
func (a *SQLAdapter) Count(ctx context.Context, table string, cond map[string]any) (int64, error) {
	row, err := a.QuerySingleBuilder(ctx,
		query.NewBuilder().SelectRaw("COUNT(*) AS n").From(table).Where(conditions(cond)))
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, nil
	}
	return query.ToInt64(row["n"]), nil
}

// Exists reports whether any row matches.
func (a *SQLAdapter) Exists(ctx context.Context, table string, cond map[string]any) (bool, error) {
	row, err := a.QuerySingleBuilder(ctx,
		query.NewBuilder().SelectRaw("1 AS one").From(table).Where(conditions(cond)).Limit(1))
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

// QuerySingleBuilder renders a builder and fetches its first row.
func (a *SQLAdapter) QuerySingleBuilder(ctx context.Context, b *query.Builder) (query.Row, error) {
	text, args, err := b.SQL()
	if err != nil {
		return nil, err
	}
	return a.QuerySingle(ctx, text, args...)
}

// Aggregate runs fn over a field and returns one row per group, the
// aggregate aliased "value". Without GroupBy it returns a single row.
// The field is a physical column name, or a query.Raw expression for
// computed aggregates (CASE WHEN and friends); Raw expressions carry
// their own arguments and never take DISTINCT.
func (a *SQLAdapter) Aggregate(ctx context.Context, table string, fn query.AggregateFunc, field any, opts ...*AggregateOptions) ([]query.Row, error) {
	o := &AggregateOptions{}
	if len(opts) > 0 && opts[0] != nil {
		o = opts[0]
	}
	b := query.NewBuilder().From(table).Where(conditions(o.Conditions))
	switch f := field.(type) {
	case query.Raw:
		b.SelectRaw(fmt.Sprintf("%s(%s) AS value", fn, f.SQL), f.Args...)
	case string:
		if o.Distinct {
			b.SelectRaw(fmt.Sprintf("%s(DISTINCT %s) AS value", fn, f))
		} else {
			b.SelectRaw(fmt.Sprintf("%s(%s) AS value", fn, f))
		}
	default:
		return nil, fmt.Errorf("aggregate field must be a column name or query.Raw, got %T", field)
	}
	if len(o.GroupBy) > 0 {
		b.Select(o.GroupBy...)
		b.GroupBy(o.GroupBy...)
	}
	if o.Having != nil {
		b.Having(o.Having)
	}
	text, args, err := b.SQL()
	if err != nil {
		return nil, err
	}
	return a.Query(ctx, text, args...)
}
