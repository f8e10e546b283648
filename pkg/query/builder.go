package query

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrNoExecutor is returned by Execute/GetOne/GetCount/Exec on a
// builder that was never bound to an executor.
var ErrNoExecutor = errors.New("query: builder is not bound to an executor")

type stmtKind int

const (
	kindSelect stmtKind = iota
	kindInsert
	kindUpdate
	kindDelete
)

type selectItem struct {
	expr string
	args []any
}

type joinClause struct {
	kind  JoinKind
	table string
	on    string
	args  []any
}

type orderItem struct {
	expr string
	dir  Direction
}

type unionClause struct {
	all bool
	sub *Builder
}

// Builder accumulates one SQL statement clause by clause and renders
// it to text plus a positional argument list. Mutators only record
// state and return the receiver for chaining; nothing touches the
// database until SQL(), Execute, Exec, GetOne or GetCount.
//
// Clauses render in invocation order (select order, join order,
// predicate order), and every clause's arguments are appended the
// moment its placeholders are written, so the Nth '?' in the rendered
// text always matches the Nth argument.
type Builder struct {
	kind     stmtKind
	distinct bool
	selects  []selectItem
	table    string
	alias    string
	fromSub  *Builder
	joins    []joinClause
	cond     Cond
	groups   []string
	having   Cond
	orders   []orderItem
	limit    int
	offset   int
	unions   []unionClause
	values   map[string]any
	executor Executor
}

// NewBuilder returns an empty SELECT builder.
func NewBuilder() *Builder {
	return &Builder{
		cond:   NewCond(),
		having: NewCond(),
		limit:  -1,
		offset: -1,
	}
}

// Bind attaches the executor used by Execute, Exec, GetOne and
// GetCount.
func (b *Builder) Bind(executor Executor) *Builder {
	b.executor = executor
	return b
}

// Executor reports the bound executor, if any.
func (b *Builder) Executor() Executor { return b.executor }

// Select appends plain columns to the select list.
func (b *Builder) Select(fields ...string) *Builder {
	for _, f := range fields {
		b.selects = append(b.selects, selectItem{expr: f})
	}
	return b
}

// SelectRaw appends a computed select expression verbatim, with any
// arguments its placeholders need.
func (b *Builder) SelectRaw(expr string, args ...any) *Builder {
	b.selects = append(b.selects, selectItem{expr: expr, args: args})
	return b
}

// SelectExpression appends "expr AS alias" to the select list.
func (b *Builder) SelectExpression(expr, alias string) *Builder {
	b.selects = append(b.selects, selectItem{expr: expr + " AS " + alias})
	return b
}

// Distinct marks the select list DISTINCT.
func (b *Builder) Distinct() *Builder {
	b.distinct = true
	return b
}

// From sets the base table, optionally aliased. Calling it again
// replaces the previous target: last write wins.
func (b *Builder) From(table string, alias ...string) *Builder {
	b.table = table
	b.fromSub = nil
	b.alias = ""
	if len(alias) > 0 {
		b.alias = alias[0]
	}
	return b
}

// FromSelect uses another builder's SELECT as the base table.
func (b *Builder) FromSelect(sub *Builder, alias string) *Builder {
	b.fromSub = sub
	b.table = ""
	b.alias = alias
	return b
}

// Where starts a fresh predicate tree, discarding any previous one.
func (b *Builder) Where(cond Cond) *Builder {
	b.cond = cond
	return b
}

// AndWhere grafts cond onto the predicate tree with AND.
func (b *Builder) AndWhere(cond Cond) *Builder {
	if b.cond == nil {
		b.cond = NewCond()
	}
	b.cond = b.cond.And(cond)
	return b
}

// OrWhere grafts cond onto the predicate tree with OR.
func (b *Builder) OrWhere(cond Cond) *Builder {
	if b.cond == nil {
		b.cond = NewCond()
	}
	b.cond = b.cond.Or(cond)
	return b
}

// WhereRaw is Where with a raw fragment and its arguments.
func (b *Builder) WhereRaw(expr string, args ...any) *Builder {
	return b.Where(Expr(expr, args...))
}

// AndWhereRaw is AndWhere with a raw fragment and its arguments.
func (b *Builder) AndWhereRaw(expr string, args ...any) *Builder {
	return b.AndWhere(Expr(expr, args...))
}

// OrWhereRaw is OrWhere with a raw fragment and its arguments.
func (b *Builder) OrWhereRaw(expr string, args ...any) *Builder {
	return b.OrWhere(Expr(expr, args...))
}

// Join appends a join clause. The ON condition is raw text and may
// carry placeholders; its arguments keep join-clause order in the
// final argument list.
func (b *Builder) Join(kind JoinKind, table, on string, args ...any) *Builder {
	if kind == "" {
		kind = InnerJoinKind
	}
	b.joins = append(b.joins, joinClause{kind: kind, table: table, on: on, args: args})
	return b
}

// InnerJoin appends an INNER JOIN clause.
func (b *Builder) InnerJoin(table, on string, args ...any) *Builder {
	return b.Join(InnerJoinKind, table, on, args...)
}

// LeftJoin appends a LEFT JOIN clause.
func (b *Builder) LeftJoin(table, on string, args ...any) *Builder {
	return b.Join(LeftJoinKind, table, on, args...)
}

// RightJoin appends a RIGHT JOIN clause.
func (b *Builder) RightJoin(table, on string, args ...any) *Builder {
	return b.Join(RightJoinKind, table, on, args...)
}

// FullOuterJoin appends a FULL OUTER JOIN clause.
func (b *Builder) FullOuterJoin(table, on string, args ...any) *Builder {
	return b.Join(FullOuterJoinKind, table, on, args...)
}

// CrossJoin appends a CROSS JOIN clause (no ON condition).
func (b *Builder) CrossJoin(table string) *Builder {
	return b.Join(CrossJoinKind, table, "")
}

// JoinOptions describes one join clause for JoinWith.
type JoinOptions struct {
	Kind  JoinKind
	Table string
	Alias string
	On    string
	Args  []any
}

// JoinWith appends a join clause from an options struct.
func (b *Builder) JoinWith(opt JoinOptions) *Builder {
	table := opt.Table
	if opt.Alias != "" {
		table += " AS " + opt.Alias
	}
	return b.Join(opt.Kind, table, opt.On, opt.Args...)
}

// GroupBy appends grouping columns.
func (b *Builder) GroupBy(fields ...string) *Builder {
	b.groups = append(b.groups, fields...)
	return b
}

// Having grafts cond onto the HAVING predicate with AND. Its
// arguments render after all join and where arguments.
func (b *Builder) Having(cond Cond) *Builder {
	if b.having == nil {
		b.having = NewCond()
	}
	b.having = b.having.And(cond)
	return b
}

// HavingRaw is Having with a raw fragment and its arguments.
func (b *Builder) HavingRaw(expr string, args ...any) *Builder {
	return b.Having(Expr(expr, args...))
}

// OrderBy appends a sort expression. An empty direction means ASC.
func (b *Builder) OrderBy(field string, dir Direction) *Builder {
	if dir != Desc {
		dir = Asc
	}
	b.orders = append(b.orders, orderItem{expr: field, dir: dir})
	return b
}

// Limit caps the row count. Negative clears it.
func (b *Builder) Limit(n int) *Builder {
	b.limit = n
	return b
}

// Offset skips leading rows. Negative clears it.
func (b *Builder) Offset(n int) *Builder {
	b.offset = n
	return b
}

// Union appends "UNION <other>", splicing the other builder's SQL and
// arguments after this builder's own.
func (b *Builder) Union(other *Builder) *Builder {
	b.unions = append(b.unions, unionClause{sub: other})
	return b
}

// UnionAll appends "UNION ALL <other>".
func (b *Builder) UnionAll(other *Builder) *Builder {
	b.unions = append(b.unions, unionClause{all: true, sub: other})
	return b
}

// ExistsSub grafts "EXISTS (<sub>)" onto the predicate tree.
func (b *Builder) ExistsSub(sub *Builder) *Builder {
	return b.AndWhere(Exists(sub))
}

// NotExistsSub grafts "NOT EXISTS (<sub>)" onto the predicate tree.
func (b *Builder) NotExistsSub(sub *Builder) *Builder {
	return b.AndWhere(NotExists(sub))
}

// InSub grafts "field IN (<sub>)" onto the predicate tree.
func (b *Builder) InSub(field string, sub *Builder) *Builder {
	return b.AndWhere(In(field, sub))
}

// NotInSub grafts "field NOT IN (<sub>)" onto the predicate tree.
func (b *Builder) NotInSub(field string, sub *Builder) *Builder {
	return b.AndWhere(NotIn(field, sub))
}

// Insert switches the builder to INSERT INTO table. Columns render in
// sorted order so the same value map always produces the same SQL.
func (b *Builder) Insert(table string, values map[string]any) *Builder {
	b.kind = kindInsert
	b.table = table
	b.values = values
	return b
}

// Update switches the builder to UPDATE table SET values; restrict it
// with Where as usual. A Raw value renders verbatim, for expressions
// like counter increments.
func (b *Builder) Update(table string, values map[string]any) *Builder {
	b.kind = kindUpdate
	b.table = table
	b.values = values
	return b
}

// DeleteFrom switches the builder to DELETE FROM table.
func (b *Builder) DeleteFrom(table string) *Builder {
	b.kind = kindDelete
	b.table = table
	return b
}

// WriteTo renders the statement into w in one pass.
func (b *Builder) WriteTo(w Writer) error {
	switch b.kind {
	case kindInsert:
		return b.writeInsert(w)
	case kindUpdate:
		return b.writeUpdate(w)
	case kindDelete:
		return b.writeDelete(w)
	default:
		return b.writeSelect(w)
	}
}

func (b *Builder) writeSelect(w Writer) error {
	if _, err := io.WriteString(w, "SELECT "); err != nil {
		return err
	}
	if b.distinct {
		if _, err := io.WriteString(w, "DISTINCT "); err != nil {
			return err
		}
	}
	if len(b.selects) == 0 {
		if _, err := io.WriteString(w, "*"); err != nil {
			return err
		}
	}
	for i, s := range b.selects {
		if i > 0 {
			if _, err := io.WriteString(w, ", "); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, s.expr); err != nil {
			return err
		}
		w.Append(s.args...)
	}
	if b.fromSub != nil {
		if _, err := io.WriteString(w, " FROM ("); err != nil {
			return err
		}
		if err := b.fromSub.WriteTo(w); err != nil {
			return err
		}
		if _, err := io.WriteString(w, ")"); err != nil {
			return err
		}
		if b.alias != "" {
			if _, err := io.WriteString(w, " AS "+b.alias); err != nil {
				return err
			}
		}
	} else if b.table != "" {
		if _, err := io.WriteString(w, " FROM "+b.table); err != nil {
			return err
		}
		if b.alias != "" {
			if _, err := io.WriteString(w, " AS "+b.alias); err != nil {
				return err
			}
		}
	}
	for _, j := range b.joins {
		if _, err := fmt.Fprintf(w, " %s %s", j.kind, j.table); err != nil {
			return err
		}
		if j.on != "" {
			if _, err := io.WriteString(w, " ON "+j.on); err != nil {
				return err
			}
		}
		w.Append(j.args...)
	}
	if b.cond != nil && b.cond.IsValid() {
		if _, err := io.WriteString(w, " WHERE "); err != nil {
			return err
		}
		if err := b.cond.WriteTo(w); err != nil {
			return err
		}
	}
	if len(b.groups) > 0 {
		if _, err := io.WriteString(w, " GROUP BY "+strings.Join(b.groups, ", ")); err != nil {
			return err
		}
	}
	if b.having != nil && b.having.IsValid() {
		if _, err := io.WriteString(w, " HAVING "); err != nil {
			return err
		}
		if err := b.having.WriteTo(w); err != nil {
			return err
		}
	}
	for _, u := range b.unions {
		keyword := " UNION "
		if u.all {
			keyword = " UNION ALL "
		}
		if _, err := io.WriteString(w, keyword); err != nil {
			return err
		}
		if err := u.sub.WriteTo(w); err != nil {
			return err
		}
	}
	if len(b.orders) > 0 {
		if _, err := io.WriteString(w, " ORDER BY "); err != nil {
			return err
		}
		for i, o := range b.orders {
			if i > 0 {
				if _, err := io.WriteString(w, ", "); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprintf(w, "%s %s", o.expr, o.dir); err != nil {
				return err
			}
		}
	}
	if b.limit >= 0 {
		if _, err := io.WriteString(w, " LIMIT "+strconv.Itoa(b.limit)); err != nil {
			return err
		}
	}
	if b.offset >= 0 {
		if _, err := io.WriteString(w, " OFFSET "+strconv.Itoa(b.offset)); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) writeInsert(w Writer) error {
	if b.table == "" || len(b.values) == 0 {
		return errors.New("query: insert requires a table and at least one value")
	}
	cols := sortedKeys(b.values)
	if _, err := fmt.Fprintf(w, "INSERT INTO %s (%s) VALUES (", b.table, strings.Join(cols, ", ")); err != nil {
		return err
	}
	for i, col := range cols {
		if i > 0 {
			if _, err := io.WriteString(w, ", "); err != nil {
				return err
			}
		}
		if r, ok := b.values[col].(Raw); ok {
			if _, err := io.WriteString(w, r.SQL); err != nil {
				return err
			}
			w.Append(r.Args...)
			continue
		}
		if _, err := io.WriteString(w, "?"); err != nil {
			return err
		}
		w.Append(b.values[col])
	}
	_, err := io.WriteString(w, ")")
	return err
}

func (b *Builder) writeUpdate(w Writer) error {
	if b.table == "" || len(b.values) == 0 {
		return errors.New("query: update requires a table and at least one value")
	}
	if _, err := io.WriteString(w, "UPDATE "+b.table+" SET "); err != nil {
		return err
	}
	for i, col := range sortedKeys(b.values) {
		if i > 0 {
			if _, err := io.WriteString(w, ", "); err != nil {
				return err
			}
		}
		if r, ok := b.values[col].(Raw); ok {
			if _, err := fmt.Fprintf(w, "%s = %s", col, r.SQL); err != nil {
				return err
			}
			w.Append(r.Args...)
			continue
		}
		if _, err := fmt.Fprintf(w, "%s = ?", col); err != nil {
			return err
		}
		w.Append(b.values[col])
	}
	return b.writeWhere(w)
}

func (b *Builder) writeDelete(w Writer) error {
	if b.table == "" {
		return errors.New("query: delete requires a table")
	}
	if _, err := io.WriteString(w, "DELETE FROM "+b.table); err != nil {
		return err
	}
	return b.writeWhere(w)
}

func (b *Builder) writeWhere(w Writer) error {
	if b.cond == nil || !b.cond.IsValid() {
		return nil
	}
	if _, err := io.WriteString(w, " WHERE "); err != nil {
		return err
	}
	return b.cond.WriteTo(w)
}

// SQL renders the statement text and its positional argument list.
// It is pure: rendering twice yields the same result and leaves the
// builder untouched.
func (b *Builder) SQL() (string, []any, error) {
	w := newWriter()
	if err := b.WriteTo(w); err != nil {
		return "", nil, err
	}
	return w.String(), w.args, nil
}

// String renders the statement with arguments formatted inline. Debug
// aid only; the result is never executed.
func (b *Builder) String() string {
	text, args, err := b.SQL()
	if err != nil {
		return "!invalid: " + err.Error()
	}
	return inlineArgs(text, args)
}

// Execute renders and runs the statement, returning all rows.
func (b *Builder) Execute(ctx context.Context) ([]Row, error) {
	if b.executor == nil {
		return nil, ErrNoExecutor
	}
	text, args, err := b.SQL()
	if err != nil {
		return nil, err
	}
	return b.executor.Query(ctx, text, args...)
}

// GetOne renders and runs the statement, returning the first row or
// nil when there is none.
func (b *Builder) GetOne(ctx context.Context) (Row, error) {
	if b.executor == nil {
		return nil, ErrNoExecutor
	}
	text, args, err := b.SQL()
	if err != nil {
		return nil, err
	}
	return b.executor.QuerySingle(ctx, text, args...)
}

// Exec renders and runs a data-modifying statement.
func (b *Builder) Exec(ctx context.Context) (Result, error) {
	if b.executor == nil {
		return Result{}, ErrNoExecutor
	}
	text, args, err := b.SQL()
	if err != nil {
		return Result{}, err
	}
	return b.executor.Execute(ctx, text, args...)
}

// GetCount wraps the current SELECT in an outer COUNT(*) and runs it.
// The receiver is not mutated; subsequent calls see the original
// statement.
func (b *Builder) GetCount(ctx context.Context) (int64, error) {
	if b.executor == nil {
		return 0, ErrNoExecutor
	}
	inner, args, err := b.SQL()
	if err != nil {
		return 0, err
	}
	row, err := b.executor.QuerySingle(ctx, "SELECT COUNT(*) AS n FROM ("+inner+") AS t", args...)
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, nil
	}
	return ToInt64(row["n"]), nil
}
