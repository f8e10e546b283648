// Package adapter executes rendered SQL against a concrete engine. One
// adapter owns one database handle, the transaction nesting state on
// top of it, generic CRUD helpers, and the schema introspection/DDL
// operations the synchronizer builds on.
package adapter

import (
	"context"

	"github.com/entable/entable/pkg/dialect"
	"github.com/entable/entable/pkg/entity"
	"github.com/entable/entable/pkg/query"
)

// DatabaseInfo identifies the connected engine.
type DatabaseInfo struct {
	Dialect string `json:"dialect"`
	Driver  string `json:"driver"`
	Version string `json:"version"`
}

// Order is one ORDER BY term for the CRUD helpers.
type Order struct {
	Field string
	Dir   query.Direction
}

// Join is one raw join clause for the CRUD helpers.
type Join struct {
	Kind  query.JoinKind
	Table string
	On    string
	Args  []any
}

// FindOptions narrows the result shape of the Find helpers. The zero
// value means "all columns, engine order, no paging".
type FindOptions struct {
	Fields  []string
	OrderBy []Order
	Limit   int
	Offset  int
	Joins   []Join
	GroupBy []string
	Having  query.Cond
}

// AggregateOptions scopes an Aggregate call. Distinct applies to plain
// column fields only; it is suppressed for query.Raw expressions, where
// DISTINCT is not generally meaningful.
type AggregateOptions struct {
	Conditions map[string]any
	Distinct   bool
	GroupBy    []string
	Having     query.Cond
}

// Adapter is the execution surface the builders, the synchronizer and
// application layers consume. Absence is a successful nil row or empty
// slice, never an error.
type Adapter interface {
	query.Executor

	Connect(ctx context.Context) error
	Close() error
	ExecuteScript(ctx context.Context, script string) error

	// Transaction control. Only the outermost frame drives the engine;
	// nested calls move the depth counter. Isolation levels the engine
	// cannot honor are accepted and ignored, never an error.
	BeginTransaction(ctx context.Context, level ...query.IsolationLevel) error
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error
	Transaction(ctx context.Context, fn func(ctx context.Context) error, level ...query.IsolationLevel) error

	// CRUD helpers over physical tables and physical column names.
	FindByID(ctx context.Context, table string, id map[string]any, opts ...*FindOptions) (query.Row, error)
	FindAll(ctx context.Context, table string, opts ...*FindOptions) ([]query.Row, error)
	FindBy(ctx context.Context, table string, conditions map[string]any, opts ...*FindOptions) ([]query.Row, error)
	Insert(ctx context.Context, table string, values map[string]any) (query.Result, error)
	Update(ctx context.Context, table string, values, conditions map[string]any) (int64, error)
	Delete(ctx context.Context, table string, conditions map[string]any) (int64, error)
	Count(ctx context.Context, table string, conditions map[string]any) (int64, error)
	Exists(ctx context.Context, table string, conditions map[string]any) (bool, error)
	Aggregate(ctx context.Context, table string, fn query.AggregateFunc, field any, opts ...*AggregateOptions) ([]query.Row, error)

	// Builders bound to this adapter.
	CreateQueryBuilder() *query.Builder
	EntityBuilder(cfg *entity.Config, reg *entity.Registry) *entity.Builder

	// Schema introspection and DDL.
	TableExists(ctx context.Context, table string) (bool, error)
	TableColumns(ctx context.Context, table string) ([]dialect.ColumnInfo, error)
	PrimaryKey(ctx context.Context, table string) ([]string, error)
	ColumnExists(ctx context.Context, table, column string) (bool, error)
	CreateTable(ctx context.Context, cfg *entity.Config, withForeignKeys bool) error
	CreateJunctionTable(ctx context.Context, jt *entity.JunctionTable, reg *entity.Registry, withForeignKeys bool) error
	DropTable(ctx context.Context, table string) error

	Dialect() dialect.Dialect
	DateFunctions() dialect.DateFunctions
	DatabaseInfo(ctx context.Context) (*DatabaseInfo, error)
}
