package query

import (
	"context"
	"strconv"
)

// Row is one result row keyed by column name.
type Row map[string]any

// Result reports the outcome of a data-modifying statement.
type Result struct {
	LastInsertID int64
	RowsAffected int64
}

// Executor runs rendered SQL. The database adapter is the canonical
// implementation; tests may substitute their own.
type Executor interface {
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
	QuerySingle(ctx context.Context, query string, args ...any) (Row, error)
	Execute(ctx context.Context, query string, args ...any) (Result, error)
}

// ToInt64 coerces the scalar shapes drivers hand back for integer
// results.
func ToInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	case []byte:
		i, _ := strconv.ParseInt(string(n), 10, 64)
		return i
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	default:
		return 0
	}
}
