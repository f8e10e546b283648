package entity

import (
	"strconv"
	"time"

	"github.com/entable/entable/pkg/dialect"
	"github.com/entable/entable/pkg/query"
	"github.com/goccy/go-json"
	"github.com/jinzhu/now"
)

// LogicalRow re-keys a result row from physical to logical column
// names, coercing values by declared column type. Keys that match no
// declared physical column pass through unchanged, so computed and
// aliased select expressions survive the mapping. Mapped columns never
// leak their physical name.
func (c *Config) LogicalRow(row query.Row) query.Row {
	if row == nil {
		return nil
	}
	out := make(query.Row, len(row))
	for key, val := range row {
		col, ok := c.ColumnByPhysical(key)
		if !ok {
			out[key] = val
			continue
		}
		out[col.Logical] = coerceValue(col.Type, val)
	}
	return out
}

// LogicalRows maps a result set with LogicalRow.
func (c *Config) LogicalRows(rows []query.Row) []query.Row {
	if rows == nil {
		return nil
	}
	out := make([]query.Row, len(rows))
	for i, row := range rows {
		out[i] = c.LogicalRow(row)
	}
	return out
}

// PhysicalValues re-keys a logical value map to physical column names
// for DML. Unknown logical names fail with a MappingError before any
// SQL is built.
func (c *Config) PhysicalValues(values map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for logical, val := range values {
		col, ok := c.byLogical[logical]
		if !ok {
			return nil, unknownColumn(c.Entity, logical)
		}
		out[col.Physical] = val
	}
	return out, nil
}

// coerceValue nudges driver-returned scalars toward the declared
// semantic type. Values that do not convert cleanly pass through
// untouched rather than erroring: reads must not fail on data written
// by other tools.
func coerceValue(t dialect.ColumnType, v any) any {
	if v == nil {
		return nil
	}
	switch t {
	case dialect.TypeDatetime:
		switch s := v.(type) {
		case time.Time:
			return s
		case string:
			if ts, err := now.Parse(s); err == nil {
				return ts
			}
		}
	case dialect.TypeBoolean:
		switch n := v.(type) {
		case bool:
			return n
		case int64:
			return n != 0
		case float64:
			return n != 0
		case string:
			if b, err := strconv.ParseBool(n); err == nil {
				return b
			}
		}
	case dialect.TypeJSON:
		if s, ok := v.(string); ok && s != "" {
			var decoded any
			if err := json.Unmarshal([]byte(s), &decoded); err == nil {
				return decoded
			}
		}
	case dialect.TypeInteger:
		switch n := v.(type) {
		case float64:
			return int64(n)
		case string:
			if i, err := strconv.ParseInt(n, 10, 64); err == nil {
				return i
			}
		}
	case dialect.TypeNumber:
		switch n := v.(type) {
		case int64:
			return float64(n)
		case string:
			if f, err := strconv.ParseFloat(n, 64); err == nil {
				return f
			}
		}
	}
	return v
}
