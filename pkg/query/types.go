package query

import "database/sql"

// Op is a comparison operator accepted by structured conditions.
type Op string

const (
	OpEq      Op = "="
	OpNe      Op = "!="
	OpGt      Op = ">"
	OpGte     Op = ">="
	OpLt      Op = "<"
	OpLte     Op = "<="
	OpLike    Op = "LIKE"
	OpNotLike Op = "NOT LIKE"
	OpIn      Op = "IN"
	OpNotIn   Op = "NOT IN"
	OpIsNull  Op = "IS NULL"
	OpNotNull Op = "IS NOT NULL"
	OpBetween Op = "BETWEEN"
)

// JoinKind selects the join keyword emitted for a join clause.
type JoinKind string

const (
	InnerJoinKind     JoinKind = "INNER JOIN"
	LeftJoinKind      JoinKind = "LEFT JOIN"
	RightJoinKind     JoinKind = "RIGHT JOIN"
	FullOuterJoinKind JoinKind = "FULL OUTER JOIN"
	CrossJoinKind     JoinKind = "CROSS JOIN"
)

// AggregateFunc names a SQL aggregate function.
type AggregateFunc string

const (
	Count AggregateFunc = "COUNT"
	Sum   AggregateFunc = "SUM"
	Avg   AggregateFunc = "AVG"
	Min   AggregateFunc = "MIN"
	Max   AggregateFunc = "MAX"
)

// Direction orders a sort expression.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// IsolationLevel is a requested transaction isolation level. Engines
// that cannot honor a level accept it and ignore it; requesting one is
// never an error.
type IsolationLevel string

const (
	LevelDefault         IsolationLevel = ""
	LevelReadUncommitted IsolationLevel = "READ_UNCOMMITTED"
	LevelReadCommitted   IsolationLevel = "READ_COMMITTED"
	LevelRepeatableRead  IsolationLevel = "REPEATABLE_READ"
	LevelSerializable    IsolationLevel = "SERIALIZABLE"
)

// SQLLevel converts the level to its database/sql equivalent.
func (l IsolationLevel) SQLLevel() sql.IsolationLevel {
	switch l {
	case LevelReadUncommitted:
		return sql.LevelReadUncommitted
	case LevelReadCommitted:
		return sql.LevelReadCommitted
	case LevelRepeatableRead:
		return sql.LevelRepeatableRead
	case LevelSerializable:
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}
