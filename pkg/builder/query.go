// Package builder turns filters and association requests into PostgreSQL
// statements and assembles multi-entity results.
//
// A root query runs first. Filters that traverse relationships are resolved
// into joins on that root query. Requested associations are loaded with one
// extra round trip per association (two for many-to-many) and stitched back
// onto the root rows by key.
package builder

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the statement execution collaborator. *pgxpool.Pool, *pgx.Conn,
// pgx.Tx and *runtime.DB all satisfy it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Row is a result row keyed by column name. Attached associations are stored
// under their property name: []Row for to-many shapes, Row or nil for to-one.
type Row map[string]any

// Condition represents a WHERE condition.
type Condition struct {
	Column   string
	Operator Operator
	Value    interface{}
	Logic    LogicOperator
	Not      bool
	Group    []Condition // For grouped conditions
	Raw      bool        // Column holds raw SQL with ? placeholders, Value its []any args
}

// Param is a bound value with its PostgreSQL cast. An empty Cast leaves the
// parameter type to be inferred from the compared column.
type Param struct {
	Value any
	Cast  string
}

// Join represents a JOIN clause.
type Join struct {
	Type      JoinType
	Table     string
	Alias     string
	Condition string
	Args      []interface{}

	// Fanout marks joins that can match several rows per root row.
	Fanout bool
}

// OrderBy represents an ORDER BY clause.
type OrderBy struct {
	Column    string
	Direction OrderDirection
}

// Operator represents a comparison operator.
type Operator string

const (
	// OpEqual represents the = operator.
	OpEqual Operator = "="
	// OpNotEqual represents the != operator.
	OpNotEqual Operator = "!="
	// OpIn represents the IN operator.
	OpIn Operator = "IN"
	// OpNotIn represents the NOT IN operator.
	OpNotIn Operator = "NOT IN"
	// OpLike represents the LIKE operator.
	OpLike Operator = "LIKE"
	// OpIsNull represents the IS NULL operator.
	OpIsNull Operator = "IS NULL"
	// OpIsNotNull represents the IS NOT NULL operator.
	OpIsNotNull Operator = "IS NOT NULL"
	// OpFalse matches nothing; used for an empty IN list.
	OpFalse Operator = "FALSE"
	// OpTrue matches everything; used for an empty NOT IN list.
	OpTrue Operator = "TRUE"
	// OpInSubquery matches Column against a nested SelectStatement.
	OpInSubquery Operator = "IN (SELECT)"
)

// LogicOperator represents a logical operator (AND/OR).
type LogicOperator string

const (
	// LogicAnd represents the AND operator.
	LogicAnd LogicOperator = "AND"
	// LogicOr represents the OR operator.
	LogicOr LogicOperator = "OR"
)

// JoinType represents a type of JOIN.
type JoinType string

const (
	// InnerJoin represents an INNER JOIN.
	InnerJoin JoinType = "INNER JOIN"
	// LeftJoin represents a LEFT JOIN.
	LeftJoin JoinType = "LEFT JOIN"
)

// OrderDirection represents the sort direction.
type OrderDirection string

const (
	// Asc represents ascending order.
	Asc OrderDirection = "ASC"
	// Desc represents descending order.
	Desc OrderDirection = "DESC"
)

// SQL renders the join clause.
func (j Join) SQL() string {
	table := j.Table
	if j.Alias != "" {
		table += " AS " + j.Alias
	}
	return string(j.Type) + " " + table + " ON " + j.Condition
}

// key identifies a join for deduplication.
func (j Join) key() string {
	if j.Alias != "" {
		return j.Alias
	}
	return j.Table + " ON " + j.Condition
}
