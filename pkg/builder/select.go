package builder

import (
	"fmt"
	"strings"
)

// SelectStatement is a rendered-on-demand SELECT.
type SelectStatement struct {
	Table    string
	Columns  []string
	Distinct bool
	Joins    []Join
	Where    []Condition
	OrderBy  []OrderBy
	Limit    *int
	Offset   *int
}

// ToSQL generates the SQL query and arguments.
func (q SelectStatement) ToSQL() (string, []interface{}, error) {
	return q.build(1)
}

// build renders the statement with parameters numbered from paramStart, so it
// can be nested in another statement.
func (q SelectStatement) build(paramStart int) (string, []interface{}, error) {
	if q.Table == "" {
		return "", nil, fmt.Errorf("table metadata not available")
	}

	var sql strings.Builder
	var args []interface{}
	paramNum := paramStart

	// SELECT clause
	sql.WriteString("SELECT ")
	if q.Distinct {
		sql.WriteString("DISTINCT ")
	}

	if len(q.Columns) == 0 {
		sql.WriteString(q.Table + ".*")
	} else {
		sql.WriteString(strings.Join(q.Columns, ", "))
	}

	// FROM clause
	sql.WriteString(" FROM ")
	sql.WriteString(q.Table)

	// JOIN clauses
	for _, join := range q.Joins {
		clause, err := numberPlaceholders(join.SQL(), paramNum, len(join.Args))
		if err != nil {
			return "", nil, fmt.Errorf("failed to build JOIN clause: %w", err)
		}
		sql.WriteString(" ")
		sql.WriteString(clause)
		args = append(args, join.Args...)
		paramNum += len(join.Args)
	}

	// WHERE clause
	if len(q.Where) > 0 {
		whereSQL, whereArgs, err := NewWhereBuilderWithStart(paramNum, q.Where...).Build()
		if err != nil {
			return "", nil, fmt.Errorf("failed to build WHERE clause: %w", err)
		}

		if whereSQL != "" {
			sql.WriteString(" ")
			sql.WriteString(whereSQL)
			args = append(args, whereArgs...)
			paramNum += len(whereArgs)
		}
	}

	// ORDER BY clause
	if len(q.OrderBy) > 0 {
		sql.WriteString(" ORDER BY ")
		orderClauses := make([]string, len(q.OrderBy))
		for i, order := range q.OrderBy {
			orderClauses[i] = fmt.Sprintf("%s %s", order.Column, order.Direction)
		}
		sql.WriteString(strings.Join(orderClauses, ", "))
	}

	// LIMIT clause
	if q.Limit != nil {
		sql.WriteString(fmt.Sprintf(" LIMIT $%d", paramNum))
		args = append(args, *q.Limit)
		paramNum++
	}

	// OFFSET clause
	if q.Offset != nil {
		sql.WriteString(fmt.Sprintf(" OFFSET $%d", paramNum))
		args = append(args, *q.Offset)
	}

	return sql.String(), args, nil
}
