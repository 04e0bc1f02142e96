package builder

import (
	"fmt"
	"strings"
)

// UpdateStatement updates the rows matching Where. Columns are set in sorted
// order.
type UpdateStatement struct {
	Table  string
	Values map[string]any
	Where  []Condition
}

// ToSQL generates the UPDATE SQL and arguments.
func (q UpdateStatement) ToSQL() (string, []any, error) {
	if q.Table == "" {
		return "", nil, fmt.Errorf("table metadata not available")
	}
	if len(q.Values) == 0 {
		return "", nil, fmt.Errorf("no columns to update")
	}

	var sql strings.Builder
	sql.WriteString("UPDATE " + q.Table + " SET ")

	columns := sortedColumns(q.Values)
	args := make([]any, 0, len(columns))
	for i, col := range columns {
		if i > 0 {
			sql.WriteString(", ")
		}
		fmt.Fprintf(&sql, "%s = $%d", col, i+1)
		args = append(args, q.Values[col])
	}

	return appendWhere(&sql, args, q.Where)
}

// DeleteStatement deletes the rows matching Where.
type DeleteStatement struct {
	Table string
	Where []Condition
}

// ToSQL generates the DELETE SQL and arguments.
func (q DeleteStatement) ToSQL() (string, []any, error) {
	if q.Table == "" {
		return "", nil, fmt.Errorf("table metadata not available")
	}

	var sql strings.Builder
	sql.WriteString("DELETE FROM " + q.Table)
	return appendWhere(&sql, nil, q.Where)
}

// appendWhere renders where after the statement in sql, numbering its
// parameters after args.
func appendWhere(sql *strings.Builder, args []any, where []Condition) (string, []any, error) {
	whereSQL, whereArgs, err := NewWhereBuilderWithStart(len(args)+1, where...).Build()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build WHERE clause: %w", err)
	}
	if whereSQL != "" {
		sql.WriteString(" " + whereSQL)
		args = append(args, whereArgs...)
	}
	return sql.String(), args, nil
}
