package builder

import (
	"fmt"
	"sort"
	"strings"
)

// InsertStatement inserts one or more rows.
type InsertStatement struct {
	Table     string
	Columns   []string
	Values    [][]interface{}
	Returning []string
}

// NewInsertStatement builds a single-row insert from a column map. Columns are
// sorted so the generated SQL is stable.
func NewInsertStatement(table string, values map[string]interface{}) InsertStatement {
	columns := sortedColumns(values)
	row := make([]interface{}, len(columns))
	for i, col := range columns {
		row[i] = values[col]
	}
	return InsertStatement{Table: table, Columns: columns, Values: [][]interface{}{row}}
}

// ToSQL generates the INSERT SQL and arguments.
func (q InsertStatement) ToSQL() (string, []interface{}, error) {
	if q.Table == "" {
		return "", nil, fmt.Errorf("table metadata not available")
	}
	if len(q.Values) == 0 {
		return "", nil, fmt.Errorf("no values to insert")
	}

	var sql strings.Builder
	var args []interface{}
	paramNum := 1

	sql.WriteString("INSERT INTO ")
	sql.WriteString(q.Table)

	if len(q.Columns) == 0 {
		sql.WriteString(" DEFAULT VALUES")
	} else {
		sql.WriteString(" (")
		sql.WriteString(strings.Join(q.Columns, ", "))
		sql.WriteString(") VALUES ")

		valueClauses := make([]string, 0, len(q.Values))
		for _, row := range q.Values {
			if len(row) != len(q.Columns) {
				return "", nil, fmt.Errorf("insert row has %d values for %d columns", len(row), len(q.Columns))
			}
			placeholders := make([]string, len(row))
			for i, val := range row {
				placeholders[i] = fmt.Sprintf("$%d", paramNum)
				args = append(args, val)
				paramNum++
			}
			valueClauses = append(valueClauses, "("+strings.Join(placeholders, ", ")+")")
		}
		sql.WriteString(strings.Join(valueClauses, ", "))
	}

	// RETURNING clause
	if len(q.Returning) > 0 {
		sql.WriteString(" RETURNING ")
		sql.WriteString(strings.Join(q.Returning, ", "))
	}

	return sql.String(), args, nil
}

func sortedColumns(values map[string]interface{}) []string {
	columns := make([]string, 0, len(values))
	for col := range values {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	return columns
}
