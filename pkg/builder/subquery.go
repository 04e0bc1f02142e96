package builder

import (
	"fmt"

	"github.com/marshallshelly/pebble-relations/pkg/schema"
)

// InSubquery creates an IN condition with a nested SELECT.
func InSubquery(column string, subquery SelectStatement) Condition {
	return Condition{Column: column, Operator: OpInSubquery, Value: subquery, Logic: LogicAnd}
}

// NotInSubquery creates a NOT IN condition with a nested SELECT.
func NotInSubquery(column string, subquery SelectStatement) Condition {
	return Not(InSubquery(column, subquery))
}

// keySubquery moves joins and conditions that UPDATE and DELETE cannot carry
// into a primary key subquery:
//
//	book.id IN (SELECT DISTINCT book.id FROM book INNER JOIN ... WHERE ...)
func keySubquery(table *schema.TableMetadata, joins []Join, where []Condition) (Condition, error) {
	pk, err := table.PrimaryKeyColumn()
	if err != nil {
		return Condition{}, fmt.Errorf("relationship filters on %s need a primary key: %w", table.Name, err)
	}
	column := table.Name + "." + pk
	return InSubquery(column, SelectStatement{
		Table:    table.Name,
		Columns:  []string{column},
		Distinct: hasFanout(joins),
		Joins:    joins,
		Where:    where,
	}), nil
}
