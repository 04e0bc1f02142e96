package builder

import (
	"fmt"
	"strings"
)

// WhereBuilder helps build WHERE clauses.
type WhereBuilder struct {
	conditions []Condition
	paramStart int
}

// NewWhereBuilder creates a new WhereBuilder.
func NewWhereBuilder(conditions ...Condition) *WhereBuilder {
	return NewWhereBuilderWithStart(1, conditions...)
}

// NewWhereBuilderWithStart creates a new WhereBuilder with a starting parameter number.
func NewWhereBuilderWithStart(paramStart int, conditions ...Condition) *WhereBuilder {
	return &WhereBuilder{
		conditions: conditions,
		paramStart: paramStart,
	}
}

// Add adds a condition to the WHERE clause.
func (w *WhereBuilder) Add(condition Condition) {
	w.conditions = append(w.conditions, condition)
}

// Build generates the WHERE clause SQL and arguments.
func (w *WhereBuilder) Build() (string, []interface{}, error) {
	if len(w.conditions) == 0 {
		return "", nil, nil
	}

	sql, args, err := w.buildConditions(w.conditions, w.paramStart)
	if err != nil {
		return "", nil, err
	}
	return "WHERE " + sql, args, nil
}

// buildConditions recursively builds conditions.
func (w *WhereBuilder) buildConditions(conditions []Condition, paramStart int) (string, []interface{}, error) {
	var parts []string
	var args []interface{}
	paramNum := paramStart

	for i, cond := range conditions {
		if len(cond.Group) > 0 {
			groupSQL, groupArgs, err := w.buildConditions(cond.Group, paramNum)
			if err != nil {
				return "", nil, err
			}
			groupSQL = "(" + groupSQL + ")"
			if cond.Not {
				groupSQL = "NOT " + groupSQL
			}
			parts = append(parts, groupSQL)
			args = append(args, groupArgs...)
			paramNum += len(groupArgs)
		} else {
			condSQL, condArgs, err := w.buildCondition(cond, paramNum)
			if err != nil {
				return "", nil, err
			}

			if cond.Not {
				condSQL = "NOT (" + condSQL + ")"
			}

			parts = append(parts, condSQL)
			args = append(args, condArgs...)
			paramNum += len(condArgs)
		}

		// Add logic operator between conditions
		if i < len(conditions)-1 {
			logic := conditions[i+1].Logic
			if logic == "" {
				logic = LogicAnd
			}
			parts[len(parts)-1] += " " + string(logic)
		}
	}

	return strings.Join(parts, " "), args, nil
}

// buildCondition builds a single condition.
func (w *WhereBuilder) buildCondition(cond Condition, paramNum int) (string, []interface{}, error) {
	if cond.Raw {
		var rawArgs []interface{}
		if cond.Value != nil {
			values, ok := cond.Value.([]interface{})
			if !ok {
				return "", nil, fmt.Errorf("raw condition requires []interface{} arguments")
			}
			rawArgs = values
		}
		sql, err := numberPlaceholders(cond.Column, paramNum, len(rawArgs))
		if err != nil {
			return "", nil, err
		}
		return "(" + sql + ")", rawArgs, nil
	}

	column := cond.Column

	switch cond.Operator {
	case OpEqual, OpNotEqual, OpLike:
		placeholder, arg := bind(paramNum, cond.Value)
		return fmt.Sprintf("%s %s %s", column, cond.Operator, placeholder), []interface{}{arg}, nil

	case OpIn, OpNotIn:
		values, ok := cond.Value.([]interface{})
		if !ok {
			return "", nil, fmt.Errorf("IN/NOT IN operator requires []interface{} value")
		}
		if len(values) == 0 {
			if cond.Operator == OpIn {
				return "FALSE", nil, nil
			}
			return "TRUE", nil, nil
		}

		placeholders := make([]string, len(values))
		args := make([]interface{}, len(values))
		for i, v := range values {
			placeholders[i], args[i] = bind(paramNum+i, v)
		}
		return fmt.Sprintf("%s %s (%s)", column, cond.Operator, strings.Join(placeholders, ", ")), args, nil

	case OpIsNull:
		return fmt.Sprintf("%s IS NULL", column), nil, nil

	case OpIsNotNull:
		return fmt.Sprintf("%s IS NOT NULL", column), nil, nil

	case OpInSubquery:
		sub, ok := cond.Value.(SelectStatement)
		if !ok {
			return "", nil, fmt.Errorf("IN subquery requires a SelectStatement value")
		}
		subSQL, subArgs, err := sub.build(paramNum)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%s IN (%s)", column, subSQL), subArgs, nil

	case OpFalse:
		return "FALSE", nil, nil

	case OpTrue:
		return "TRUE", nil, nil

	default:
		return "", nil, fmt.Errorf("unknown operator: %s", cond.Operator)
	}
}

// bind renders the placeholder for one argument.
func bind(paramNum int, value interface{}) (string, interface{}) {
	if p, ok := value.(Param); ok {
		if p.Cast != "" {
			return fmt.Sprintf("$%d::%s", paramNum, p.Cast), p.Value
		}
		return fmt.Sprintf("$%d", paramNum), p.Value
	}
	return fmt.Sprintf("$%d", paramNum), value
}

// numberPlaceholders replaces ? placeholders with $n, starting at paramNum.
func numberPlaceholders(sql string, paramNum, argc int) (string, error) {
	var out strings.Builder
	n := 0
	for _, ch := range sql {
		if ch == '?' {
			fmt.Fprintf(&out, "$%d", paramNum+n)
			n++
			continue
		}
		out.WriteRune(ch)
	}
	if n != argc {
		return "", fmt.Errorf("raw fragment %q has %d placeholders but %d arguments", sql, n, argc)
	}
	return out.String(), nil
}

// Helper functions for building conditions

// Eq creates an equality condition.
func Eq(column string, value interface{}) Condition {
	return Condition{Column: column, Operator: OpEqual, Value: value, Logic: LogicAnd}
}

// In creates an IN condition.
func In(column string, values ...interface{}) Condition {
	return Condition{Column: column, Operator: OpIn, Value: values, Logic: LogicAnd}
}

// RawCondition creates a raw SQL condition using ? placeholders.
func RawCondition(sql string, args ...interface{}) Condition {
	return Condition{Column: sql, Value: args, Raw: true, Logic: LogicAnd}
}

// Or sets the logic operator to OR for the next condition.
func Or(cond Condition) Condition {
	cond.Logic = LogicOr
	return cond
}

// Not negates a condition.
func Not(cond Condition) Condition {
	cond.Not = true
	return cond
}

// Group creates a grouped condition.
func Group(conditions ...Condition) Condition {
	return Condition{Group: conditions, Logic: LogicAnd}
}
