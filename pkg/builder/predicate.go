package builder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/marshallshelly/pebble-relations/pkg/filter"
	"github.com/marshallshelly/pebble-relations/pkg/runtime"
	"github.com/marshallshelly/pebble-relations/pkg/schema"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Translate converts a filter tree into WHERE conditions.
//
// Unqualified paths are mapped to columns of table and qualified with its
// name. Paths containing the delimiter are expected to be alias.column pairs
// already, as produced by the join resolver. Group nesting and combinators are
// kept as nested condition groups. Joins carried by native fragments are
// returned alongside the conditions.
//
// The returned conditions are a conjunction: a root AND group is returned as
// its members, anything else as a single condition, so callers may append
// further conditions without changing precedence.
func Translate(table *schema.TableMetadata, node filter.Node) ([]Condition, []Join, error) {
	t := &translator{table: table}
	cond, ok, err := t.node(node)
	if err != nil || !ok {
		return nil, nil, err
	}
	if len(cond.Group) > 0 && !cond.Not && conjunctive(cond.Group) {
		return cond.Group, t.joins, nil
	}
	return []Condition{cond}, t.joins, nil
}

func conjunctive(conds []Condition) bool {
	for _, c := range conds[1:] {
		if c.Logic == LogicOr {
			return false
		}
	}
	return true
}

type translator struct {
	table *schema.TableMetadata
	joins []Join
}

// node translates one filter node. ok is false for nodes without conditions.
func (t *translator) node(node filter.Node) (Condition, bool, error) {
	switch n := node.(type) {
	case nil:
		return Condition{}, false, nil

	case *filter.Group:
		logic := LogicAnd
		if n.Logic == filter.Or {
			logic = LogicOr
		}
		var group []Condition
		for _, child := range n.Children {
			cond, ok, err := t.node(child)
			if err != nil {
				return Condition{}, false, err
			}
			if !ok {
				continue
			}
			cond.Logic = logic
			group = append(group, cond)
		}
		if len(group) == 0 {
			return Condition{}, false, nil
		}
		group[0].Logic = LogicAnd
		return Group(group...), true, nil

	case *filter.Leaf:
		column := t.column(n.Path)
		conds := make([]Condition, 0, len(n.Conditions))
		for _, c := range n.Conditions {
			cond, err := translateCondition(column, c.Op, c.Value)
			if err != nil {
				return Condition{}, false, withProperty(err, n.Path)
			}
			conds = append(conds, cond)
		}
		switch len(conds) {
		case 0:
			return Condition{}, false, nil
		case 1:
			return conds[0], true, nil
		}
		return Group(conds...), true, nil

	case *filter.Native:
		if n.SQL == "" {
			return Condition{}, false, nil
		}
		for _, j := range n.Joins {
			t.joins = append(t.joins, Join{Type: InnerJoin, Table: j.Table, Alias: j.Alias, Condition: j.On})
		}
		return RawCondition(n.SQL, n.Args...), true, nil

	default:
		return Condition{}, false, fmt.Errorf("unknown filter node %T", node)
	}
}

func (t *translator) column(path string) string {
	if filter.IsNested(path) || t.table == nil {
		return path
	}
	return t.table.Name + "." + t.table.ColumnName(path)
}

// translateCondition binds one operator/value pair against a qualified column.
func translateCondition(column string, op filter.Operator, raw any) (Condition, error) {
	value, kind, err := filter.Normalize(raw)
	if err != nil {
		return Condition{}, err
	}

	switch op {
	case filter.Equal, filter.Not:
		negate := op == filter.Not
		switch kind {
		case filter.KindNull:
			if negate {
				return Condition{Column: column, Operator: OpIsNotNull}, nil
			}
			return Condition{Column: column, Operator: OpIsNull}, nil

		case filter.KindList:
			items := value.([]any)
			if len(items) == 0 {
				if negate {
					return Condition{Column: column, Operator: OpTrue}, nil
				}
				return Condition{Column: column, Operator: OpFalse}, nil
			}
			params := make([]any, len(items))
			for i, item := range items {
				v, k, err := filter.Normalize(item)
				if err != nil {
					return Condition{}, err
				}
				if k == filter.KindNull || k == filter.KindList {
					return Condition{}, &runtime.UnsupportedValueTypeError{Type: "list of " + k.String()}
				}
				params[i] = paramFor(k, v)
			}
			if negate {
				return Condition{Column: column, Operator: OpNotIn, Value: params}, nil
			}
			return Condition{Column: column, Operator: OpIn, Value: params}, nil
		}

		if negate {
			return Condition{Column: column, Operator: OpNotEqual, Value: paramFor(kind, value)}, nil
		}
		return Condition{Column: column, Operator: OpEqual, Value: paramFor(kind, value)}, nil

	case filter.Start, filter.End, filter.Contain:
		var s string
		switch kind {
		case filter.KindString, filter.KindUUID:
			s = value.(string)
		case filter.KindInt, filter.KindFloat:
			s = fmt.Sprint(value)
		default:
			return Condition{}, &runtime.UnsupportedValueTypeError{Type: kind.String()}
		}
		s = likeEscaper.Replace(s)
		switch op {
		case filter.Start:
			s += "%"
		case filter.End:
			s = "%" + s
		default:
			s = "%" + s + "%"
		}
		return Condition{Column: column, Operator: OpLike, Value: Param{Value: s, Cast: "text"}}, nil
	}

	return Condition{}, fmt.Errorf("unknown filter operator %q", op)
}

// paramFor chooses the binding of a normalized scalar by its kind. Strings
// stay untyped so the column decides (text, varchar, enum).
func paramFor(kind filter.Kind, value any) Param {
	switch kind {
	case filter.KindBool:
		return Param{Value: value, Cast: "boolean"}
	case filter.KindInt:
		return Param{Value: value, Cast: "bigint"}
	case filter.KindFloat:
		return Param{Value: value, Cast: "double precision"}
	case filter.KindUUID:
		return Param{Value: value, Cast: "uuid"}
	case filter.KindTime:
		return Param{Value: value, Cast: "timestamptz"}
	case filter.KindDate:
		return Param{Value: value.(filter.Date).String(), Cast: "date"}
	}
	return Param{Value: value}
}

func withProperty(err error, path string) error {
	var typeErr *runtime.UnsupportedValueTypeError
	if errors.As(err, &typeErr) && typeErr.Property == "" {
		typeErr.Property = path
	}
	return err
}
