// Package filter describes filter trees over entity properties.
//
// A filter is a tree of groups and leaves. Groups combine their children with
// AND or OR, leaves map a property path to one or more operator/value pairs.
// Paths may traverse relationships using the "." delimiter, e.g.
// "author.country.name".
package filter

import "strings"

// Delimiter separates relationship segments in a property path.
const Delimiter = "."

// Logic combines the children of a group.
type Logic string

const (
	// And requires every child to match.
	And Logic = "AND"
	// Or requires at least one child to match.
	Or Logic = "OR"
)

// Operator is a leaf comparison operator.
type Operator string

const (
	// Equal matches equal values, NULL (IS) and lists (IN).
	Equal Operator = "="
	// Not matches different values, non-NULL (IS NOT) and lists (NOT IN).
	Not Operator = "!"
	// Start matches string prefixes.
	Start Operator = "start"
	// End matches string suffixes.
	End Operator = "end"
	// Contain matches substrings.
	Contain Operator = "contain"
)

// Valid reports whether the operator is known.
func (o Operator) Valid() bool {
	switch o {
	case Equal, Not, Start, End, Contain:
		return true
	}
	return false
}

// Node is a filter tree node: *Group, *Leaf or *Native.
type Node interface {
	isNode()
}

// Group combines child nodes with a logical operator.
type Group struct {
	Logic    Logic
	Children []Node
}

// Leaf compares the property at Path using each of its conditions.
// Multiple conditions on one leaf are combined with AND.
type Leaf struct {
	Path       string
	Conditions []Condition
}

// Condition is a single operator/value pair of a leaf.
type Condition struct {
	Op    Operator
	Value any
}

// Native is a raw SQL fragment that bypasses translation.
type Native struct {
	SQL   string
	Args  []any
	Joins []JoinFragment
}

// JoinFragment is a pre-built join carried by a native filter.
type JoinFragment struct {
	Table string
	Alias string
	On    string
}

func (*Group) isNode()  {}
func (*Leaf) isNode()   {}
func (*Native) isNode() {}

// AllOf builds an AND group.
func AllOf(children ...Node) *Group {
	return &Group{Logic: And, Children: children}
}

// AnyOf builds an OR group.
func AnyOf(children ...Node) *Group {
	return &Group{Logic: Or, Children: children}
}

// Where builds a leaf with a single condition.
func Where(path string, op Operator, value any) *Leaf {
	return &Leaf{Path: path, Conditions: []Condition{{Op: op, Value: value}}}
}

// Eq builds an Equal leaf.
func Eq(path string, value any) *Leaf {
	return Where(path, Equal, value)
}

// Ne builds a Not leaf.
func Ne(path string, value any) *Leaf {
	return Where(path, Not, value)
}

// StartsWith builds a Start leaf.
func StartsWith(path string, prefix string) *Leaf {
	return Where(path, Start, prefix)
}

// EndsWith builds an End leaf.
func EndsWith(path string, suffix string) *Leaf {
	return Where(path, End, suffix)
}

// Contains builds a Contain leaf.
func Contains(path string, substr string) *Leaf {
	return Where(path, Contain, substr)
}

// Raw builds a native fragment.
func Raw(sql string, args ...any) *Native {
	return &Native{SQL: sql, Args: args}
}

// And appends another condition to the leaf.
func (l *Leaf) And(op Operator, value any) *Leaf {
	l.Conditions = append(l.Conditions, Condition{Op: op, Value: value})
	return l
}

// WithJoin attaches a pre-built join to a native fragment.
func (n *Native) WithJoin(table, alias, on string) *Native {
	n.Joins = append(n.Joins, JoinFragment{Table: table, Alias: alias, On: on})
	return n
}

// SplitPath splits a path into its first relationship segment and the rest.
// ok is false when the path has no relationship segment.
func SplitPath(path string) (head, rest string, ok bool) {
	return strings.Cut(path, Delimiter)
}

// IsNested reports whether a path traverses a relationship.
func IsNested(path string) bool {
	return strings.Contains(path, Delimiter)
}

// Walk visits every node depth-first, parents before children.
func Walk(node Node, fn func(n Node, depth int)) {
	walk(node, 0, fn)
}

func walk(node Node, depth int, fn func(Node, int)) {
	if node == nil {
		return
	}
	fn(node, depth)
	if g, ok := node.(*Group); ok {
		for _, child := range g.Children {
			walk(child, depth+1, fn)
		}
	}
}

// Count returns the number of nodes in the tree.
func Count(node Node) int {
	n := 0
	Walk(node, func(Node, int) { n++ })
	return n
}

// IsEmpty reports whether the tree carries no condition at all.
func IsEmpty(node Node) bool {
	switch n := node.(type) {
	case nil:
		return true
	case *Group:
		for _, child := range n.Children {
			if !IsEmpty(child) {
				return false
			}
		}
		return true
	case *Leaf:
		return len(n.Conditions) == 0
	case *Native:
		return n.SQL == ""
	}
	return true
}
