package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Reserved keys of the document form.
const (
	KeyAnd    = "and"
	KeyOr     = "or"
	KeyNative = "native"
)

var operatorAliases = map[string]Operator{
	"=":       Equal,
	"equal":   Equal,
	"!":       Not,
	"!=":      Not,
	"not":     Not,
	"start":   Start,
	"end":     End,
	"contain": Contain,
}

// Parse decodes a filter from its JSON document form:
//
//	{"or": [{"title": {"contain": "go"}}, {"author.country.name": {"=": "CZ"}}]}
//
// Objects with several keys are AND-ed in sorted key order. A bare value is
// shorthand for Equal. Integral JSON numbers decode as int64.
func Parse(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode filter: %w", err)
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("filter document must be an object, got %T", doc)
	}
	return FromMap(obj)
}

// FromMap builds a filter from an already decoded document.
func FromMap(doc map[string]any) (Node, error) {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	nodes := make([]Node, 0, len(keys))
	for _, key := range keys {
		node, err := decodeEntry(key, doc[key])
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}

	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return AllOf(nodes...), nil
}

func decodeEntry(key string, value any) (Node, error) {
	switch strings.ToLower(key) {
	case KeyAnd:
		return decodeGroup(And, value)
	case KeyOr:
		return decodeGroup(Or, value)
	case KeyNative:
		return decodeNative(value)
	}
	return decodeLeaf(key, value)
}

func decodeGroup(logic Logic, value any) (Node, error) {
	group := &Group{Logic: logic}

	switch v := value.(type) {
	case []any:
		for i, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s group item %d must be an object, got %T", logic, i, item)
			}
			child, err := FromMap(obj)
			if err != nil {
				return nil, err
			}
			group.Children = append(group.Children, child)
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child, err := decodeEntry(k, v[k])
			if err != nil {
				return nil, err
			}
			group.Children = append(group.Children, child)
		}
	default:
		return nil, fmt.Errorf("%s group must be an array or object, got %T", logic, value)
	}

	return group, nil
}

func decodeNative(value any) (Node, error) {
	switch v := value.(type) {
	case string:
		return Raw(v), nil
	case map[string]any:
		sql, _ := v["sql"].(string)
		if sql == "" {
			return nil, fmt.Errorf("native filter requires a sql string")
		}
		native := Raw(sql)
		if args, ok := v["args"].([]any); ok {
			for _, arg := range args {
				native.Args = append(native.Args, decodeScalar(arg))
			}
		}
		if joins, ok := v["joins"].([]any); ok {
			for i, j := range joins {
				obj, ok := j.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("native join %d must be an object", i)
				}
				table, _ := obj["table"].(string)
				alias, _ := obj["alias"].(string)
				on, _ := obj["on"].(string)
				if table == "" || on == "" {
					return nil, fmt.Errorf("native join %d requires table and on", i)
				}
				native.WithJoin(table, alias, on)
			}
		}
		return native, nil
	}
	return nil, fmt.Errorf("native filter must be a string or object, got %T", value)
}

func decodeLeaf(path string, value any) (Node, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		return Eq(path, decodeScalar(value)), nil
	}

	ops := make([]string, 0, len(obj))
	for k := range obj {
		ops = append(ops, k)
	}
	sort.Strings(ops)

	leaf := &Leaf{Path: path}
	for _, name := range ops {
		op, ok := operatorAliases[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("unknown operator %q on %s", name, path)
		}
		leaf.Conditions = append(leaf.Conditions, Condition{Op: op, Value: decodeScalar(obj[name])})
	}
	return leaf, nil
}

func decodeScalar(value any) any {
	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = decodeScalar(item)
		}
		return out
	}
	return value
}
