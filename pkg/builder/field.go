package builder

import (
	"reflect"
	"strings"

	"github.com/marshallshelly/pebble-relations/pkg/filter"
	"github.com/marshallshelly/pebble-relations/pkg/registry"
	"github.com/marshallshelly/pebble-relations/pkg/runtime"
)

// Col returns the database column name for a Go field of T, looked up in the
// default registry. Unknown models and fields are returned unchanged.
//
//	builder.Col[Book]("AuthorID") // "author_id"
func Col[T any](goFieldName string) string {
	var zero T
	table, err := registry.Get(reflect.TypeOf(zero))
	if err != nil {
		return goFieldName
	}

	column := table.GetColumnByField(goFieldName)
	if column == nil {
		return goFieldName
	}
	return column.Name
}

// Path joins relationship properties and a terminal property into a filter
// path, e.g. Path("author", "country", "name") is "author.country.name".
func Path(segments ...string) string {
	return strings.Join(segments, filter.Delimiter)
}

// PathOf maps a dotted path of Go field names on T to a filter path:
//
//	builder.PathOf[Book](reg, "Author.Country.Name") // "author.country.name"
//
// Each segment but the last must be a relationship field; the last may be a
// relationship or a column field. Property and column names are accepted as
// well.
func PathOf[T any](reg *registry.Registry, goPath string) (string, error) {
	var zero T
	table, err := reg.GetOrRegister(zero)
	if err != nil {
		return "", err
	}

	segments := strings.Split(goPath, filter.Delimiter)
	out := make([]string, 0, len(segments))
	for i, seg := range segments {
		if rel := table.GetRelationship(seg); rel != nil {
			out = append(out, rel.Name)
			if i == len(segments)-1 {
				break
			}
			if table, err = reg.Target(rel); err != nil {
				return "", err
			}
			continue
		}

		if i == len(segments)-1 {
			if col := table.GetColumnByField(seg); col != nil {
				out = append(out, col.Name)
				break
			}
			if col := table.GetColumn(seg); col != nil {
				out = append(out, col.Name)
				break
			}
		}
		return "", &runtime.UnknownPropertyError{Entity: table.Name, Property: seg}
	}
	return Path(out...), nil
}
