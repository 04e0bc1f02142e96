package builder

import (
	"fmt"

	"github.com/marshallshelly/pebble-relations/pkg/filter"
)

// PostgreSQL operators that filter leaves cannot express, as native
// fragments. Columns are used as given, so qualify them with the table or
// join alias they belong to.

// JSONBContains checks if left JSONB contains right JSONB.
func JSONBContains(column string, value interface{}) *filter.Native {
	return filter.Raw(column+" @> ?::jsonb", value)
}

// JSONBContainedBy checks if left JSONB is contained by right JSONB.
func JSONBContainedBy(column string, value interface{}) *filter.Native {
	return filter.Raw(column+" <@ ?::jsonb", value)
}

// JSONBPathText builds a ->> path expression for use as a native column.
func JSONBPathText(column string, path ...string) string {
	expr := column
	for i, p := range path {
		op := "->"
		if i == len(path)-1 {
			op = "->>"
		}
		expr += fmt.Sprintf("%s'%s'", op, p)
	}
	return expr
}

// ArrayContains checks if an array column contains all elements of value.
func ArrayContains(column string, value interface{}) *filter.Native {
	return filter.Raw(column+" @> ?", value)
}

// ArrayOverlap checks if an array column shares an element with value.
func ArrayOverlap(column string, value interface{}) *filter.Native {
	return filter.Raw(column+" && ?", value)
}

// RegexpMatch matches column against a POSIX regular expression.
func RegexpMatch(column string, pattern string) *filter.Native {
	return filter.Raw(column+" ~ ?", pattern)
}

// RegexpMatchInsensitive matches case-insensitively.
func RegexpMatchInsensitive(column string, pattern string) *filter.Native {
	return filter.Raw(column+" ~* ?", pattern)
}

// TSMatch performs full-text search.
func TSMatch(column string, query string) *filter.Native {
	return filter.Raw(fmt.Sprintf("to_tsvector(%s) @@ to_tsquery(?)", column), query)
}
