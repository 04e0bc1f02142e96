package builder

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marshallshelly/pebble-relations/pkg/filter"
	"github.com/marshallshelly/pebble-relations/pkg/runtime"
)

func buildWhere(t *testing.T, conds []Condition) (string, []any) {
	t.Helper()
	sql, args, err := NewWhereBuilder(conds...).Build()
	require.NoError(t, err)
	return sql, args
}

func TestTranslate_Bindings(t *testing.T) {
	reg := newTestRegistry(t)
	book := tableOf(t, reg, "book")
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		node     filter.Node
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "string equality stays untyped",
			node:     filter.Eq("title", "Dune"),
			wantSQL:  "WHERE book.title = $1",
			wantArgs: []any{"Dune"},
		},
		{
			name:     "go field names map to columns",
			node:     filter.Eq("AuthorID", 7),
			wantSQL:  "WHERE book.author_id = $1::bigint",
			wantArgs: []any{int64(7)},
		},
		{
			name:     "bool",
			node:     filter.Eq("available", true),
			wantSQL:  "WHERE book.available = $1::boolean",
			wantArgs: []any{true},
		},
		{
			name:     "float",
			node:     filter.Ne("price", 9.5),
			wantSQL:  "WHERE book.price != $1::double precision",
			wantArgs: []any{9.5},
		},
		{
			name:     "uuid",
			node:     filter.Eq("ref", id),
			wantSQL:  "WHERE book.ref = $1::uuid",
			wantArgs: []any{id.String()},
		},
		{
			name:     "time",
			node:     filter.Eq("published_at", at),
			wantSQL:  "WHERE book.published_at = $1::timestamptz",
			wantArgs: []any{at},
		},
		{
			name:     "date",
			node:     filter.Eq("released", filter.NewDate(at)),
			wantSQL:  "WHERE book.released = $1::date",
			wantArgs: []any{"2024-03-01"},
		},
		{
			name:    "null",
			node:    filter.Eq("title", nil),
			wantSQL: "WHERE book.title IS NULL",
		},
		{
			name:    "not null",
			node:    filter.Ne("title", nil),
			wantSQL: "WHERE book.title IS NOT NULL",
		},
		{
			name:     "list",
			node:     filter.Eq("id", []int{1, 2}),
			wantSQL:  "WHERE book.id IN ($1::bigint, $2::bigint)",
			wantArgs: []any{int64(1), int64(2)},
		},
		{
			name:     "negated list",
			node:     filter.Ne("title", []string{"a", "b"}),
			wantSQL:  "WHERE book.title NOT IN ($1, $2)",
			wantArgs: []any{"a", "b"},
		},
		{
			name:    "empty list matches nothing",
			node:    filter.Eq("id", []int{}),
			wantSQL: "WHERE FALSE",
		},
		{
			name:    "negated empty list matches everything",
			node:    filter.Ne("id", []int{}),
			wantSQL: "WHERE TRUE",
		},
		{
			name:     "start escapes wildcards",
			node:     filter.StartsWith("title", `50%_off\`),
			wantSQL:  "WHERE book.title LIKE $1::text",
			wantArgs: []any{`50\%\_off\\%`},
		},
		{
			name:     "end",
			node:     filter.EndsWith("title", "saga"),
			wantSQL:  "WHERE book.title LIKE $1::text",
			wantArgs: []any{"%saga"},
		},
		{
			name:     "contain",
			node:     filter.Contains("title", "ring"),
			wantSQL:  "WHERE book.title LIKE $1::text",
			wantArgs: []any{"%ring%"},
		},
		{
			name:     "alias qualified paths pass through",
			node:     filter.Eq("author_country.name", "NL"),
			wantSQL:  "WHERE author_country.name = $1",
			wantArgs: []any{"NL"},
		},
		{
			name:     "several conditions on one leaf",
			node:     filter.Where("title", filter.Start, "The").And(filter.Not, "The End"),
			wantSQL:  "WHERE book.title LIKE $1::text AND book.title != $2",
			wantArgs: []any{"The%", "The End"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conds, joins, err := Translate(book, tt.node)
			require.NoError(t, err)
			assert.Empty(t, joins)

			sql, args := buildWhere(t, conds)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestTranslate_Groups(t *testing.T) {
	reg := newTestRegistry(t)
	book := tableOf(t, reg, "book")

	node := filter.AllOf(
		filter.Eq("author_id", 1),
		filter.AnyOf(
			filter.Eq("title", "Dune"),
			filter.AllOf(filter.StartsWith("title", "Emma"), filter.Ne("id", 3)),
		),
	)

	conds, _, err := Translate(book, node)
	require.NoError(t, err)

	sql, args := buildWhere(t, conds)
	assert.Equal(t, "WHERE book.author_id = $1::bigint AND (book.title = $2 OR (book.title LIKE $3::text AND book.id != $4::bigint))", sql)
	assert.Len(t, args, 4)
}

// countConditions counts group and leaf conditions, the root included.
func countConditions(conds []Condition) int {
	n := 0
	for _, c := range conds {
		n++
		if len(c.Group) > 0 {
			n += countConditions(c.Group)
		}
	}
	return n
}

func TestTranslate_PreservesStructure(t *testing.T) {
	reg := newTestRegistry(t)
	book := tableOf(t, reg, "book")

	t.Run("root and group is returned as its members", func(t *testing.T) {
		trees := []filter.Node{
			filter.AllOf(filter.Eq("a", 1), filter.Eq("b", 2)),
			filter.AllOf(filter.AnyOf(filter.Eq("a", 1)), filter.AllOf(filter.Eq("b", 2))),
		}
		for _, tree := range trees {
			conds, _, err := Translate(book, tree)
			require.NoError(t, err)
			assert.Equal(t, filter.Count(tree), countConditions(conds)+1)
			for _, c := range conds {
				assert.Equal(t, LogicAnd, c.Logic)
			}
		}
	})

	t.Run("root or group stays one condition", func(t *testing.T) {
		tree := filter.AnyOf(filter.Eq("a", 1), filter.AllOf(filter.Eq("b", 2), filter.AnyOf(filter.Eq("c", 3), filter.Eq("d", 4))))
		conds, _, err := Translate(book, tree)
		require.NoError(t, err)
		require.Len(t, conds, 1)
		assert.Equal(t, filter.Count(tree), countConditions(conds))
		assert.Equal(t, LogicOr, conds[0].Group[1].Logic)
	})
}

func TestTranslate_AppendKeepsPrecedence(t *testing.T) {
	reg := newTestRegistry(t)
	book := tableOf(t, reg, "book")

	conds, _, err := Translate(book, filter.AnyOf(filter.Eq("title", "Dune"), filter.Eq("title", "Emma")))
	require.NoError(t, err)
	conds = append(conds, Eq("book.author_id", 7))

	sql, args := buildWhere(t, conds)
	assert.Equal(t, "WHERE (book.title = $1 OR book.title = $2) AND book.author_id = $3", sql)
	assert.Equal(t, []any{"Dune", "Emma", 7}, args)

	conds, _, err = Translate(book, filter.AllOf(filter.Eq("title", "Dune"), filter.Ne("title", "Emma")))
	require.NoError(t, err)
	conds = append(conds, Eq("book.author_id", 7))

	sql, _ = buildWhere(t, conds)
	assert.Equal(t, "WHERE book.title = $1 AND book.title != $2 AND book.author_id = $3", sql)
}

func TestTranslate_Native(t *testing.T) {
	reg := newTestRegistry(t)
	book := tableOf(t, reg, "book")

	node := filter.AllOf(
		filter.Eq("title", "Dune"),
		filter.Raw("ext.score > ?", 3).WithJoin("book_ext", "ext", "ext.book_id = book.id"),
	)

	conds, joins, err := Translate(book, node)
	require.NoError(t, err)
	require.Len(t, joins, 1)
	assert.Equal(t, "INNER JOIN book_ext AS ext ON ext.book_id = book.id", joins[0].SQL())

	sql, args := buildWhere(t, conds)
	assert.Equal(t, "WHERE book.title = $1 AND (ext.score > $2)", sql)
	assert.Equal(t, []any{"Dune", 3}, args)
}

func TestTranslate_EmptyTree(t *testing.T) {
	conds, joins, err := Translate(nil, filter.AllOf())
	require.NoError(t, err)
	assert.Empty(t, conds)
	assert.Empty(t, joins)

	conds, _, err = Translate(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, conds)
}

func TestTranslate_UnsupportedValue(t *testing.T) {
	reg := newTestRegistry(t)
	book := tableOf(t, reg, "book")

	tests := []struct {
		name string
		node filter.Node
	}{
		{"map value", filter.Eq("title", map[string]int{"a": 1})},
		{"bytes", filter.Eq("title", []byte("raw"))},
		{"like on bool", filter.Where("title", filter.Contain, true)},
		{"null in list", filter.Eq("id", []any{1, nil})},
		{"nested list", filter.Eq("id", []any{[]int{1}})},
		{"uint64 above bigint", filter.Eq("id", uint64(math.MaxUint64))},
		{"uint64 above bigint in list", filter.Eq("id", []uint64{1, math.MaxInt64 + 1})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Translate(book, tt.node)
			require.Error(t, err)
			assert.True(t, errors.Is(err, runtime.ErrUnsupportedValueType))

			var typeErr *runtime.UnsupportedValueTypeError
			require.ErrorAs(t, err, &typeErr)
			assert.Equal(t, tt.node.(*filter.Leaf).Path, typeErr.Property)
		})
	}
}
