package builder

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/marshallshelly/pebble-relations/pkg/filter"
	"github.com/marshallshelly/pebble-relations/pkg/registry"
	"github.com/marshallshelly/pebble-relations/pkg/schema"
)

type Country struct {
	ID   int64  `po:"id,primaryKey,bigint"`
	Name string `po:"name,text"`
}

type Author struct {
	ID        int64    `po:"id,primaryKey,bigint"`
	Name      string   `po:"name,text"`
	CountryID int64    `po:"country_id,bigint"`
	Country   *Country `po:"country,belongsTo"`
	Books     []Book   `po:"books,hasMany"`
}

type Cover struct {
	ID     int64  `po:"id,primaryKey,bigint"`
	BookID int64  `po:"book_id,bigint"`
	URL    string `po:"url,text"`
}

type Tag struct {
	ID   int64  `po:"id,primaryKey,bigint"`
	Name string `po:"name,text"`
}

type Review struct {
	ID     int64  `po:"id,primaryKey,bigint"`
	BookID int64  `po:"book_id,bigint"`
	Body   string `po:"body,text"`
}

type Book struct {
	ID       int64    `po:"id,primaryKey,bigint"`
	Title    string   `po:"title,text"`
	AuthorID int64    `po:"author_id,bigint"`
	Author   *Author  `po:"author,belongsTo"`
	Cover    *Cover   `po:"cover,hasOne"`
	Tags     []Tag    `po:"tags,manyToMany,joinTable(book_tag)"`
	Reviews  []Review `po:"reviews,custom(reviews)"`
}

// newTestRegistry registers the book graph in a fresh registry.
func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.NewRegistry()
	for _, model := range []any{Book{}, Author{}, Country{}, Cover{}, Tag{}, Review{}} {
		if err := reg.Register(model); err != nil {
			t.Fatalf("failed to register %T: %v", model, err)
		}
	}
	return reg
}

func tableOf(t *testing.T, reg *registry.Registry, name string) *schema.TableMetadata {
	t.Helper()
	table, err := reg.GetByName(name)
	if err != nil {
		t.Fatalf("table %s: %v", name, err)
	}
	return table
}

// reviewStrategy loads reviews by book_id and resolves nested filters on
// review columns through a join.
type reviewStrategy struct {
	nested bool
}

func (s reviewStrategy) Load(ctx context.Context, q Querier, req StrategyRequest) (AssociationMap, error) {
	params := make([]any, len(req.Keys))
	copy(params, req.Keys)
	sql, args, err := SelectStatement{
		Table: "review",
		Where: []Condition{In("review.book_id", params...)},
	}.ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	collected, err := collectRows(rows)
	if err != nil {
		return nil, err
	}
	out := make(AssociationMap)
	for _, row := range collected {
		out[row["book_id"]] = append(out[row["book_id"]], row)
	}
	return out, nil
}

func (s reviewStrategy) ResolveNestedFilter(scope NestedScope, leaf *filter.Leaf) (NestedFilter, error) {
	if !s.nested {
		return NestedFilter{}, nil
	}
	return NestedFilter{
		Supported: true,
		Predicate: &filter.Leaf{Path: scope.Alias + "." + leaf.Path, Conditions: leaf.Conditions},
		Joins: []Join{{
			Type:      scope.JoinType,
			Table:     "review",
			Alias:     scope.Alias,
			Condition: fmt.Sprintf("%s.book_id = %s.id", scope.Alias, scope.SourceAlias),
			Fanout:    true,
		}},
	}, nil
}

type recordedQuery struct {
	SQL  string
	Args []any
}

type response struct {
	match   string
	columns []string
	data    [][]any
	err     error
}

// fakeQuerier answers queries with canned rows, picking the first response
// whose match is a substring of the SQL.
type fakeQuerier struct {
	mu        sync.Mutex
	responses []response
	queries   []recordedQuery
	execTag   string
}

func (f *fakeQuerier) on(match string, columns []string, data ...[]any) *fakeQuerier {
	f.responses = append(f.responses, response{match: match, columns: columns, data: data})
	return f
}

func (f *fakeQuerier) fail(match string, err error) *fakeQuerier {
	f.responses = append(f.responses, response{match: match, err: err})
	return f
}

func (f *fakeQuerier) record(sql string, args []any) response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, recordedQuery{SQL: sql, Args: args})
	for _, r := range f.responses {
		if strings.Contains(sql, r.match) {
			return r
		}
	}
	return response{}
}

func (f *fakeQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	r := f.record(sql, args)
	if r.err != nil {
		return nil, r.err
	}
	return &fakeRows{columns: r.columns, data: r.data}, nil
}

func (f *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	r := f.record(sql, args)
	if r.err != nil {
		return fakeRow{err: r.err}
	}
	if len(r.data) == 0 {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{values: r.data[0]}
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r := f.record(sql, args)
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	return pgconn.NewCommandTag(f.execTag), nil
}

func (f *fakeQuerier) sqls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.queries))
	for i, q := range f.queries {
		out[i] = q.SQL
	}
	return out
}

type fakeRows struct {
	columns []string
	data    [][]any
	pos     int
	closed  bool
}

func (r *fakeRows) Close()                        { r.closed = true }
func (r *fakeRows) Err() error                    { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) RawValues() [][]byte           { return nil }
func (r *fakeRows) Conn() *pgx.Conn               { return nil }

func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	fds := make([]pgconn.FieldDescription, len(r.columns))
	for i, c := range r.columns {
		fds[i] = pgconn.FieldDescription{Name: c}
	}
	return fds
}

func (r *fakeRows) Next() bool {
	if r.closed || r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Values() ([]any, error) {
	return r.data[r.pos-1], nil
}

func (r *fakeRows) Scan(dest ...any) error {
	return scanValues(r.data[r.pos-1], dest)
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scanValues(r.values, dest)
}

func scanValues(values []any, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("scan: %d values into %d targets", len(values), len(dest))
	}
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		if values[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		v := reflect.ValueOf(values[i])
		if !v.Type().AssignableTo(target.Type()) {
			v = v.Convert(target.Type())
		}
		target.Set(v)
	}
	return nil
}

func cols(names ...string) []string { return names }

func row(values ...any) []any { return values }
