//go:build integration

package pebblerelations_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marshallshelly/pebble-relations/pkg/builder"
	"github.com/marshallshelly/pebble-relations/pkg/filter"
	"github.com/marshallshelly/pebble-relations/pkg/registry"
	"github.com/marshallshelly/pebble-relations/pkg/runtime"
)

type Country struct {
	ID   int64  `po:"id,primaryKey,serial"`
	Name string `po:"name,text,notNull"`
}

func (Country) TableName() string { return "countries" }

type Author struct {
	ID        int64    `po:"id,primaryKey,serial"`
	Name      string   `po:"name,text,notNull"`
	CountryID *int64   `po:"country_id,bigint"`
	Country   *Country `po:"country,belongsTo"`
	Books     []Book   `po:"books,hasMany"`
}

func (Author) TableName() string { return "authors" }

type Book struct {
	ID       int64    `po:"id,primaryKey,serial"`
	Title    string   `po:"title,text,notNull"`
	AuthorID int64    `po:"author_id,bigint,notNull"`
	Author   *Author  `po:"author,belongsTo"`
	Cover    *Cover   `po:"cover,hasOne"`
	Tags     []Tag    `po:"tags,manyToMany,joinTable(book_tags)"`
	Reviews  []Review `po:"reviews,custom(reviews)"`
}

func (Book) TableName() string { return "books" }

type Cover struct {
	ID     int64  `po:"id,primaryKey,serial"`
	URL    string `po:"url,text,notNull"`
	BookID int64  `po:"book_id,bigint,notNull"`
}

func (Cover) TableName() string { return "covers" }

type Tag struct {
	ID   int64  `po:"id,primaryKey,serial"`
	Name string `po:"name,text,notNull"`
}

func (Tag) TableName() string { return "tags" }

type Review struct {
	ID     int64  `po:"id,primaryKey,serial"`
	BookID int64  `po:"book_id,bigint,notNull"`
	Rating int    `po:"rating,integer,notNull"`
	Body   string `po:"body,text"`
}

func (Review) TableName() string { return "reviews" }

const ddl = `
CREATE TABLE countries (id bigserial PRIMARY KEY, name text NOT NULL);
CREATE TABLE authors (id bigserial PRIMARY KEY, name text NOT NULL, country_id bigint REFERENCES countries (id));
CREATE TABLE books (id bigserial PRIMARY KEY, title text NOT NULL, author_id bigint NOT NULL REFERENCES authors (id));
CREATE TABLE covers (id bigserial PRIMARY KEY, url text NOT NULL, book_id bigint NOT NULL UNIQUE REFERENCES books (id) ON DELETE CASCADE);
CREATE TABLE tags (id bigserial PRIMARY KEY, name text NOT NULL UNIQUE);
CREATE TABLE book_tags (
	book_id bigint NOT NULL REFERENCES books (id) ON DELETE CASCADE,
	tag_id bigint NOT NULL REFERENCES tags (id) ON DELETE CASCADE,
	PRIMARY KEY (book_id, tag_id)
);
CREATE TABLE reviews (id bigserial PRIMARY KEY, book_id bigint NOT NULL REFERENCES books (id) ON DELETE CASCADE, rating integer NOT NULL, body text);`

// reviewStrategy loads reviews from their own table and joins them for nested
// filters.
type reviewStrategy struct{}

func (reviewStrategy) Load(ctx context.Context, q builder.Querier, req builder.StrategyRequest) (builder.AssociationMap, error) {
	sql, args, err := builder.SelectStatement{
		Table: "reviews",
		Where: []builder.Condition{builder.In("reviews.book_id", req.Keys...)},
	}.ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}

	out := make(builder.AssociationMap)
	for _, m := range maps {
		out[m["book_id"]] = append(out[m["book_id"]], builder.Row(m))
	}
	return out, nil
}

func (reviewStrategy) ResolveNestedFilter(scope builder.NestedScope, leaf *filter.Leaf) (builder.NestedFilter, error) {
	return builder.NestedFilter{
		Supported: true,
		Predicate: &filter.Leaf{Path: scope.Alias + "." + leaf.Path, Conditions: leaf.Conditions},
		Joins: []builder.Join{{
			Type:      scope.JoinType,
			Table:     "reviews",
			Alias:     scope.Alias,
			Condition: fmt.Sprintf("%s.book_id = %s.id", scope.Alias, scope.SourceAlias),
			Fanout:    true,
		}},
	}, nil
}

// setupTestDB creates a PostgreSQL container and returns connection details
func setupTestDB(t *testing.T) (string, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "failed to start PostgreSQL container")

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cleanup := func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}
	return connStr, cleanup
}

type fixture struct {
	authors map[string]int64
	books   map[string]int64
	tags    map[string]int64
}

func seed(t *testing.T, ctx context.Context, db *builder.DB) fixture {
	t.Helper()
	insert := func(table string, values map[string]any) int64 {
		id, err := db.Insert(table, values).Execute(ctx)
		require.NoError(t, err)
		return id.(int64)
	}

	uk := insert("countries", map[string]any{"name": "United Kingdom"})
	us := insert("countries", map[string]any{"name": "United States"})

	f := fixture{authors: map[string]int64{}, books: map[string]int64{}, tags: map[string]int64{}}
	f.authors["Tolkien"] = insert("authors", map[string]any{"name": "J.R.R. Tolkien", "country_id": uk})
	f.authors["Pratchett"] = insert("authors", map[string]any{"name": "Terry Pratchett", "country_id": uk})
	f.authors["Herbert"] = insert("authors", map[string]any{"name": "Frank Herbert", "country_id": us})
	f.authors["Anonymous"] = insert("authors", map[string]any{"name": "Anonymous"})

	for _, name := range []string{"fantasy", "classic", "scifi"} {
		f.tags[name] = insert("tags", map[string]any{"name": name})
	}

	books := []struct {
		title  string
		author string
		tags   []string
	}{
		{"The Hobbit", "Tolkien", []string{"fantasy", "classic"}},
		{"Guards! Guards!", "Pratchett", []string{"fantasy"}},
		{"Small Gods", "Pratchett", []string{"fantasy", "classic"}},
		{"Dune", "Herbert", []string{"scifi", "classic"}},
	}
	for _, b := range books {
		id := insert("books", map[string]any{"title": b.title, "author_id": f.authors[b.author]})
		f.books[b.title] = id

		related := make([]any, len(b.tags))
		for i, tag := range b.tags {
			related[i] = f.tags[tag]
		}
		n, err := db.LinkManyToMany("books", "tags", id, related...).Execute(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(len(related)), n)
	}

	insert("covers", map[string]any{"url": "hobbit.jpg", "book_id": f.books["The Hobbit"]})
	insert("covers", map[string]any{"url": "dune.jpg", "book_id": f.books["Dune"]})

	insert("reviews", map[string]any{"book_id": f.books["The Hobbit"], "rating": 5, "body": "timeless"})
	insert("reviews", map[string]any{"book_id": f.books["The Hobbit"], "rating": 4, "body": "long walk"})
	insert("reviews", map[string]any{"book_id": f.books["Dune"], "rating": 5, "body": "spice"})
	return f
}

func titles(rows []builder.Row) []string {
	out := make([]string, len(rows))
	for i, row := range rows {
		out[i], _ = row["title"].(string)
	}
	return out
}

func names(rows []builder.Row) []string {
	out := make([]string, len(rows))
	for i, row := range rows {
		out[i], _ = row["name"].(string)
	}
	return out
}

func TestIntegration_Relationships(t *testing.T) {
	connStr, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	conn, err := runtime.ConnectWithURL(ctx, connStr, runtime.NewLogger(runtime.LogConfig{Level: "warn"}))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec(ctx, ddl)
	require.NoError(t, err)

	reg := registry.NewRegistry()
	for _, model := range []any{Country{}, Author{}, Book{}, Cover{}, Tag{}, Review{}} {
		require.NoError(t, reg.Register(model))
	}

	opts := []builder.Option{
		builder.WithRegistry(reg),
		builder.WithConcurrency(4),
		builder.WithStrategy("reviews", reviewStrategy{}),
	}
	db := builder.New(conn, opts...)
	isolated := builder.New(conn, append(opts, builder.WithIsolatedOrGroups())...)

	f := seed(t, ctx, db)

	t.Run("nested manyToOne filter", func(t *testing.T) {
		rows, err := db.Select("books").
			Where(filter.Eq("author.country.name", "United Kingdom")).
			OrderByAsc("title").
			Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Guards! Guards!", "Small Gods", "The Hobbit"}, titles(rows))
	})

	t.Run("fanout filter returns each root once", func(t *testing.T) {
		rows, err := db.Select("authors").
			Where(filter.Eq("books.tags.name", "classic")).
			OrderByAsc("name").
			Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Frank Herbert", "J.R.R. Tolkien", "Terry Pratchett"}, names(rows))

		n, err := db.Count("authors").Where(filter.Eq("books.tags.name", "fantasy")).Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("isolated or groups", func(t *testing.T) {
		rows, err := isolated.Select("authors").
			Where(filter.AnyOf(
				filter.Eq("country.name", "United States"),
				filter.Eq("books.title", "Small Gods"),
			)).
			OrderByAsc("name").
			Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Frank Herbert", "Terry Pratchett"}, names(rows))
	})

	t.Run("custom nested filter", func(t *testing.T) {
		rows, err := db.Select("books").
			Where(filter.Eq("reviews.rating", 5)).
			OrderByAsc("title").
			Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Dune", "The Hobbit"}, titles(rows))
	})

	t.Run("associations", func(t *testing.T) {
		rows, err := db.Select("books").
			With("author", "cover", "tags", "reviews").
			OrderByAsc("title").
			Execute(ctx)
		require.NoError(t, err)

		books, err := builder.Decode[Book](reg, rows)
		require.NoError(t, err)
		require.Len(t, books, 4)

		dune := books[0]
		assert.Equal(t, "Dune", dune.Title)
		require.NotNil(t, dune.Author)
		assert.Equal(t, "Frank Herbert", dune.Author.Name)
		require.NotNil(t, dune.Cover)
		assert.Equal(t, "dune.jpg", dune.Cover.URL)
		assert.ElementsMatch(t, []string{"scifi", "classic"}, []string{dune.Tags[0].Name, dune.Tags[1].Name})
		require.Len(t, dune.Reviews, 1)
		assert.Equal(t, "spice", dune.Reviews[0].Body)

		guards := books[1]
		assert.Equal(t, "Guards! Guards!", guards.Title)
		assert.Nil(t, guards.Cover)
		require.Len(t, guards.Tags, 1)
		assert.Equal(t, "fantasy", guards.Tags[0].Name)
		assert.Empty(t, guards.Reviews)

		hobbit := books[3]
		assert.Len(t, hobbit.Reviews, 2)
	})

	t.Run("association filter traverses the target", func(t *testing.T) {
		rows, err := db.Select("authors").
			With("country").
			Associate("books", builder.AssociationRequest{
				Selection: []string{"title"},
				Filter:    filter.Eq("tags.name", "classic"),
			}).
			OrderByAsc("name").
			Execute(ctx)
		require.NoError(t, err)

		authors, err := builder.Decode[Author](reg, rows)
		require.NoError(t, err)
		require.Len(t, authors, 4)

		byName := make(map[string]Author, len(authors))
		for _, a := range authors {
			byName[a.Name] = a
		}
		assert.Nil(t, byName["Anonymous"].Country)
		assert.Empty(t, byName["Anonymous"].Books)
		require.Len(t, byName["Terry Pratchett"].Books, 1)
		assert.Equal(t, "Small Gods", byName["Terry Pratchett"].Books[0].Title)
		require.NotNil(t, byName["J.R.R. Tolkien"].Country)
		assert.Equal(t, "United Kingdom", byName["J.R.R. Tolkien"].Country.Name)
	})

	t.Run("select one", func(t *testing.T) {
		row, err := db.SelectOne("books", "title", "The Hobbit").With("tags").Execute(ctx)
		require.NoError(t, err)
		require.NotNil(t, row)
		assert.Len(t, row["tags"], 2)

		row, err = db.SelectOne("books", "title", "Missing").Execute(ctx)
		require.NoError(t, err)
		assert.Nil(t, row)
	})

	t.Run("transaction rollback", func(t *testing.T) {
		errAbort := errors.New("abort")
		err := db.RunInTx(ctx, func(tx *builder.Tx) error {
			n, err := tx.Update("books", map[string]any{"title": "Dune Messiah"}).
				Where(filter.Eq("author.name", "Frank Herbert")).
				Execute(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)
			return errAbort
		})
		require.ErrorIs(t, err, errAbort)

		n, err := db.Count("books").Where(filter.Eq("title", "Dune")).Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("writes with nested filters", func(t *testing.T) {
		n, err := db.Update("books", map[string]any{"title": "Guards Guards"}).
			Where(filter.AllOf(
				filter.Eq("author.name", "Terry Pratchett"),
				filter.Ne("title", "Small Gods"),
			)).
			Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = db.Delete("books").Where(filter.Eq("tags.name", "scifi")).Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = db.LinkManyToMany("books", "tags", f.books["The Hobbit"], f.tags["scifi"]).Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = db.UnlinkManyToMany("books", "tags", f.books["The Hobbit"], f.tags["fantasy"], f.tags["scifi"]).Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		row, err := db.SelectOne("books", "id", f.books["The Hobbit"]).With("tags").Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"classic"}, names(row["tags"].([]builder.Row)))
	})
}
