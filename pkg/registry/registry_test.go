package registry

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/marshallshelly/pebble-relations/pkg/runtime"
	"github.com/marshallshelly/pebble-relations/pkg/schema"
)

type Author struct {
	ID    int64  `po:"id,primaryKey,bigserial"`
	Name  string `po:"name,text,notNull"`
	Books []Book `po:"books,hasMany"`
}

type Book struct {
	ID       int64   `po:"id,primaryKey,bigserial"`
	Title    string  `po:"title,text,notNull"`
	AuthorID int64   `po:"author_id,bigint,notNull"`
	Author   *Author `po:"author,belongsTo"`
	Tags     []Tag   `po:"tags,manyToMany,joinTable(book_tag)"`
}

type Tag struct {
	ID   int64  `po:"id,primaryKey,bigserial"`
	Name string `po:"name,text,notNull"`
}

type Shelf struct {
	Label string `po:"label,text"`
}

type Pamphlet struct {
	ID int64 `po:"id,primaryKey"`
}

func (Pamphlet) TableName() string { return "book" }

func TestRegistry_Register(t *testing.T) {
	t.Run("register struct", func(t *testing.T) {
		registry := NewRegistry()
		if err := registry.Register(Author{}); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		if _, err := registry.Get(reflect.TypeOf(Author{})); err != nil {
			t.Errorf("expected Author to be registered: %v", err)
		}
	})

	t.Run("register several and twice", func(t *testing.T) {
		registry := NewRegistry()
		if err := registry.Register(Author{}, &Book{}, Tag{}); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		if err := registry.Register(Book{}); err != nil {
			t.Errorf("second Register should be a no-op: %v", err)
		}
		if got := registry.Names(); !reflect.DeepEqual(got, []string{"author", "book", "tag"}) {
			t.Errorf("unexpected names %v", got)
		}
	})

	t.Run("non struct", func(t *testing.T) {
		registry := NewRegistry()
		if err := registry.Register("not a struct"); err == nil {
			t.Error("expected error for string")
		}
		if err := registry.Register(nil); err == nil {
			t.Error("expected error for nil")
		}
	})

	t.Run("conflicting table name", func(t *testing.T) {
		registry := NewRegistry()
		if err := registry.Register(Book{}); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		err := registry.Register(Pamphlet{})
		if err == nil || !strings.Contains(err.Error(), "already registered") {
			t.Errorf("expected conflict error, got %v", err)
		}
	})
}

func TestRegistry_Lookup(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(Book{}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	table, err := registry.Get(reflect.TypeOf(&Book{}))
	if err != nil {
		t.Fatalf("Get with pointer type failed: %v", err)
	}
	if table.Name != "book" {
		t.Errorf("expected table name 'book', got '%s'", table.Name)
	}

	byName, err := registry.GetByName("book")
	if err != nil {
		t.Fatalf("GetByName failed: %v", err)
	}
	if byName != table {
		t.Error("expected the same metadata by type and by name")
	}

	_, err = registry.GetByName("publisher")
	if !errors.Is(err, runtime.ErrUnknownEntity) {
		t.Errorf("expected ErrUnknownEntity, got %v", err)
	}
	_, err = registry.Get(reflect.TypeOf(Shelf{}))
	if !errors.Is(err, runtime.ErrUnknownEntity) {
		t.Errorf("expected ErrUnknownEntity, got %v", err)
	}
}

func TestRegistry_GetOrRegister(t *testing.T) {
	registry := NewRegistry()

	first, err := registry.GetOrRegister(Tag{})
	if err != nil {
		t.Fatalf("GetOrRegister failed: %v", err)
	}
	second, err := registry.GetOrRegister(&Tag{})
	if err != nil {
		t.Fatalf("GetOrRegister failed: %v", err)
	}
	if first != second {
		t.Error("expected the cached metadata on the second call")
	}
}

func TestRegistry_Target(t *testing.T) {
	registry := NewRegistry()

	book, err := registry.GetOrRegister(Book{})
	if err != nil {
		t.Fatalf("GetOrRegister failed: %v", err)
	}

	t.Run("target by go type registers lazily", func(t *testing.T) {
		target, err := registry.Target(book.GetRelationship("author"))
		if err != nil {
			t.Fatalf("Target failed: %v", err)
		}
		if target.Name != "author" {
			t.Errorf("expected target 'author', got '%s'", target.Name)
		}
		if _, err := registry.GetByName("author"); err != nil {
			t.Error("expected target type to be registered")
		}
	})

	t.Run("target by table name", func(t *testing.T) {
		rel := &schema.RelationshipMetadata{Name: "editions", Type: schema.OneToMany, TargetTable: "edition", ForeignKey: "book_id"}
		if _, err := registry.Target(rel); !errors.Is(err, runtime.ErrUnknownEntity) {
			t.Fatalf("expected ErrUnknownEntity for unregistered target, got %v", err)
		}

		if err := registry.RegisterTables([]*schema.TableMetadata{{Name: "edition"}}); err != nil {
			t.Fatalf("RegisterTables failed: %v", err)
		}
		target, err := registry.Target(rel)
		if err != nil {
			t.Fatalf("Target failed: %v", err)
		}
		if target.Name != "edition" {
			t.Errorf("expected target 'edition', got '%s'", target.Name)
		}
	})
}

func TestRegistry_Validate(t *testing.T) {
	doc := []*schema.TableMetadata{
		{
			Name:       "loan",
			PrimaryKey: &schema.PrimaryKeyMetadata{Columns: []string{"id"}},
			Relationships: []schema.RelationshipMetadata{
				{Name: "member", Type: schema.ManyToOne, TargetTable: "member", ForeignKey: "member_id"},
				{Name: "notes", Type: schema.Custom, Strategy: "notes"},
			},
		},
	}

	registry := NewRegistry()
	if err := registry.RegisterTables(doc); err != nil {
		t.Fatalf("RegisterTables failed: %v", err)
	}
	if err := registry.Validate(); !errors.Is(err, runtime.ErrUnknownEntity) {
		t.Fatalf("expected missing target to fail validation, got %v", err)
	}

	// Without a primary key the manyToOne target key cannot resolve.
	if err := registry.RegisterMetadata(&schema.TableMetadata{Name: "member"}); err != nil {
		t.Fatalf("RegisterMetadata failed: %v", err)
	}
	if err := registry.Validate(); !errors.Is(err, runtime.ErrNoPrimaryKey) {
		t.Fatalf("expected ErrNoPrimaryKey, got %v", err)
	}

	ok := NewRegistry()
	if err := ok.Register(Author{}, Book{}, Tag{}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := ok.Validate(); err != nil {
		t.Errorf("expected a valid registry, got %v", err)
	}
}

func TestRegistry_RegisterMetadataRequiresName(t *testing.T) {
	registry := NewRegistry()
	if err := registry.RegisterMetadata(&schema.TableMetadata{}); err == nil {
		t.Error("expected error for unnamed metadata")
	}
	if err := registry.RegisterMetadata(nil); err == nil {
		t.Error("expected error for nil metadata")
	}
}

func TestGlobalRegistry(t *testing.T) {
	if err := Register(Tag{}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	table, err := Get(reflect.TypeOf(Tag{}))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if table.Name != "tag" {
		t.Errorf("expected table name 'tag', got '%s'", table.Name)
	}
	if Default().Names()[0] != "tag" {
		t.Errorf("expected tag in the default registry, got %v", Default().Names())
	}
}
