package schema

import (
	"errors"
	"testing"

	"github.com/marshallshelly/pebble-relations/pkg/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func table(name string, pk ...string) *TableMetadata {
	t := &TableMetadata{Name: name}
	if len(pk) > 0 {
		t.PrimaryKey = &PrimaryKeyMetadata{Name: name + "_pkey", Columns: pk}
	}
	return t
}

func TestRelationshipKeys(t *testing.T) {
	book := table("book", "id")
	author := table("author", "author_no")

	tests := []struct {
		name string
		rel  RelationshipMetadata
		want KeyPair
	}{
		{
			name: "many to one derives target primary key",
			rel:  RelationshipMetadata{Name: "author", Type: ManyToOne, ForeignKey: "author_id"},
			want: KeyPair{Source: "author_id", Target: "author_no"},
		},
		{
			name: "many to one target override wins",
			rel:  RelationshipMetadata{Name: "author", Type: ManyToOne, ForeignKey: "author_id", TargetKey: "legacy_id"},
			want: KeyPair{Source: "author_id", Target: "legacy_id"},
		},
		{
			name: "many to one source override wins",
			rel:  RelationshipMetadata{Name: "author", Type: ManyToOne, ForeignKey: "author_id", SourceKey: "writer_id"},
			want: KeyPair{Source: "writer_id", Target: "author_no"},
		},
		{
			name: "owning one to one",
			rel:  RelationshipMetadata{Name: "author", Type: OneToOne, ForeignKey: "author_id"},
			want: KeyPair{Source: "author_id", Target: "author_no"},
		},
		{
			name: "inverse one to one",
			rel:  RelationshipMetadata{Name: "author", Type: OneToOne, ForeignKey: "book_id", Inverse: true},
			want: KeyPair{Source: "id", Target: "book_id"},
		},
		{
			name: "one to many",
			rel:  RelationshipMetadata{Name: "authors", Type: OneToMany, ForeignKey: "book_id"},
			want: KeyPair{Source: "id", Target: "book_id"},
		},
		{
			name: "many to many",
			rel:  RelationshipMetadata{Name: "authors", Type: ManyToMany, JoinTable: "book_author", JoinForeignKey: "book_id", JoinReferences: "author_id"},
			want: KeyPair{Source: "id", Target: "author_no"},
		},
		{
			name: "custom",
			rel:  RelationshipMetadata{Name: "authors", Type: Custom, Strategy: "x", TargetKey: "ref"},
			want: KeyPair{Source: "id", Target: "ref"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.rel.Keys(book, author)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRelationshipKeys_NoPrimaryKey(t *testing.T) {
	rel := RelationshipMetadata{Name: "author", Type: ManyToOne, ForeignKey: "author_id"}
	_, err := rel.Keys(table("book", "id"), table("author"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, runtime.ErrNoPrimaryKey))
}

func TestRelationshipValidate(t *testing.T) {
	tests := []struct {
		name    string
		rel     RelationshipMetadata
		wantErr bool
	}{
		{"valid many to one", RelationshipMetadata{Type: ManyToOne, TargetTable: "a", ForeignKey: "a_id"}, false},
		{"missing foreign key", RelationshipMetadata{Type: OneToMany, TargetTable: "a"}, true},
		{"unknown type", RelationshipMetadata{Type: "weird", TargetTable: "a"}, true},
		{"join table on one to many", RelationshipMetadata{Type: OneToMany, TargetTable: "a", ForeignKey: "x", JoinTable: "j"}, true},
		{"many to many without join keys", RelationshipMetadata{Type: ManyToMany, TargetTable: "a", JoinTable: "j"}, true},
		{"strategy on non custom", RelationshipMetadata{Type: ManyToOne, TargetTable: "a", ForeignKey: "a_id", Strategy: "s"}, true},
		{"custom without strategy", RelationshipMetadata{Type: Custom}, true},
		{"custom", RelationshipMetadata{Type: Custom, Strategy: "s"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rel.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPrimaryKeyColumn_Composite(t *testing.T) {
	_, err := table("book_tag", "book_id", "tag_id").PrimaryKeyColumn()
	assert.Error(t, err)
}

func TestColumnName(t *testing.T) {
	tbl := &TableMetadata{
		Name: "book",
		Columns: []ColumnMetadata{
			{Name: "author_id", GoField: "AuthorID"},
		},
	}
	assert.Equal(t, "author_id", tbl.ColumnName("author_id"))
	assert.Equal(t, "author_id", tbl.ColumnName("AuthorID"))
	assert.Equal(t, "unknown", tbl.ColumnName("unknown"))
}
