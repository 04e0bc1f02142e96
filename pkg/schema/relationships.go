package schema

import (
	"fmt"
	"reflect"
)

// RelationType is the kind of a relationship.
type RelationType string

const (
	// OneToOne links one source row to at most one target row.
	OneToOne RelationType = "oneToOne"
	// OneToMany links one source row to many target rows referencing it.
	OneToMany RelationType = "oneToMany"
	// ManyToOne links many source rows to the target row they reference.
	ManyToOne RelationType = "manyToOne"
	// ManyToMany links rows of both sides through a join table.
	ManyToMany RelationType = "manyToMany"
	// Custom delegates loading and nested filtering to a named strategy.
	Custom RelationType = "custom"
)

// Valid reports whether the relation type is known.
func (r RelationType) Valid() bool {
	switch r {
	case OneToOne, OneToMany, ManyToOne, ManyToMany, Custom:
		return true
	}
	return false
}

// ToMany reports whether one source row may relate to several target rows.
func (r RelationType) ToMany() bool {
	return r == OneToMany || r == ManyToMany
}

// RelationshipMetadata describes how rows of SourceTable relate to rows of
// TargetTable.
//
// ForeignKey is the referencing column. It lives on the source table for
// ManyToOne and owning OneToOne relationships, and on the target table for
// OneToMany and inverse OneToOne relationships. SourceKey and TargetKey are
// explicit overrides; when empty the primary key of the corresponding side is
// used.
type RelationshipMetadata struct {
	Name        string
	Type        RelationType
	SourceTable string
	SourceField string
	TargetTable string
	TargetType  reflect.Type
	ForeignKey  string
	SourceKey   string
	TargetKey   string

	// Inverse marks a OneToOne whose foreign key lives on the target table.
	Inverse bool

	// ManyToMany only.
	JoinTable      string
	JoinForeignKey string
	JoinReferences string

	// Custom only.
	Strategy string

	// Collection reports whether the declared property holds a list.
	Collection bool
}

// KeyPair is the resolved (source key, target key) pair of a relationship.
type KeyPair struct {
	Source string
	Target string
}

// Validate checks that the descriptor is consistent with its type.
func (r *RelationshipMetadata) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("relationship %s: unknown type %q", r.Name, r.Type)
	}
	if r.TargetTable == "" && r.Type != Custom {
		return fmt.Errorf("relationship %s: target table is required", r.Name)
	}

	if r.Type == ManyToMany {
		if r.JoinTable == "" || r.JoinForeignKey == "" || r.JoinReferences == "" {
			return fmt.Errorf("relationship %s: manyToMany requires joinTable, joinForeignKey and joinReferences", r.Name)
		}
	} else if r.JoinTable != "" {
		return fmt.Errorf("relationship %s: join table is only valid for manyToMany", r.Name)
	}

	if (r.Type == Custom) != (r.Strategy != "") {
		return fmt.Errorf("relationship %s: strategy must be set iff type is custom", r.Name)
	}

	switch r.Type {
	case ManyToOne, OneToMany, OneToOne:
		if r.ForeignKey == "" {
			return fmt.Errorf("relationship %s: foreign key is required for %s", r.Name, r.Type)
		}
	}
	return nil
}

// Keys resolves the (source key, target key) pair. An explicit SourceKey or
// TargetKey always wins; otherwise the referencing side uses ForeignKey and the
// referenced side uses its table's primary key.
func (r *RelationshipMetadata) Keys(source, target *TableMetadata) (KeyPair, error) {
	var pair KeyPair
	var err error

	switch r.Type {
	case ManyToOne:
		pair.Source = r.ForeignKey
		pair.Target, err = keyOrPrimary(r.TargetKey, target)
	case OneToOne:
		if r.Inverse {
			pair.Source, err = keyOrPrimary(r.SourceKey, source)
			pair.Target = r.ForeignKey
		} else {
			pair.Source = r.ForeignKey
			pair.Target, err = keyOrPrimary(r.TargetKey, target)
		}
	case OneToMany:
		pair.Source, err = keyOrPrimary(r.SourceKey, source)
		pair.Target = r.ForeignKey
	case ManyToMany:
		pair.Source, err = keyOrPrimary(r.SourceKey, source)
		if err == nil {
			pair.Target, err = keyOrPrimary(r.TargetKey, target)
		}
	case Custom:
		pair.Source, err = keyOrPrimary(r.SourceKey, source)
		pair.Target = r.TargetKey
	default:
		return pair, fmt.Errorf("relationship %s: unknown type %q", r.Name, r.Type)
	}
	if err != nil {
		return pair, fmt.Errorf("relationship %s: %w", r.Name, err)
	}

	// Explicit overrides on the referencing side.
	if r.SourceKey != "" {
		pair.Source = r.SourceKey
	}
	if r.TargetKey != "" && r.Type != Custom {
		pair.Target = r.TargetKey
	}

	if pair.Source == "" {
		return pair, fmt.Errorf("relationship %s: source key could not be resolved", r.Name)
	}
	return pair, nil
}

func keyOrPrimary(override string, table *TableMetadata) (string, error) {
	if override != "" {
		return override, nil
	}
	if table == nil {
		return "", fmt.Errorf("table metadata not available")
	}
	return table.PrimaryKeyColumn()
}

// GetRelationship returns a relationship by property name or Go field name.
func (t *TableMetadata) GetRelationship(name string) *RelationshipMetadata {
	for i := range t.Relationships {
		if t.Relationships[i].Name == name || t.Relationships[i].SourceField == name {
			return &t.Relationships[i]
		}
	}
	return nil
}

// GetRelationshipsByType returns all relationships of a specific type.
func (t *TableMetadata) GetRelationshipsByType(relType RelationType) []RelationshipMetadata {
	var result []RelationshipMetadata
	for _, rel := range t.Relationships {
		if rel.Type == relType {
			result = append(result, rel)
		}
	}
	return result
}

// HasRelationships checks if the table has any relationships.
func (t *TableMetadata) HasRelationships() bool {
	return len(t.Relationships) > 0
}

// generateJunctionTableName generates a junction table name from two table names.
func generateJunctionTableName(table1, table2 string) string {
	// Sort alphabetically for consistency
	if table1 > table2 {
		table1, table2 = table2, table1
	}
	return table1 + "_" + table2
}
