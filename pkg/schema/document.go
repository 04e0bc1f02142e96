package schema

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Document is the file form of a schema, used when entity metadata comes from
// configuration instead of Go structs.
//
//	entities:
//	  - name: book
//	    primaryKey: [id]
//	    columns: [id, title, author_id]
//	    relationships:
//	      - name: author
//	        type: manyToOne
//	        target: author
//	        foreignKey: author_id
type Document struct {
	Entities []EntityDocument `yaml:"entities" toml:"entities"`
}

// EntityDocument describes one entity of a Document.
type EntityDocument struct {
	Name          string                 `yaml:"name" toml:"name"`
	PrimaryKey    []string               `yaml:"primaryKey" toml:"primaryKey"`
	Columns       []string               `yaml:"columns" toml:"columns"`
	Relationships []RelationshipDocument `yaml:"relationships" toml:"relationships"`
}

// RelationshipDocument describes one relationship of an EntityDocument.
type RelationshipDocument struct {
	Name           string `yaml:"name" toml:"name"`
	Type           string `yaml:"type" toml:"type"`
	Target         string `yaml:"target" toml:"target"`
	ForeignKey     string `yaml:"foreignKey" toml:"foreignKey"`
	SourceKey      string `yaml:"sourceKey" toml:"sourceKey"`
	TargetKey      string `yaml:"targetKey" toml:"targetKey"`
	Inverse        bool   `yaml:"inverse" toml:"inverse"`
	JoinTable      string `yaml:"joinTable" toml:"joinTable"`
	JoinForeignKey string `yaml:"joinForeignKey" toml:"joinForeignKey"`
	JoinReferences string `yaml:"joinReferences" toml:"joinReferences"`
	Strategy       string `yaml:"strategy" toml:"strategy"`
	Collection     *bool  `yaml:"collection" toml:"collection"`
}

// LoadDocument reads a YAML (.yaml, .yml) or TOML (.toml) schema file and
// returns its table metadata.
func LoadDocument(path string) ([]*TableMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	var doc *Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		doc, err = DecodeYAML(data)
	case ".toml":
		doc, err = DecodeTOML(data)
	default:
		return nil, fmt.Errorf("unsupported schema file extension %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	return doc.Tables()
}

// DecodeYAML decodes a YAML schema document. Unknown fields are rejected.
func DecodeYAML(data []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode YAML schema: %w", err)
	}
	return &doc, nil
}

// DecodeTOML decodes a TOML schema document. Unknown fields are rejected.
func DecodeTOML(data []byte) (*Document, error) {
	var doc Document
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode TOML schema: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown TOML schema keys: %v", undecoded)
	}
	return &doc, nil
}

// Tables converts the document into validated table metadata.
func (d *Document) Tables() ([]*TableMetadata, error) {
	tables := make([]*TableMetadata, 0, len(d.Entities))
	seen := make(map[string]bool, len(d.Entities))

	for _, entity := range d.Entities {
		if entity.Name == "" {
			return nil, fmt.Errorf("entity without a name")
		}
		if seen[entity.Name] {
			return nil, fmt.Errorf("entity %s declared twice", entity.Name)
		}
		seen[entity.Name] = true

		table := &TableMetadata{Name: entity.Name}
		for i, col := range entity.Columns {
			table.Columns = append(table.Columns, ColumnMetadata{Name: col, Position: i, Nullable: true})
		}
		if len(entity.PrimaryKey) > 0 {
			table.PrimaryKey = &PrimaryKeyMetadata{
				Name:    entity.Name + "_pkey",
				Columns: entity.PrimaryKey,
			}
			for _, pk := range entity.PrimaryKey {
				if col := table.GetColumn(pk); col != nil {
					col.Nullable = false
				}
			}
		}

		for _, r := range entity.Relationships {
			rel := RelationshipMetadata{
				Name:           r.Name,
				Type:           RelationType(r.Type),
				SourceTable:    entity.Name,
				TargetTable:    r.Target,
				ForeignKey:     r.ForeignKey,
				SourceKey:      r.SourceKey,
				TargetKey:      r.TargetKey,
				Inverse:        r.Inverse,
				JoinTable:      r.JoinTable,
				JoinForeignKey: r.JoinForeignKey,
				JoinReferences: r.JoinReferences,
				Strategy:       r.Strategy,
				Collection:     declaredCollection(r),
			}
			if err := rel.Validate(); err != nil {
				return nil, fmt.Errorf("entity %s: %w", entity.Name, err)
			}
			table.Relationships = append(table.Relationships, rel)
		}

		tables = append(tables, table)
	}

	return tables, nil
}

func declaredCollection(r RelationshipDocument) bool {
	if r.Collection != nil {
		return *r.Collection
	}
	return RelationType(r.Type).ToMany()
}
