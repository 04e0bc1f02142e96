// Package schema describes entities, their columns and their relationships.
package schema

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/marshallshelly/pebble-relations/pkg/runtime"
)

// TableMetadata describes a mapped entity.
type TableMetadata struct {
	Name          string
	GoType        reflect.Type
	Columns       []ColumnMetadata
	PrimaryKey    *PrimaryKeyMetadata
	Relationships []RelationshipMetadata
}

// ColumnMetadata describes a mapped column.
type ColumnMetadata struct {
	Name     string
	GoField  string
	GoType   reflect.Type
	SQLType  string
	Nullable bool
	Position int
}

// PrimaryKeyMetadata describes the primary key columns of a table.
type PrimaryKeyMetadata struct {
	Name    string
	Columns []string
}

// PrimaryKeyColumn returns the single primary key column of the table.
func (t *TableMetadata) PrimaryKeyColumn() (string, error) {
	if t.PrimaryKey == nil || len(t.PrimaryKey.Columns) == 0 {
		return "", fmt.Errorf("table %s: %w", t.Name, runtime.ErrNoPrimaryKey)
	}
	if len(t.PrimaryKey.Columns) > 1 {
		return "", fmt.Errorf("table %s has a composite primary key (%s)", t.Name, strings.Join(t.PrimaryKey.Columns, ", "))
	}
	return t.PrimaryKey.Columns[0], nil
}

// IsPrimaryKey checks if a column is part of the primary key.
func (t *TableMetadata) IsPrimaryKey(column string) bool {
	if t.PrimaryKey == nil {
		return false
	}
	for _, c := range t.PrimaryKey.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// GetColumn returns a column by name.
func (t *TableMetadata) GetColumn(name string) *ColumnMetadata {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// GetColumnByField returns a column by Go field name.
func (t *TableMetadata) GetColumnByField(goField string) *ColumnMetadata {
	for i := range t.Columns {
		if t.Columns[i].GoField == goField {
			return &t.Columns[i]
		}
	}
	return nil
}

// ColumnName maps a property name to its column. Column names win over Go
// field names; unknown properties are returned unchanged.
func (t *TableMetadata) ColumnName(property string) string {
	if col := t.GetColumn(property); col != nil {
		return col.Name
	}
	if col := t.GetColumnByField(property); col != nil {
		return col.Name
	}
	return property
}

// ColumnNames returns the names of all columns in declaration order.
func (t *TableMetadata) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}
