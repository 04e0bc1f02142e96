package schema

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

const (
	// StructTagKey is the key used in struct tags (e.g., `po:"..."`).
	StructTagKey = "po"
)

// Tabler lets a model choose its own table name.
type Tabler interface {
	TableName() string
}

// Parser parses struct definitions to extract table metadata.
type Parser struct {
	mu    sync.Mutex
	cache map[reflect.Type]*TableMetadata
}

// NewParser creates a new Parser instance.
func NewParser() *Parser {
	return &Parser{
		cache: make(map[reflect.Type]*TableMetadata),
	}
}

var (
	tableNamesMu     sync.RWMutex
	customTableNames = make(map[string]string) // Struct name → table name
)

// RegisterTableName registers a custom table name for a struct type.
func RegisterTableName(structName, tableName string) {
	tableNamesMu.Lock()
	defer tableNamesMu.Unlock()
	customTableNames[structName] = tableName
}

// Parse extracts TableMetadata from a Go struct type.
func (p *Parser) Parse(modelType reflect.Type) (*TableMetadata, error) {
	for modelType.Kind() == reflect.Pointer {
		modelType = modelType.Elem()
	}
	if modelType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("model must be a struct, got %s", modelType.Kind())
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if cached, ok := p.cache[modelType]; ok {
		return cached, nil
	}

	table := &TableMetadata{
		Name:    TableNameOf(modelType),
		GoType:  modelType,
		Columns: make([]ColumnMetadata, 0),
	}

	for i := 0; i < modelType.NumField(); i++ {
		field := modelType.Field(i)
		if !field.IsExported() {
			continue
		}

		tagValue := field.Tag.Get(StructTagKey)
		if tagValue == "" || tagValue == "-" {
			continue
		}

		tagOpts, err := parseTag(tagValue)
		if err != nil {
			return nil, fmt.Errorf("failed to parse tag for field %s: %w", field.Name, err)
		}

		if tagOpts.isRelationship() {
			continue
		}

		column := ColumnMetadata{
			Name:     tagOpts.Name,
			GoField:  field.Name,
			GoType:   field.Type,
			SQLType:  tagOpts.GetSQLType(),
			Nullable: !tagOpts.Has("notNull") && !tagOpts.Has("primaryKey"),
			Position: i,
		}
		if column.Name == "" {
			column.Name = toSnakeCase(field.Name)
		}

		if tagOpts.Has("primaryKey") {
			if table.PrimaryKey == nil {
				table.PrimaryKey = &PrimaryKeyMetadata{
					Columns: []string{column.Name},
					Name:    table.Name + "_pkey",
				}
			} else {
				table.PrimaryKey.Columns = append(table.PrimaryKey.Columns, column.Name)
			}
		}

		table.Columns = append(table.Columns, column)
	}

	if err := p.parseRelationships(modelType, table); err != nil {
		return nil, fmt.Errorf("failed to parse relationships: %w", err)
	}

	p.cache[modelType] = table
	return table, nil
}

// TableNameOf returns the table name of a struct type. Registered names win,
// then the Tabler interface, then the snake_case struct name.
func TableNameOf(modelType reflect.Type) string {
	for modelType.Kind() == reflect.Pointer {
		modelType = modelType.Elem()
	}
	structName := modelType.Name()

	tableNamesMu.RLock()
	name, ok := customTableNames[structName]
	tableNamesMu.RUnlock()
	if ok {
		return name
	}

	if tabler, ok := reflect.New(modelType).Interface().(Tabler); ok {
		if name := tabler.TableName(); name != "" {
			return name
		}
	}

	return toSnakeCase(structName)
}

// parseRelationships extracts relationship metadata from struct fields.
func (p *Parser) parseRelationships(modelType reflect.Type, table *TableMetadata) error {
	for i := 0; i < modelType.NumField(); i++ {
		field := modelType.Field(i)
		if !field.IsExported() {
			continue
		}

		tagValue := field.Tag.Get(StructTagKey)
		if tagValue == "" {
			continue
		}

		tagOpts, err := parseTag(tagValue)
		if err != nil || !tagOpts.isRelationship() {
			continue
		}

		rel, err := parseRelationship(field, tagOpts, table)
		if err != nil {
			return fmt.Errorf("failed to parse relationship for field %s: %w", field.Name, err)
		}
		table.Relationships = append(table.Relationships, *rel)
	}
	return nil
}

// parseRelationship parses a relationship from a struct field.
func parseRelationship(field reflect.StructField, opts *TagOptions, source *TableMetadata) (*RelationshipMetadata, error) {
	rel := &RelationshipMetadata{
		Name:        opts.Name,
		SourceTable: source.Name,
		SourceField: field.Name,
	}
	if rel.Name == "" || rel.Name == "-" {
		rel.Name = toSnakeCase(field.Name)
	}

	switch {
	case opts.Has("belongsTo"), opts.Has("manyToOne"):
		rel.Type = ManyToOne
	case opts.Has("hasOne"):
		rel.Type = OneToOne
		rel.Inverse = true
	case opts.Has("oneToOne"):
		rel.Type = OneToOne
	case opts.Has("hasMany"), opts.Has("oneToMany"):
		rel.Type = OneToMany
	case opts.Has("manyToMany"):
		rel.Type = ManyToMany
	case opts.Has("custom"):
		rel.Type = Custom
		rel.Strategy = opts.Get("custom")
		if rel.Strategy == "" {
			return nil, fmt.Errorf("custom relationship requires a strategy name: custom(name)")
		}
	default:
		return nil, fmt.Errorf("unknown relationship type")
	}

	fieldType := field.Type
	if fieldType.Kind() == reflect.Slice {
		rel.Collection = true
		fieldType = fieldType.Elem()
	}
	for fieldType.Kind() == reflect.Pointer {
		fieldType = fieldType.Elem()
	}
	if fieldType.Kind() == reflect.Struct {
		rel.TargetType = fieldType
		rel.TargetTable = TableNameOf(fieldType)
	}
	if target := opts.Get("target"); target != "" {
		rel.TargetTable = target
	}

	rel.ForeignKey = opts.Get("foreignKey")
	rel.SourceKey = opts.Get("sourceKey")
	rel.TargetKey = opts.Get("targetKey")

	// references() names the referenced (primary key) side.
	if references := opts.Get("references"); references != "" {
		switch {
		case rel.Type == ManyToOne, rel.Type == OneToOne && !rel.Inverse:
			if rel.TargetKey == "" {
				rel.TargetKey = references
			}
		default:
			if rel.SourceKey == "" {
				rel.SourceKey = references
			}
		}
	}

	sourceName := source.Name
	if source.GoType != nil {
		sourceName = toSnakeCase(source.GoType.Name())
	}
	targetName := rel.TargetTable
	if rel.TargetType != nil {
		targetName = toSnakeCase(rel.TargetType.Name())
	}

	if rel.ForeignKey == "" {
		switch {
		case rel.Type == ManyToOne, rel.Type == OneToOne && !rel.Inverse:
			rel.ForeignKey = toSnakeCase(field.Name) + "_id"
		case rel.Type == OneToMany, rel.Type == OneToOne && rel.Inverse:
			rel.ForeignKey = sourceName + "_id"
		}
	}

	if rel.Type == ManyToMany {
		rel.JoinTable = opts.Get("joinTable")
		if rel.JoinTable == "" {
			rel.JoinTable = generateJunctionTableName(source.Name, rel.TargetTable)
		}
		rel.JoinForeignKey = opts.Get("joinForeignKey")
		if rel.JoinForeignKey == "" {
			rel.JoinForeignKey = sourceName + "_id"
		}
		rel.JoinReferences = opts.Get("joinReferences")
		if rel.JoinReferences == "" {
			rel.JoinReferences = targetName + "_id"
		}
	}

	if err := rel.Validate(); err != nil {
		return nil, err
	}
	return rel, nil
}

// TagOptions represents parsed tag options.
type TagOptions struct {
	Name    string            // Column name (first element)
	Options map[string]string // Other options
}

// parseTag parses a struct tag value into TagOptions.
// Format: "column_name,option1,option2(value),option3"
func parseTag(tag string) (*TagOptions, error) {
	parts := splitTag(tag)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty tag value")
	}
	opts := &TagOptions{
		Name:    parts[0],
		Options: make(map[string]string),
	}
	for i := 1; i < len(parts); i++ {
		opt := parts[i]
		// option(value) or option:value
		if idx := strings.Index(opt, "("); idx != -1 {
			if !strings.HasSuffix(opt, ")") {
				return nil, fmt.Errorf("invalid option format: %s", opt)
			}
			opts.Options[opt[:idx]] = opt[idx+1 : len(opt)-1]
		} else if idx := strings.Index(opt, ":"); idx != -1 {
			opts.Options[opt[:idx]] = opt[idx+1:]
		} else {
			opts.Options[opt] = ""
		}
	}
	return opts, nil
}

// Has checks if an option exists.
func (t *TagOptions) Has(key string) bool {
	_, ok := t.Options[key]
	return ok
}

// Get returns the value of an option.
func (t *TagOptions) Get(key string) string {
	return t.Options[key]
}

func (t *TagOptions) isRelationship() bool {
	for _, key := range []string{"belongsTo", "manyToOne", "hasOne", "oneToOne", "hasMany", "oneToMany", "manyToMany", "custom"} {
		if t.Has(key) {
			return true
		}
	}
	return false
}

// GetSQLType returns the SQL type from tag options.
func (t *TagOptions) GetSQLType() string {
	pgTypes := []string{
		"uuid", "varchar", "text", "char",
		"smallint", "integer", "bigint", "serial", "bigserial",
		"numeric", "decimal", "real", "double precision",
		"boolean", "bool",
		"date", "time", "timestamp", "timestamptz",
		"json", "jsonb", "bytea",
	}
	for _, pgType := range pgTypes {
		if t.Has(pgType) {
			if value := t.Get(pgType); value != "" {
				return fmt.Sprintf("%s(%s)", pgType, value)
			}
			return pgType
		}
	}
	return ""
}

// splitTag splits a tag value by commas, handling nested parentheses.
func splitTag(tag string) []string {
	var parts []string
	var current strings.Builder
	depth := 0
	for _, ch := range tag {
		switch ch {
		case '(':
			depth++
			current.WriteRune(ch)
		case ')':
			depth--
			current.WriteRune(ch)
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(current.String()))
				current.Reset()
			} else {
				current.WriteRune(ch)
			}
		default:
			current.WriteRune(ch)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, strings.TrimSpace(current.String()))
	}
	return parts
}

// toSnakeCase converts a string from PascalCase to snake_case.
// Runs of capitals are kept together ("AuthorID" -> "author_id").
func toSnakeCase(s string) string {
	runes := []rune(s)
	var result strings.Builder
	for i, ch := range runes {
		if i > 0 && ch >= 'A' && ch <= 'Z' {
			prevUpper := runes[i-1] >= 'A' && runes[i-1] <= 'Z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if !prevUpper || nextLower {
				result.WriteRune('_')
			}
		}
		result.WriteRune(ch)
	}
	return strings.ToLower(result.String())
}
