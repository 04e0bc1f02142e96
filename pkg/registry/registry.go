// Package registry provides a central schema registry for table metadata.
//
// Metadata comes either from Go structs with `po` tags or directly from
// schema documents; relationship targets are resolved through the same
// registry.
package registry

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/marshallshelly/pebble-relations/pkg/runtime"
	"github.com/marshallshelly/pebble-relations/pkg/schema"
)

// Registry is a thread-safe registry for table metadata.
type Registry struct {
	mu     sync.RWMutex
	parser *schema.Parser
	byType map[reflect.Type]*schema.TableMetadata
	byName map[string]*schema.TableMetadata
}

// NewRegistry creates a new Registry instance.
func NewRegistry() *Registry {
	return &Registry{
		parser: schema.NewParser(),
		byType: make(map[reflect.Type]*schema.TableMetadata),
		byName: make(map[string]*schema.TableMetadata),
	}
}

func structType(model any) (reflect.Type, error) {
	t := reflect.TypeOf(model)
	if t == nil {
		return nil, errors.New("model must be a struct, got nil")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("model must be a struct, got %s", t.Kind())
	}
	return t, nil
}

// Register parses each model's struct tags and registers the result.
// Registering a model twice is a no-op.
func (r *Registry) Register(models ...any) error {
	for _, model := range models {
		if _, err := r.register(model); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) register(model any) (*schema.TableMetadata, error) {
	t, err := structType(model)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if table, ok := r.byType[t]; ok {
		return table, nil
	}

	table, err := r.parser.Parse(t)
	if err != nil {
		return nil, fmt.Errorf("failed to parse model %s: %w", t.Name(), err)
	}
	if existing, ok := r.byName[table.Name]; ok && existing.GoType != nil && existing.GoType != t {
		return nil, fmt.Errorf("entity %s is already registered by %s", table.Name, existing.GoType)
	}

	r.byType[t] = table
	r.byName[table.Name] = table
	return table, nil
}

// RegisterMetadata registers table metadata directly without requiring a Go
// type. The first registration of a name wins.
func (r *Registry) RegisterMetadata(table *schema.TableMetadata) error {
	if table == nil || table.Name == "" {
		return errors.New("table metadata requires a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[table.Name]; ok {
		return nil
	}
	if table.GoType != nil {
		r.byType[table.GoType] = table
	}
	r.byName[table.Name] = table
	return nil
}

// RegisterTables registers metadata built outside the struct parser,
// e.g. from a schema document.
func (r *Registry) RegisterTables(tables []*schema.TableMetadata) error {
	for _, table := range tables {
		if err := r.RegisterMetadata(table); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves TableMetadata by Go type.
func (r *Registry) Get(modelType reflect.Type) (*schema.TableMetadata, error) {
	for modelType.Kind() == reflect.Pointer {
		modelType = modelType.Elem()
	}

	r.mu.RLock()
	table, ok := r.byType[modelType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("model type %s: %w", modelType.Name(), runtime.ErrUnknownEntity)
	}
	return table, nil
}

// GetByName retrieves TableMetadata by entity (table) name.
func (r *Registry) GetByName(name string) (*schema.TableMetadata, error) {
	r.mu.RLock()
	table, ok := r.byName[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("entity %s: %w", name, runtime.ErrUnknownEntity)
	}
	return table, nil
}

// GetOrRegister retrieves TableMetadata or registers it if not found.
func (r *Registry) GetOrRegister(model any) (*schema.TableMetadata, error) {
	t, err := structType(model)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	table, ok := r.byType[t]
	r.mu.RUnlock()
	if ok {
		return table, nil
	}
	return r.register(model)
}

// Target returns the metadata of a relationship's target entity. The target Go
// type is preferred when known, falling back to the target table name.
func (r *Registry) Target(rel *schema.RelationshipMetadata) (*schema.TableMetadata, error) {
	if rel.TargetType != nil {
		table, err := r.GetOrRegister(reflect.New(rel.TargetType).Elem().Interface())
		if err != nil {
			return nil, fmt.Errorf("target %s of relationship %s: %w", rel.TargetType.Name(), rel.Name, err)
		}
		return table, nil
	}

	table, err := r.GetByName(rel.TargetTable)
	if err != nil {
		return nil, fmt.Errorf("target of relationship %s: %w", rel.Name, err)
	}
	return table, nil
}

// Validate checks that every relationship of every entity points to a
// registered target and that its keys resolve. Custom relationships without a
// target table are skipped.
func (r *Registry) Validate() error {
	var errs []error
	for _, table := range r.All() {
		for i := range table.Relationships {
			rel := &table.Relationships[i]
			if rel.Type == schema.Custom && rel.TargetTable == "" {
				continue
			}
			target, err := r.Target(rel)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", table.Name, err))
				continue
			}
			if _, err := rel.Keys(table, target); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", table.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// All returns all registered table metadata ordered by name.
func (r *Registry) All() []*schema.TableMetadata {
	r.mu.RLock()
	tables := make([]*schema.TableMetadata, 0, len(r.byName))
	for _, table := range r.byName {
		tables = append(tables, table)
	}
	r.mu.RUnlock()

	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	return tables
}

// Names returns all registered entity names in order.
func (r *Registry) Names() []string {
	tables := r.All()
	names := make([]string, len(tables))
	for i, table := range tables {
		names[i] = table.Name
	}
	return names
}

// globalRegistry is the default global registry instance.
var globalRegistry = NewRegistry()

// Default returns the global registry.
func Default() *Registry {
	return globalRegistry
}

// Register registers models in the global registry.
func Register(models ...any) error {
	return globalRegistry.Register(models...)
}

// Get retrieves TableMetadata from the global registry.
func Get(modelType reflect.Type) (*schema.TableMetadata, error) {
	return globalRegistry.Get(modelType)
}
