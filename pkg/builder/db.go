package builder

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/marshallshelly/pebble-relations/pkg/filter"
	"github.com/marshallshelly/pebble-relations/pkg/registry"
	"github.com/marshallshelly/pebble-relations/pkg/schema"
)

// DB is the relationship-aware query adapter. It builds commands against the
// entities of its registry and runs them on a Querier.
type DB struct {
	db          Querier
	registry    *registry.Registry
	strategies  map[string]Strategy
	logger      zerolog.Logger
	concurrency int
	joinOptions JoinOptions

	resolver *Resolver
	loader   *Loader
}

// Option configures a DB.
type Option func(*DB)

// WithRegistry sets the entity registry. Defaults to registry.Default().
func WithRegistry(reg *registry.Registry) Option {
	return func(d *DB) { d.registry = reg }
}

// WithLogger sets the logger. Defaults to a disabled logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *DB) { d.logger = logger }
}

// WithConcurrency sets how many associations of one command load in
// parallel. Only use values above 1 with a pooled Querier.
func WithConcurrency(n int) Option {
	return func(d *DB) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithStrategy registers a custom relationship strategy under name.
func WithStrategy(name string, s Strategy) Option {
	return func(d *DB) { d.strategies[name] = s }
}

// WithIsolatedOrGroups resolves the joins of each OR branch in its own alias
// scope with LEFT JOIN.
func WithIsolatedOrGroups() Option {
	return func(d *DB) { d.joinOptions.IsolateOrGroups = true }
}

// New creates a new adapter over q.
func New(q Querier, opts ...Option) *DB {
	d := &DB{
		db:          q,
		registry:    registry.Default(),
		strategies:  make(map[string]Strategy),
		logger:      zerolog.Nop(),
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.resolver = NewResolver(d.registry, d.strategies, d.joinOptions)
	d.loader = NewLoader(q, d.registry, d.resolver, d.strategies, d.logger)
	return d
}

// withQuerier returns a copy of d running on q.
func (d *DB) withQuerier(q Querier, concurrency int) *DB {
	c := *d
	c.db = q
	c.concurrency = concurrency
	c.loader = NewLoader(q, d.registry, d.resolver, d.strategies, d.logger)
	return &c
}

// Registry returns the entity registry.
func (d *DB) Registry() *registry.Registry {
	return d.registry
}

// Querier returns the underlying Querier.
func (d *DB) Querier() Querier {
	return d.db
}

// Logger returns the adapter's logger.
func (d *DB) Logger() zerolog.Logger {
	return d.logger
}

// Table returns the metadata of a registered entity.
func (d *DB) Table(name string) (*schema.TableMetadata, error) {
	return d.registry.GetByName(name)
}

// TableOf registers T if needed and returns its table name.
func TableOf[T any](d *DB) (string, error) {
	var model T
	table, err := d.registry.GetOrRegister(model)
	if err != nil {
		return "", err
	}
	return table.Name, nil
}

// ResolveJoins rewrites the relationship paths of node against table.
func (d *DB) ResolveJoins(table string, node filter.Node) (filter.Node, []Join, error) {
	meta, err := d.Table(table)
	if err != nil {
		return nil, nil, err
	}
	return d.resolver.ResolveJoins(meta, node)
}

// TranslateFilter resolves the joins of node and translates it into WHERE
// conditions for table.
func (d *DB) TranslateFilter(table string, node filter.Node) ([]Condition, []Join, error) {
	meta, err := d.Table(table)
	if err != nil {
		return nil, nil, err
	}
	return d.translate(meta, node)
}

func (d *DB) translate(table *schema.TableMetadata, node filter.Node) ([]Condition, []Join, error) {
	if filter.IsEmpty(node) {
		return nil, nil, nil
	}
	resolved, joins, err := d.resolver.ResolveJoins(table, node)
	if err != nil {
		return nil, nil, err
	}
	conds, nativeJoins, err := Translate(table, resolved)
	if err != nil {
		return nil, nil, err
	}
	return conds, mergeJoins(joins, nativeJoins), nil
}

// LoadAssociation batch-loads property of table for keys.
func (d *DB) LoadAssociation(ctx context.Context, table, property string, keys []any, req AssociationRequest) (AssociationMap, error) {
	meta, err := d.Table(table)
	if err != nil {
		return nil, err
	}
	return d.loader.Load(ctx, meta, property, keys, req)
}
