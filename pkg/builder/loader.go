package builder

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/marshallshelly/pebble-relations/pkg/filter"
	"github.com/marshallshelly/pebble-relations/pkg/registry"
	"github.com/marshallshelly/pebble-relations/pkg/runtime"
	"github.com/marshallshelly/pebble-relations/pkg/schema"
)

// AssociationRequest narrows what is loaded for one association.
type AssociationRequest struct {
	// Selection lists target columns; empty selects every column. The
	// stitching key is always added.
	Selection []string
	// Filter applies to target rows and may traverse the target's own
	// relationships.
	Filter filter.Node
}

// Loader batch-loads the related rows of a set of source keys.
type Loader struct {
	db         Querier
	registry   *registry.Registry
	resolver   *Resolver
	strategies map[string]Strategy
	logger     zerolog.Logger
}

// NewLoader creates a Loader.
func NewLoader(db Querier, reg *registry.Registry, resolver *Resolver, strategies map[string]Strategy, logger zerolog.Logger) *Loader {
	if strategies == nil {
		strategies = make(map[string]Strategy)
	}
	return &Loader{db: db, registry: reg, resolver: resolver, strategies: strategies, logger: logger}
}

// association is a resolved association request.
type association struct {
	property string
	rel      *schema.RelationshipMetadata
	target   *schema.TableMetadata
	keys     schema.KeyPair
	request  AssociationRequest
}

func (l *Loader) prepare(source *schema.TableMetadata, property string, req AssociationRequest) (*association, error) {
	rel := source.GetRelationship(property)
	if rel == nil {
		return nil, &runtime.UnknownPropertyError{Entity: source.Name, Property: property}
	}

	a := &association{property: rel.Name, rel: rel, request: req}
	switch rel.Type {
	case schema.OneToOne, schema.OneToMany, schema.ManyToOne, schema.ManyToMany:
		target, err := l.registry.Target(rel)
		if err != nil {
			return nil, err
		}
		a.target = target
	case schema.Custom:
		if _, ok := l.strategies[rel.Strategy]; !ok {
			return nil, &runtime.UnsupportedRelationshipError{Kind: string(rel.Type) + ":" + rel.Strategy, Property: rel.Name}
		}
		if rel.TargetTable != "" {
			target, err := l.registry.Target(rel)
			if err != nil {
				return nil, err
			}
			a.target = target
		}
	default:
		return nil, &runtime.UnsupportedRelationshipError{Kind: string(rel.Type), Property: rel.Name}
	}

	keys, err := rel.Keys(source, a.target)
	if err != nil {
		return nil, err
	}
	a.keys = keys
	return a, nil
}

// Load returns the related rows of property for every key in keys. Keys are
// normalized and deduplicated; an empty key set returns an empty map without
// touching the database.
func (l *Loader) Load(ctx context.Context, source *schema.TableMetadata, property string, keys []any, req AssociationRequest) (AssociationMap, error) {
	a, err := l.prepare(source, property, req)
	if err != nil {
		return nil, err
	}
	return l.load(ctx, source, a, keys)
}

func (l *Loader) load(ctx context.Context, source *schema.TableMetadata, a *association, keys []any) (AssociationMap, error) {
	keys = distinctKeys(keys)
	if len(keys) == 0 {
		return AssociationMap{}, nil
	}

	var (
		result AssociationMap
		err    error
	)
	switch a.rel.Type {
	case schema.OneToMany:
		result, err = l.loadMany(ctx, a, keys)
	case schema.ManyToOne, schema.OneToOne:
		result, err = l.loadOne(ctx, a, keys)
	case schema.ManyToMany:
		result, err = l.loadManyToMany(ctx, a, keys)
	case schema.Custom:
		result, err = l.loadCustom(ctx, source, a, keys)
	default:
		err = &runtime.UnsupportedRelationshipError{Kind: string(a.rel.Type), Property: a.rel.Name}
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s.%s: %w", source.Name, a.property, err)
	}

	l.logger.Debug().
		Str("entity", source.Name).
		Str("relationship", a.property).
		Str("kind", string(a.rel.Type)).
		Int("keys", len(keys)).
		Int("matched", len(result)).
		Msg("association loaded")
	return result, nil
}

// loadMany groups target rows by their foreign key.
func (l *Loader) loadMany(ctx context.Context, a *association, keys []any) (AssociationMap, error) {
	rows, err := l.targetRows(ctx, a.target, a.keys.Target, keys, a.request)
	if err != nil {
		return nil, err
	}
	result := make(AssociationMap, len(keys))
	for _, row := range rows {
		key := normalizeKey(row[a.keys.Target])
		result[key] = append(result[key], row)
	}
	return result, nil
}

// loadOne indexes target rows by key. One-to-one relationships must not yield
// more than one row per key.
func (l *Loader) loadOne(ctx context.Context, a *association, keys []any) (AssociationMap, error) {
	rows, err := l.targetRows(ctx, a.target, a.keys.Target, keys, a.request)
	if err != nil {
		return nil, err
	}
	result := make(AssociationMap, len(rows))
	for _, row := range rows {
		key := normalizeKey(row[a.keys.Target])
		if _, dup := result[key]; dup {
			if a.rel.Type == schema.OneToOne {
				return nil, fmt.Errorf("%w: %s key %v", runtime.ErrAmbiguousOneToOne, a.property, key)
			}
			continue
		}
		result[key] = []Row{row}
	}
	return result, nil
}

// loadManyToMany reads the join table, then the targets. Targets are attached
// in join table order.
func (l *Loader) loadManyToMany(ctx context.Context, a *association, keys []any) (AssociationMap, error) {
	rel := a.rel
	link, err := l.run(ctx, SelectStatement{
		Table: rel.JoinTable,
		Columns: []string{
			rel.JoinTable + "." + rel.JoinForeignKey,
			rel.JoinTable + "." + rel.JoinReferences,
		},
		Where: []Condition{keyCondition(rel.JoinTable+"."+rel.JoinForeignKey, keys)},
	})
	if err != nil {
		return nil, err
	}

	pairs := make(map[any][]any, len(keys))
	var order []any
	for _, row := range link {
		src := normalizeKey(row[rel.JoinForeignKey])
		if _, ok := pairs[src]; !ok {
			order = append(order, src)
		}
		pairs[src] = append(pairs[src], normalizeKey(row[rel.JoinReferences]))
	}

	targetKeys := distinctKeys(flatten(order, pairs))
	if len(targetKeys) == 0 {
		return AssociationMap{}, nil
	}

	rows, err := l.targetRows(ctx, a.target, a.keys.Target, targetKeys, a.request)
	if err != nil {
		return nil, err
	}
	byKey := make(map[any]Row, len(rows))
	for _, row := range rows {
		key := normalizeKey(row[a.keys.Target])
		if _, dup := byKey[key]; !dup {
			byKey[key] = row
		}
	}

	result := make(AssociationMap, len(pairs))
	for src, refs := range pairs {
		for _, ref := range refs {
			if row, ok := byKey[ref]; ok {
				result[src] = append(result[src], row)
			}
		}
	}
	return result, nil
}

func (l *Loader) loadCustom(ctx context.Context, source *schema.TableMetadata, a *association, keys []any) (AssociationMap, error) {
	strategy := l.strategies[a.rel.Strategy]
	loaded, err := strategy.Load(ctx, l.db, StrategyRequest{
		Relationship: a.rel,
		Source:       source,
		SourceKey:    a.keys.Source,
		Keys:         keys,
		Selection:    a.request.Selection,
		Filter:       a.request.Filter,
	})
	if err != nil {
		return nil, err
	}
	result := make(AssociationMap, len(loaded))
	for key, rows := range loaded {
		k := normalizeKey(key)
		result[k] = append(result[k], rows...)
	}
	return result, nil
}

// targetRows selects the target rows whose keyColumn is in keys, narrowed by
// the request's filter. The filter may traverse the target's relationships.
func (l *Loader) targetRows(ctx context.Context, target *schema.TableMetadata, keyColumn string, keys []any, req AssociationRequest) ([]Row, error) {
	where := []Condition{keyCondition(target.Name+"."+keyColumn, keys)}
	var joins []Join

	if !filter.IsEmpty(req.Filter) {
		resolved, relJoins, err := l.resolver.ResolveJoins(target, req.Filter)
		if err != nil {
			return nil, err
		}
		conds, nativeJoins, err := Translate(target, resolved)
		if err != nil {
			return nil, err
		}
		if len(conds) > 0 {
			where = append(where, Group(conds...))
		}
		joins = mergeJoins(relJoins, nativeJoins)
	}

	return l.run(ctx, SelectStatement{
		Table:    target.Name,
		Columns:  selectColumns(target, req.Selection, keyColumn),
		Distinct: hasFanout(joins),
		Joins:    joins,
		Where:    where,
	})
}

func (l *Loader) run(ctx context.Context, stmt SelectStatement) ([]Row, error) {
	sql, args, err := stmt.ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := l.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collectRows(rows)
}

// keyCondition matches column against a batch of keys.
func keyCondition(column string, keys []any) Condition {
	cond, err := translateCondition(column, filter.Equal, keys)
	if err != nil {
		// Keys that have no typed binding are passed through untyped.
		return In(column, keys...)
	}
	return cond
}

// selectColumns qualifies the requested columns with the table name and makes
// sure required is among them. An empty selection selects every column.
func selectColumns(table *schema.TableMetadata, selection []string, required ...string) []string {
	if len(selection) == 0 {
		return nil
	}
	columns := make([]string, 0, len(selection)+len(required))
	present := make(map[string]bool, len(selection))
	for _, s := range selection {
		if strings.ContainsAny(s, ".( ") || s == "*" {
			columns = append(columns, s)
			continue
		}
		name := table.ColumnName(s)
		present[name] = true
		columns = append(columns, table.Name+"."+name)
	}
	for _, r := range required {
		if r != "" && !present[r] {
			present[r] = true
			columns = append(columns, table.Name+"."+r)
		}
	}
	return columns
}

func mergeJoins(groups ...[]Join) []Join {
	seen := make(map[string]bool)
	var out []Join
	for _, joins := range groups {
		for _, j := range joins {
			if seen[j.key()] {
				continue
			}
			seen[j.key()] = true
			out = append(out, j)
		}
	}
	return out
}

func hasFanout(joins []Join) bool {
	for _, j := range joins {
		if j.Fanout {
			return true
		}
	}
	return false
}

func flatten(order []any, pairs map[any][]any) []any {
	var out []any
	for _, src := range order {
		out = append(out, pairs[src]...)
	}
	return out
}
