package builder

import (
	"context"

	"github.com/marshallshelly/pebble-relations/pkg/filter"
	"github.com/marshallshelly/pebble-relations/pkg/schema"
)

// Strategy loads and filters a custom relationship. Strategies are registered
// on the adapter under the name used in the relationship's custom(name) tag.
type Strategy interface {
	// Load returns the related rows of every source key, keyed by the source
	// key value.
	Load(ctx context.Context, q Querier, req StrategyRequest) (AssociationMap, error)

	// ResolveNestedFilter rewrites a leaf whose path continues past the custom
	// relationship. Strategies that cannot do this return a NestedFilter with
	// Supported set to false.
	ResolveNestedFilter(scope NestedScope, leaf *filter.Leaf) (NestedFilter, error)
}

// StrategyRequest is the batch handed to Strategy.Load.
type StrategyRequest struct {
	Relationship *schema.RelationshipMetadata
	Source       *schema.TableMetadata
	SourceKey    string
	Keys         []any
	Selection    []string
	Filter       filter.Node
}

// NestedScope locates a custom relationship inside a nested filter path.
type NestedScope struct {
	Relationship *schema.RelationshipMetadata
	Source       *schema.TableMetadata
	SourceAlias  string
	// Alias is reserved for the joins of this relationship.
	Alias    string
	JoinType JoinType
}

// NestedFilter is the result of Strategy.ResolveNestedFilter. Predicate
// replaces the leaf and must only use alias-qualified paths or native SQL.
type NestedFilter struct {
	Supported bool
	Predicate filter.Node
	Joins     []Join
}

// NoNestedFilter can be embedded by strategies without nested filter support.
type NoNestedFilter struct{}

// ResolveNestedFilter reports nested filtering as unsupported.
func (NoNestedFilter) ResolveNestedFilter(NestedScope, *filter.Leaf) (NestedFilter, error) {
	return NestedFilter{}, nil
}
