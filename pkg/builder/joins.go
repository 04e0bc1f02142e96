package builder

import (
	"fmt"

	"github.com/marshallshelly/pebble-relations/pkg/filter"
	"github.com/marshallshelly/pebble-relations/pkg/registry"
	"github.com/marshallshelly/pebble-relations/pkg/runtime"
	"github.com/marshallshelly/pebble-relations/pkg/schema"
)

// JoinOptions tunes join resolution.
type JoinOptions struct {
	// IsolateOrGroups gives every branch of an OR group its own alias scope
	// (g<i>_ prefix) and joins it with LEFT JOIN, so a branch without related
	// rows cannot eliminate root rows matched by another branch.
	IsolateOrGroups bool
}

// Resolver rewrites relationship paths of a filter into joins.
type Resolver struct {
	registry   *registry.Registry
	strategies map[string]Strategy
	options    JoinOptions
}

// NewResolver creates a Resolver over the entities of reg.
func NewResolver(reg *registry.Registry, strategies map[string]Strategy, opts JoinOptions) *Resolver {
	if strategies == nil {
		strategies = make(map[string]Strategy)
	}
	return &Resolver{registry: reg, strategies: strategies, options: opts}
}

// ResolveJoins walks the filter and returns it with every relationship path
// rewritten to alias.column, plus the joins those aliases need in dependency
// order. The alias of a hop is the property name, prefixed by the alias of the
// previous hop ("author", "author_country"). Joins shared by several leaves
// are emitted once. When two different paths produce the same alias, the
// later one gets a numeric suffix ("author_country_2").
func (r *Resolver) ResolveJoins(table *schema.TableMetadata, node filter.Node) (filter.Node, []Join, error) {
	s := &joinScope{
		resolver: r,
		root:     table,
		seen:     make(map[string]bool),
		aliases:  make(map[string]string),
		owners:   make(map[string]string),
	}
	if table != nil {
		s.owners[table.Name] = ""
	}
	out, err := s.node(node, "", false)
	if err != nil {
		return nil, nil, err
	}
	return out, s.joins, nil
}

type joinScope struct {
	resolver *Resolver
	root     *schema.TableMetadata
	joins    []Join
	seen     map[string]bool

	// aliases maps a hop path to its alias, owners an alias to its hop path.
	aliases map[string]string
	owners  map[string]string
}

func (s *joinScope) node(node filter.Node, prefix string, isolated bool) (filter.Node, error) {
	switch n := node.(type) {
	case nil:
		return nil, nil
	case *filter.Group:
		out := &filter.Group{Logic: n.Logic, Children: make([]filter.Node, 0, len(n.Children))}
		for i, child := range n.Children {
			childPrefix, childIsolated := prefix, isolated
			if n.Logic == filter.Or && s.resolver.options.IsolateOrGroups {
				childPrefix = fmt.Sprintf("%sg%d_", prefix, i)
				childIsolated = true
			}
			resolved, err := s.node(child, childPrefix, childIsolated)
			if err != nil {
				return nil, err
			}
			out.Children = append(out.Children, resolved)
		}
		return out, nil
	case *filter.Leaf:
		return s.leaf(n, prefix, isolated)
	case *filter.Native:
		return n, nil
	default:
		return nil, fmt.Errorf("unknown filter node %T", node)
	}
}

func (s *joinScope) leaf(leaf *filter.Leaf, prefix string, isolated bool) (filter.Node, error) {
	if !filter.IsNested(leaf.Path) {
		return leaf, nil
	}

	joinType := InnerJoin
	if isolated {
		joinType = LeftJoin
	}

	table, alias, path := s.root, s.root.Name, leaf.Path
	hopPath := prefix
	for hops := 0; ; {
		head, rest, nested := filter.SplitPath(path)
		if !nested {
			break
		}

		rel := table.GetRelationship(head)
		if rel == nil {
			if hops == 0 && head == s.root.Name && path == leaf.Path {
				path = rest
				continue
			}
			return nil, &runtime.UnknownPropertyError{Entity: table.Name, Property: head}
		}

		want := prefix + rel.Name
		if hops > 0 {
			want = alias + "_" + rel.Name
		}
		hops++
		hopPath += filter.Delimiter + rel.Name

		if rel.Type == schema.Custom {
			next, _, err := s.claim(hopPath, want, func(string) ([]Join, error) { return nil, nil })
			if err != nil {
				return nil, err
			}
			return s.custom(rel, table, alias, next, rest, leaf, joinType)
		}

		target, err := s.resolver.registry.Target(rel)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", leaf.Path, err)
		}
		source, sourceAlias := table, alias
		next, joins, err := s.claim(hopPath, want, func(alias string) ([]Join, error) {
			return relationJoins(rel, source, target, sourceAlias, alias, joinType)
		})
		if err != nil {
			return nil, err
		}
		s.add(joins...)

		table, alias, path = target, next, rest
	}

	return &filter.Leaf{Path: alias + filter.Delimiter + table.ColumnName(path), Conditions: leaf.Conditions}, nil
}

func (s *joinScope) custom(rel *schema.RelationshipMetadata, source *schema.TableMetadata, sourceAlias, alias, rest string, leaf *filter.Leaf, joinType JoinType) (filter.Node, error) {
	strategy, ok := s.resolver.strategies[rel.Strategy]
	if !ok {
		return nil, &runtime.UnsupportedRelationshipError{Kind: string(rel.Type) + ":" + rel.Strategy, Property: rel.Name}
	}

	resolved, err := strategy.ResolveNestedFilter(NestedScope{
		Relationship: rel,
		Source:       source,
		SourceAlias:  sourceAlias,
		Alias:        alias,
		JoinType:     joinType,
	}, &filter.Leaf{Path: rest, Conditions: leaf.Conditions})
	if err != nil {
		return nil, err
	}
	if !resolved.Supported {
		return nil, &runtime.NestedFilterUnsupportedError{Strategy: rel.Strategy, Path: leaf.Path}
	}
	s.add(resolved.Joins...)
	return resolved.Predicate, nil
}

// claim returns the alias of the hop at path and the joins build produces for
// it. A new path takes want, or want with the first numeric suffix whose
// aliases are not owned by another path.
func (s *joinScope) claim(path, want string, build func(alias string) ([]Join, error)) (string, []Join, error) {
	if alias, ok := s.aliases[path]; ok {
		joins, err := build(alias)
		return alias, joins, err
	}

	for n := 1; ; n++ {
		alias := want
		if n > 1 {
			alias = fmt.Sprintf("%s_%d", want, n)
		}
		joins, err := build(alias)
		if err != nil {
			return "", nil, err
		}

		names := []string{alias}
		for _, j := range joins {
			if j.Alias != "" {
				names = append(names, j.Alias)
			}
		}
		if !s.available(path, names) {
			continue
		}
		s.aliases[path] = alias
		for _, name := range names {
			s.owners[name] = path
		}
		return alias, joins, nil
	}
}

func (s *joinScope) available(path string, names []string) bool {
	for _, name := range names {
		if owner, ok := s.owners[name]; ok && owner != path {
			return false
		}
	}
	return true
}

func (s *joinScope) add(joins ...Join) {
	for _, j := range joins {
		if s.seen[j.key()] {
			continue
		}
		s.seen[j.key()] = true
		s.joins = append(s.joins, j)
	}
}

// relationJoins builds the join clauses that bring target into scope under
// alias.
func relationJoins(rel *schema.RelationshipMetadata, source, target *schema.TableMetadata, sourceAlias, alias string, joinType JoinType) ([]Join, error) {
	switch rel.Type {
	case schema.ManyToOne, schema.OneToOne, schema.OneToMany:
		pair, err := rel.Keys(source, target)
		if err != nil {
			return nil, err
		}
		return []Join{{
			Type:      joinType,
			Table:     target.Name,
			Alias:     alias,
			Condition: fmt.Sprintf("%s.%s = %s.%s", alias, pair.Target, sourceAlias, pair.Source),
			Fanout:    rel.Type == schema.OneToMany,
		}}, nil

	case schema.ManyToMany:
		pair, err := rel.Keys(source, target)
		if err != nil {
			return nil, err
		}
		through := alias + "_join"
		return []Join{
			{
				Type:      joinType,
				Table:     rel.JoinTable,
				Alias:     through,
				Condition: fmt.Sprintf("%s.%s = %s.%s", through, rel.JoinForeignKey, sourceAlias, pair.Source),
				Fanout:    true,
			},
			{
				Type:      joinType,
				Table:     target.Name,
				Alias:     alias,
				Condition: fmt.Sprintf("%s.%s = %s.%s", alias, pair.Target, through, rel.JoinReferences),
				Fanout:    true,
			},
		}, nil

	default:
		return nil, &runtime.UnsupportedRelationshipError{Kind: string(rel.Type), Property: rel.Name}
	}
}
