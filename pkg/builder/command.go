package builder

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/marshallshelly/pebble-relations/pkg/filter"
	"github.com/marshallshelly/pebble-relations/pkg/runtime"
	"github.com/marshallshelly/pebble-relations/pkg/schema"
)

// CommandKind identifies what a Command does.
type CommandKind int

const (
	// SelectMany returns every matching row.
	SelectMany CommandKind = iota
	// SelectOne returns the first matching row or nil.
	SelectOne
	// Count returns the number of matching root rows.
	Count
	// Insert adds a row and returns its primary key.
	Insert
	// Update changes matching rows and returns how many.
	Update
	// UpdateOne changes the row with a given key.
	UpdateOne
	// Delete removes matching rows and returns how many.
	Delete
	// DeleteOne removes the row with a given key.
	DeleteOne
	// ModifyManyToMany links or unlinks join table rows.
	ModifyManyToMany
	// RawQuery runs caller supplied SQL.
	RawQuery
)

var commandNames = [...]string{
	SelectMany:       "selectMany",
	SelectOne:        "selectOne",
	Count:            "count",
	Insert:           "insert",
	Update:           "update",
	UpdateOne:        "updateOne",
	Delete:           "delete",
	DeleteOne:        "deleteOne",
	ModifyManyToMany: "modifyManyToMany",
	RawQuery:         "raw",
}

// String returns the kind name used in logs and errors.
func (k CommandKind) String() string {
	if int(k) < len(commandNames) {
		return commandNames[k]
	}
	return "unknown"
}

type capability int

const (
	capFilter capability = iota
	capSelection
	capJoins
	capAssociations
	capOrdering
)

var capabilityNames = [...]string{
	capFilter:       "filter",
	capSelection:    "selection",
	capJoins:        "joins",
	capAssociations: "associations",
	capOrdering:     "ordering and paging",
}

func (k CommandKind) supports(c capability) bool {
	switch c {
	case capFilter:
		return k != Insert && k != ModifyManyToMany && k != RawQuery
	case capSelection, capAssociations:
		return k == SelectMany || k == SelectOne
	case capJoins:
		return k == SelectMany || k == SelectOne || k == Count
	case capOrdering:
		return k == SelectMany
	}
	return false
}

// LinkAction is the direction of a ModifyManyToMany command.
type LinkAction int

const (
	// Link adds join table rows.
	Link LinkAction = iota
	// Unlink removes join table rows.
	Unlink
)

// AssociationSpec is one requested association of a Plan.
type AssociationSpec struct {
	Property string
	Request  AssociationRequest
}

// Plan is the configuration of a command. Command.Plan returns a copy, so a
// Plan handed out never changes.
type Plan struct {
	Kind         CommandKind
	Table        *schema.TableMetadata
	Selection    []string
	Filter       filter.Node
	Joins        []Join
	Associations []AssociationSpec
	OrderBy      []OrderBy
	Limit        *int
	Offset       *int

	// Insert, Update, UpdateOne.
	Values map[string]any

	// ModifyManyToMany.
	Relationship string
	Owner        any
	Related      []any
	Action       LinkAction

	// RawQuery.
	SQL  string
	Args []any
}

func (p Plan) clone() Plan {
	c := p
	c.Selection = append([]string(nil), p.Selection...)
	c.Joins = append([]Join(nil), p.Joins...)
	c.Associations = append([]AssociationSpec(nil), p.Associations...)
	c.OrderBy = append([]OrderBy(nil), p.OrderBy...)
	c.Related = append([]any(nil), p.Related...)
	c.Args = append([]any(nil), p.Args...)
	if p.Values != nil {
		c.Values = make(map[string]any, len(p.Values))
		for k, v := range p.Values {
			c.Values[k] = v
		}
	}
	if p.Limit != nil {
		n := *p.Limit
		c.Limit = &n
	}
	if p.Offset != nil {
		n := *p.Offset
		c.Offset = &n
	}
	return c
}

// Command is a configured operation that runs once. Builder methods record
// the first configuration error, which Err and Execute report.
type Command[R any] struct {
	db       *DB
	plan     Plan
	err      error
	executed atomic.Bool
	run      func(ctx context.Context, c *compiled) (R, error)
}

func newCommand[R any](d *DB, kind CommandKind, table string, run func(context.Context, *compiled) (R, error)) *Command[R] {
	c := &Command[R]{db: d, plan: Plan{Kind: kind}, run: run}
	if table != "" {
		c.plan.Table, c.err = d.Table(table)
	}
	return c
}

func (c *Command[R]) allow(want capability) bool {
	if c.err != nil {
		return false
	}
	if !c.plan.Kind.supports(want) {
		c.err = &runtime.UnsupportedOperationError{Operation: capabilityNames[want], Command: c.plan.Kind.String()}
		return false
	}
	return true
}

// Where adds a filter. Repeated calls are combined with AND.
func (c *Command[R]) Where(node filter.Node) *Command[R] {
	if node == nil || !c.allow(capFilter) {
		return c
	}
	if c.plan.Filter == nil {
		c.plan.Filter = node
	} else {
		c.plan.Filter = filter.AllOf(c.plan.Filter, node)
	}
	return c
}

// Select limits the root columns.
func (c *Command[R]) Select(columns ...string) *Command[R] {
	if c.allow(capSelection) {
		c.plan.Selection = append(c.plan.Selection, columns...)
	}
	return c
}

// Join adds explicit joins to the root query.
func (c *Command[R]) Join(joins ...Join) *Command[R] {
	if c.allow(capJoins) {
		c.plan.Joins = append(c.plan.Joins, joins...)
	}
	return c
}

// With requests associations with their full column set and no filter.
func (c *Command[R]) With(properties ...string) *Command[R] {
	for _, p := range properties {
		c.Associate(p, AssociationRequest{})
	}
	return c
}

// Associate requests an association with a selection and filter.
func (c *Command[R]) Associate(property string, req AssociationRequest) *Command[R] {
	if !c.allow(capAssociations) {
		return c
	}
	if c.plan.Table != nil && c.plan.Table.GetRelationship(property) == nil {
		c.err = &runtime.UnknownPropertyError{Entity: c.plan.Table.Name, Property: property}
		return c
	}
	c.plan.Associations = append(c.plan.Associations, AssociationSpec{Property: property, Request: req})
	return c
}

// OrderBy adds an ORDER BY column.
func (c *Command[R]) OrderBy(column string, direction OrderDirection) *Command[R] {
	if c.allow(capOrdering) {
		c.plan.OrderBy = append(c.plan.OrderBy, OrderBy{Column: column, Direction: direction})
	}
	return c
}

// OrderByAsc adds an ascending ORDER BY column.
func (c *Command[R]) OrderByAsc(column string) *Command[R] {
	return c.OrderBy(column, Asc)
}

// OrderByDesc adds a descending ORDER BY column.
func (c *Command[R]) OrderByDesc(column string) *Command[R] {
	return c.OrderBy(column, Desc)
}

// Limit sets the maximum number of root rows.
func (c *Command[R]) Limit(limit int) *Command[R] {
	if c.allow(capOrdering) {
		c.plan.Limit = &limit
	}
	return c
}

// Offset sets the number of root rows to skip.
func (c *Command[R]) Offset(offset int) *Command[R] {
	if c.allow(capOrdering) {
		c.plan.Offset = &offset
	}
	return c
}

// Err returns the first configuration error.
func (c *Command[R]) Err() error {
	return c.err
}

// Plan returns a snapshot of the configuration.
func (c *Command[R]) Plan() (Plan, error) {
	if c.err != nil {
		return Plan{}, c.err
	}
	return c.plan.clone(), nil
}

// ToSQL renders the statement the command runs first.
func (c *Command[R]) ToSQL() (string, []interface{}, error) {
	plan, err := c.Plan()
	if err != nil {
		return "", nil, err
	}
	cp, err := c.db.compile(plan)
	if err != nil {
		return "", nil, err
	}
	return cp.rootSQL()
}

// Execute runs the command. A command runs at most once; later calls return
// runtime.ErrAlreadyExecuted.
func (c *Command[R]) Execute(ctx context.Context) (R, error) {
	var zero R
	if c.executed.Swap(true) {
		return zero, runtime.ErrAlreadyExecuted
	}
	plan, err := c.Plan()
	if err != nil {
		return zero, err
	}
	cp, err := c.db.compile(plan)
	if err != nil {
		return zero, err
	}
	return c.run(ctx, cp)
}

// Select starts a SelectMany command on table.
func (d *DB) Select(table string) *Command[[]Row] {
	return newCommand(d, SelectMany, table, d.execSelectMany)
}

// SelectOne starts a command returning the row whose column equals value, or
// nil.
func (d *DB) SelectOne(table, column string, value any) *Command[Row] {
	c := newCommand(d, SelectOne, table, d.execSelectOne)
	return c.Where(filter.Eq(column, value))
}

// Count starts a command counting the rows of table.
func (d *DB) Count(table string) *Command[int64] {
	return newCommand(d, Count, table, d.execCount)
}

// Insert starts a command inserting one row. The result is the inserted
// primary key, or nil for tables without one.
func (d *DB) Insert(table string, values map[string]any) *Command[any] {
	c := newCommand(d, Insert, table, d.execInsert)
	c.plan.Values = values
	return c
}

// Update starts a command updating the rows matched by its filter. The result
// is the number of affected rows.
func (d *DB) Update(table string, values map[string]any) *Command[int64] {
	c := newCommand(d, Update, table, d.execUpdate)
	c.plan.Values = values
	return c
}

// UpdateOne starts a command updating the row whose column equals value.
func (d *DB) UpdateOne(table, column string, value any, values map[string]any) *Command[bool] {
	c := newCommand(d, UpdateOne, table, d.execUpdateOne)
	c.plan.Values = values
	return c.Where(filter.Eq(column, value))
}

// Delete starts a command deleting the rows matched by its filter.
func (d *DB) Delete(table string) *Command[int64] {
	return newCommand(d, Delete, table, d.execDelete)
}

// DeleteOne starts a command deleting the row whose column equals value.
func (d *DB) DeleteOne(table, column string, value any) *Command[bool] {
	c := newCommand(d, DeleteOne, table, d.execDeleteOne)
	return c.Where(filter.Eq(column, value))
}

// LinkManyToMany starts a command adding join table rows between owner and
// each related key of the many-to-many property.
func (d *DB) LinkManyToMany(table, property string, owner any, related ...any) *Command[int64] {
	return d.modifyManyToMany(table, property, owner, related, Link)
}

// UnlinkManyToMany starts a command removing join table rows between owner
// and each related key of the many-to-many property.
func (d *DB) UnlinkManyToMany(table, property string, owner any, related ...any) *Command[int64] {
	return d.modifyManyToMany(table, property, owner, related, Unlink)
}

func (d *DB) modifyManyToMany(table, property string, owner any, related []any, action LinkAction) *Command[int64] {
	c := newCommand(d, ModifyManyToMany, table, d.execModifyManyToMany)
	c.plan.Relationship = property
	c.plan.Owner = owner
	c.plan.Related = related
	c.plan.Action = action
	return c
}

// Raw starts a command running sql as-is. Arguments use $n placeholders.
func (d *DB) Raw(sql string, args ...any) *Command[[]Row] {
	c := newCommand(d, RawQuery, "", d.execRaw)
	c.plan.SQL = strings.TrimSpace(sql)
	c.plan.Args = args
	return c
}
