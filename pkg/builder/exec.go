package builder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marshallshelly/pebble-relations/pkg/runtime"
	"github.com/marshallshelly/pebble-relations/pkg/schema"
)

// compiled is a Plan with its filter resolved into conditions and joins.
type compiled struct {
	plan         Plan
	where        []Condition
	joins        []Join
	associations []*association
}

func (d *DB) compile(p Plan) (*compiled, error) {
	c := &compiled{plan: p}
	if p.Kind == RawQuery {
		if p.SQL == "" {
			return nil, fmt.Errorf("raw command without SQL")
		}
		return c, nil
	}
	if p.Table == nil {
		return nil, fmt.Errorf("table metadata not available")
	}

	conds, joins, err := d.translate(p.Table, p.Filter)
	if err != nil {
		return nil, err
	}
	c.where = conds
	c.joins = mergeJoins(p.Joins, joins)

	// UPDATE and DELETE carry relationship filters through a key subquery.
	if len(c.joins) > 0 && !p.Kind.supports(capJoins) {
		cond, err := keySubquery(p.Table, c.joins, c.where)
		if err != nil {
			return nil, err
		}
		c.where = []Condition{cond}
		c.joins = nil
	}

	for _, spec := range p.Associations {
		a, err := d.loader.prepare(p.Table, spec.Property, spec.Request)
		if err != nil {
			return nil, err
		}
		c.associations = append(c.associations, a)
	}
	return c, nil
}

func (c *compiled) selectStatement() SelectStatement {
	table := c.plan.Table
	required := make([]string, 0, len(c.associations))
	for _, a := range c.associations {
		required = append(required, a.keys.Source)
	}

	orderBy := make([]OrderBy, len(c.plan.OrderBy))
	for i, o := range c.plan.OrderBy {
		orderBy[i] = o
		if !strings.ContainsAny(o.Column, ".( ") {
			orderBy[i].Column = table.Name + "." + table.ColumnName(o.Column)
		}
		if orderBy[i].Direction == "" {
			orderBy[i].Direction = Asc
		}
	}

	stmt := SelectStatement{
		Table:    table.Name,
		Columns:  selectColumns(table, c.plan.Selection, required...),
		Distinct: hasFanout(c.joins),
		Joins:    c.joins,
		Where:    c.where,
		OrderBy:  orderBy,
		Limit:    c.plan.Limit,
		Offset:   c.plan.Offset,
	}
	if c.plan.Kind == SelectOne {
		one := 1
		stmt.Limit = &one
	}
	return stmt
}

func (c *compiled) countStatement() SelectStatement {
	column := "COUNT(*)"
	if hasFanout(c.joins) {
		if pk, err := c.plan.Table.PrimaryKeyColumn(); err == nil {
			column = fmt.Sprintf("COUNT(DISTINCT %s.%s)", c.plan.Table.Name, pk)
		}
	}
	return SelectStatement{
		Table:   c.plan.Table.Name,
		Columns: []string{column},
		Joins:   c.joins,
		Where:   c.where,
	}
}

func (c *compiled) values() map[string]any {
	out := make(map[string]any, len(c.plan.Values))
	for k, v := range c.plan.Values {
		out[c.plan.Table.ColumnName(k)] = v
	}
	return out
}

func (c *compiled) insertStatement() InsertStatement {
	stmt := NewInsertStatement(c.plan.Table.Name, c.values())
	if pk, err := c.plan.Table.PrimaryKeyColumn(); err == nil {
		stmt.Returning = []string{pk}
	}
	return stmt
}

func (c *compiled) updateStatement() UpdateStatement {
	return UpdateStatement{Table: c.plan.Table.Name, Values: c.values(), Where: c.where}
}

func (c *compiled) deleteStatement() DeleteStatement {
	return DeleteStatement{Table: c.plan.Table.Name, Where: c.where}
}

// rootSQL renders the first statement the command runs.
func (c *compiled) rootSQL() (string, []interface{}, error) {
	switch c.plan.Kind {
	case SelectMany, SelectOne:
		return c.selectStatement().ToSQL()
	case Count:
		return c.countStatement().ToSQL()
	case Insert:
		return c.insertStatement().ToSQL()
	case Update, UpdateOne:
		return c.updateStatement().ToSQL()
	case Delete, DeleteOne:
		return c.deleteStatement().ToSQL()
	case ModifyManyToMany:
		return c.linkSQL()
	case RawQuery:
		return c.plan.SQL, c.plan.Args, nil
	}
	return "", nil, fmt.Errorf("unknown command kind %d", c.plan.Kind)
}

func (c *compiled) linkSQL() (string, []interface{}, error) {
	rel := c.plan.Table.GetRelationship(c.plan.Relationship)
	if rel == nil {
		return "", nil, &runtime.UnknownPropertyError{Entity: c.plan.Table.Name, Property: c.plan.Relationship}
	}
	if rel.Type != schema.ManyToMany {
		return "", nil, &runtime.UnsupportedOperationError{Operation: string(rel.Type) + " relationship " + rel.Name, Command: ModifyManyToMany.String()}
	}
	related := distinctKeys(c.plan.Related)
	if len(related) == 0 {
		return "", nil, nil
	}

	if c.plan.Action == Unlink {
		return DeleteStatement{
			Table: rel.JoinTable,
			Where: []Condition{
				Eq(rel.JoinForeignKey, c.plan.Owner),
				In(rel.JoinReferences, related...),
			},
		}.ToSQL()
	}

	stmt := InsertStatement{
		Table:   rel.JoinTable,
		Columns: []string{rel.JoinForeignKey, rel.JoinReferences},
	}
	for _, key := range related {
		stmt.Values = append(stmt.Values, []interface{}{c.plan.Owner, key})
	}
	return stmt.ToSQL()
}

func (d *DB) queryRows(ctx context.Context, sql string, args []interface{}) ([]Row, error) {
	rows, err := d.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, queryError(sql, err)
	}
	result, err := collectRows(rows)
	if err != nil {
		return nil, queryError(sql, err)
	}
	return result, nil
}

func (d *DB) exec(ctx context.Context, sql string, args []interface{}) (int64, error) {
	tag, err := d.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, queryError(sql, err)
	}
	return tag.RowsAffected(), nil
}

func queryError(sql string, err error) error {
	var qe *runtime.QueryError
	if errors.As(err, &qe) {
		return err
	}
	return &runtime.QueryError{Query: sql, Err: err}
}

func (d *DB) logDone(c *compiled, start time.Time, rows int64) {
	ev := d.logger.Debug().Str("command", c.plan.Kind.String())
	if c.plan.Table != nil {
		ev = ev.Str("table", c.plan.Table.Name)
	}
	ev.Int("joins", len(c.joins)).
		Int("associations", len(c.associations)).
		Int64("rows", rows).
		Dur("elapsed", time.Since(start)).
		Msg("command executed")
}

func (d *DB) selectRows(ctx context.Context, c *compiled) ([]Row, error) {
	start := time.Now()
	sql, args, err := c.selectStatement().ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := d.queryRows(ctx, sql, args)
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 && len(c.associations) > 0 {
		if err := d.attach(ctx, c.plan.Table, rows, c.associations); err != nil {
			return nil, err
		}
	}
	d.logDone(c, start, int64(len(rows)))
	return rows, nil
}

// attach loads every association and stitches it onto rows. Loads may run
// concurrently; stitching happens afterwards in request order.
func (d *DB) attach(ctx context.Context, source *schema.TableMetadata, rows []Row, associations []*association) error {
	results := make([]AssociationMap, len(associations))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, a := range associations {
		keys := collectKeys(rows, a.keys.Source)
		g.Go(func() error {
			loaded, err := d.loader.load(gctx, source, a, keys)
			if err != nil {
				return err
			}
			results[i] = loaded
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, a := range associations {
		collection := a.rel.Collection || a.rel.Type.ToMany()
		Stitch(rows, a.property, a.keys.Source, results[i], collection)
	}
	return nil
}

func (d *DB) execSelectMany(ctx context.Context, c *compiled) ([]Row, error) {
	return d.selectRows(ctx, c)
}

func (d *DB) execSelectOne(ctx context.Context, c *compiled) (Row, error) {
	rows, err := d.selectRows(ctx, c)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (d *DB) execCount(ctx context.Context, c *compiled) (int64, error) {
	start := time.Now()
	sql, args, err := c.countStatement().ToSQL()
	if err != nil {
		return 0, err
	}
	var count int64
	if err := d.db.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, queryError(sql, err)
	}
	d.logDone(c, start, 1)
	return count, nil
}

func (d *DB) execInsert(ctx context.Context, c *compiled) (any, error) {
	start := time.Now()
	stmt := c.insertStatement()
	sql, args, err := stmt.ToSQL()
	if err != nil {
		return nil, err
	}
	if len(stmt.Returning) == 0 {
		n, err := d.exec(ctx, sql, args)
		if err != nil {
			return nil, err
		}
		d.logDone(c, start, n)
		return nil, nil
	}

	var id any
	if err := d.db.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return nil, queryError(sql, err)
	}
	d.logDone(c, start, 1)
	return normalizeKey(id), nil
}

func (d *DB) execAffected(ctx context.Context, c *compiled, sql string, args []interface{}) (int64, error) {
	start := time.Now()
	n, err := d.exec(ctx, sql, args)
	if err != nil {
		return 0, err
	}
	d.logDone(c, start, n)
	return n, nil
}

func (d *DB) execUpdate(ctx context.Context, c *compiled) (int64, error) {
	sql, args, err := c.updateStatement().ToSQL()
	if err != nil {
		return 0, err
	}
	return d.execAffected(ctx, c, sql, args)
}

func (d *DB) execUpdateOne(ctx context.Context, c *compiled) (bool, error) {
	n, err := d.execUpdate(ctx, c)
	return n > 0, err
}

func (d *DB) execDelete(ctx context.Context, c *compiled) (int64, error) {
	sql, args, err := c.deleteStatement().ToSQL()
	if err != nil {
		return 0, err
	}
	return d.execAffected(ctx, c, sql, args)
}

func (d *DB) execDeleteOne(ctx context.Context, c *compiled) (bool, error) {
	n, err := d.execDelete(ctx, c)
	return n > 0, err
}

func (d *DB) execModifyManyToMany(ctx context.Context, c *compiled) (int64, error) {
	sql, args, err := c.linkSQL()
	if err != nil || sql == "" {
		return 0, err
	}
	return d.execAffected(ctx, c, sql, args)
}

func (d *DB) execRaw(ctx context.Context, c *compiled) ([]Row, error) {
	start := time.Now()
	rows, err := d.queryRows(ctx, c.plan.SQL, c.plan.Args)
	if err != nil {
		return nil, err
	}
	d.logDone(c, start, int64(len(rows)))
	return rows, nil
}
