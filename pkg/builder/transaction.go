package builder

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TxBeginner starts transactions. *pgxpool.Pool, *pgx.Conn and *runtime.DB
// satisfy it.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Tx is an adapter bound to a transaction. Commands built from a Tx run
// inside it; association loads run one at a time since a transaction owns a
// single connection.
type Tx struct {
	*DB
	tx  pgx.Tx
	ctx context.Context
}

// Begin starts a new transaction. The adapter's Querier must implement
// TxBeginner.
func (d *DB) Begin(ctx context.Context) (*Tx, error) {
	return d.BeginTx(ctx, pgx.TxOptions{})
}

// BeginTx starts a new transaction with custom options.
func (d *DB) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (*Tx, error) {
	beginner, ok := d.db.(TxBeginner)
	if !ok {
		return nil, fmt.Errorf("querier %T cannot begin transactions", d.db)
	}
	tx, err := beginner.BeginTx(ctx, txOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{DB: d.withQuerier(tx, 1), tx: tx, ctx: ctx}, nil
}

// RunInTx runs fn in a transaction, committing when fn returns nil and
// rolling back otherwise.
func (d *DB) RunInTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	tx, err := d.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(t.ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback rolls back the transaction.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(t.ctx); err != nil {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// Savepoint runs fn inside a savepoint. When fn fails the transaction is
// rolled back to the savepoint and stays usable; the error is returned.
func (t *Tx) Savepoint(name string, fn func(tx *Tx) error) error {
	ident := pgx.Identifier{name}.Sanitize()
	if _, err := t.tx.Exec(t.ctx, "SAVEPOINT "+ident); err != nil {
		return fmt.Errorf("failed to create savepoint %s: %w", name, err)
	}

	if err := fn(t); err != nil {
		if _, rbErr := t.tx.Exec(t.ctx, "ROLLBACK TO SAVEPOINT "+ident); rbErr != nil {
			return fmt.Errorf("%w (rollback to savepoint %s: %v)", err, name, rbErr)
		}
		return err
	}

	if _, err := t.tx.Exec(t.ctx, "RELEASE SAVEPOINT "+ident); err != nil {
		return fmt.Errorf("failed to release savepoint %s: %w", name, err)
	}
	return nil
}
