package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB is a pooled PostgreSQL connection. It runs the statements built by the
// adapter, logging each one at debug level.
type DB struct {
	pool   *pgxpool.Pool
	config *Config
	logger zerolog.Logger
}

// Config represents database configuration.
type Config struct {
	// URL takes precedence over the individual connection fields.
	URL      string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	MaxConns int32
	MinConns int32

	Logger zerolog.Logger
}

// NewDB creates a new DB instance from a connection pool.
func NewDB(pool *pgxpool.Pool, logger zerolog.Logger) *DB {
	return &DB{
		pool:   pool,
		config: &Config{},
		logger: logger,
	}
}

// Connect creates a new DB instance by connecting to PostgreSQL.
func Connect(ctx context.Context, config *Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(config.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	config.Logger.Debug().
		Str("host", poolConfig.ConnConfig.Host).
		Str("database", poolConfig.ConnConfig.Database).
		Int32("max_conns", poolConfig.MaxConns).
		Msg("connected")

	return &DB{
		pool:   pool,
		config: config,
		logger: config.Logger,
	}, nil
}

// ConnectWithURL creates a new DB instance using a connection URL.
func ConnectWithURL(ctx context.Context, url string, logger zerolog.Logger) (*DB, error) {
	return Connect(ctx, &Config{URL: url, Logger: logger})
}

// Pool returns the underlying pgxpool.Pool.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Close closes the database connection pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Ping verifies the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	if db.pool == nil {
		return ErrNoConnection
	}
	return db.pool.Ping(ctx)
}

// BeginTx starts a new transaction with options.
func (db *DB) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	if db.pool == nil {
		return nil, ErrNoConnection
	}
	return db.pool.BeginTx(ctx, txOptions)
}

// Exec executes a statement without returning any rows.
func (db *DB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if db.pool == nil {
		return pgconn.CommandTag{}, ErrNoConnection
	}
	start := time.Now()
	tag, err := db.pool.Exec(ctx, sql, args...)
	db.log(sql, args, start, err)
	if err != nil {
		return tag, &QueryError{Query: sql, Err: err}
	}
	return tag, nil
}

// Query executes a query that returns rows.
func (db *DB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if db.pool == nil {
		return nil, ErrNoConnection
	}
	start := time.Now()
	rows, err := db.pool.Query(ctx, sql, args...)
	db.log(sql, args, start, err)
	if err != nil {
		return nil, &QueryError{Query: sql, Err: err}
	}
	return rows, nil
}

// QueryRow executes a query that returns at most one row. Scan errors are
// reported as QueryError; pgx.ErrNoRows still matches with errors.Is.
func (db *DB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if db.pool == nil {
		return errRow{err: ErrNoConnection}
	}
	start := time.Now()
	row := db.pool.QueryRow(ctx, sql, args...)
	db.log(sql, args, start, nil)
	return queryRow{row: row, sql: sql}
}

func (db *DB) log(sql string, args []any, start time.Time, err error) {
	ev := db.logger.Debug()
	if err != nil {
		ev = db.logger.Warn().Err(err)
	}
	ev.Str("sql", sql).
		Int("args", len(args)).
		Dur("elapsed", time.Since(start)).
		Msg("statement")
}

type queryRow struct {
	row pgx.Row
	sql string
}

func (r queryRow) Scan(dest ...any) error {
	if err := r.row.Scan(dest...); err != nil {
		return &QueryError{Query: r.sql, Err: err}
	}
	return nil
}

type errRow struct {
	err error
}

func (r errRow) Scan(...any) error {
	return r.err
}

// ConnString returns URL when set, else a key/value connection string built
// from the individual fields.
func (c *Config) ConnString() string {
	if c.URL != "" {
		return c.URL
	}

	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	port := c.Port
	if port == 0 {
		port = 5432
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		port,
		c.User,
		c.Password,
		c.Database,
		sslMode,
	)
}

// DefaultConfig returns a default database configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5432,
		Database: "postgres",
		User:     "postgres",
		Password: "",
		SSLMode:  "prefer",
		MaxConns: 10,
		MinConns: 2,
		Logger:   zerolog.Nop(),
	}
}
