package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/comanda/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the pgx connection pool shared by the repositories in this package.
type DB struct {
	Pool *pgxpool.Pool
	log  observability.Logger
}

// New connects to PostgreSQL with retries and pool limits suited to a single
// restaurant deployment.
func New(ctx context.Context, url string, logger observability.Logger) (*DB, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	log := logger.With(observability.F("component", "postgres"))

	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	var pool *pgxpool.Pool
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolConfig)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = pool.Ping(pingCtx)
			cancel()
			if err == nil {
				break
			}
			pool.Close()
		}

		if i < maxRetries-1 {
			waitTime := time.Duration(i+1) * 2 * time.Second
			log.Error("db_connection_failed",
				observability.F("retry_in", waitTime.String()),
				observability.F("error", err),
			)
			time.Sleep(waitTime)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	return &DB{Pool: pool, log: log}, nil
}

func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// querier is the query surface shared by the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// WithinTx runs fn inside a single transaction. Repository calls made with
// the context fn receives execute on that transaction, so multi-repository
// writes commit or roll back as one unit. Reentrant: when the context
// already carries a transaction, fn joins it.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// querier returns the transaction bound to ctx when inside WithinTx,
// otherwise the pool.
func (db *DB) querier(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return db.Pool
}

// EnsureSchema creates the tables this service owns when they do not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS restaurant_tables (
			number INTEGER PRIMARY KEY,
			status VARCHAR(32) NOT NULL DEFAULT 'available',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id UUID PRIMARY KEY,
			table_number INTEGER NOT NULL REFERENCES restaurant_tables(number),
			staff_id VARCHAR(64) NOT NULL,
			status VARCHAR(32) NOT NULL,
			total NUMERIC(13,2) NOT NULL,
			receipt_id UUID,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS order_lines (
			order_id UUID NOT NULL REFERENCES orders(id),
			position INTEGER NOT NULL,
			plate_id VARCHAR(64) NOT NULL,
			plate_name VARCHAR(120) NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity >= 1),
			unit_price NUMERIC(13,2) NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (order_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS receipts (
			id UUID PRIMARY KEY,
			order_id UUID NOT NULL UNIQUE REFERENCES orders(id),
			kind VARCHAR(16) NOT NULL,
			customer_name VARCHAR(120) NOT NULL DEFAULT '',
			dni VARCHAR(8),
			ruc VARCHAR(11),
			discount NUMERIC(13,2) NOT NULL,
			subtotal NUMERIC(13,2) NOT NULL,
			igv NUMERIC(13,2) NOT NULL,
			total NUMERIC(13,2) NOT NULL,
			issued_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS plates (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(120) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			price NUMERIC(13,2) NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_table_status ON orders(table_number, status)`,
	}

	for _, stmt := range statements {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	db.log.Info("schema_ensured")
	return nil
}

// SeedTables registers physical table numbers, leaving existing rows alone.
func (db *DB) SeedTables(ctx context.Context, numbers ...int) error {
	for _, n := range numbers {
		_, err := db.Pool.Exec(ctx,
			`INSERT INTO restaurant_tables (number) VALUES ($1) ON CONFLICT (number) DO NOTHING`, n)
		if err != nil {
			return fmt.Errorf("failed to seed table %d: %w", n, err)
		}
	}
	return nil
}
