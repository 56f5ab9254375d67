// Package postgres opens the analyzer's lib/pq connection pool and applies
// versioned schema steps.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/config"
)

type Client struct {
	DB     *sql.DB
	logger *slog.Logger
}

// New opens the pool and pings, failing fast when the database is down.
func New(cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &Client{DB: db, logger: slog.Default().With("component", "postgres")}, nil
}

const migrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	component  TEXT NOT NULL,
	step       INTEGER NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (component, step)
)`

// Migrate applies the steps of component that have not been applied yet.
// Steps are append-only: step i is recorded once and never re-run. An
// advisory lock keyed by component serialises concurrent instances.
func (c *Client) Migrate(ctx context.Context, component string, steps ...string) error {
	return c.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey(component)); err != nil {
			return fmt.Errorf("locking %s migrations: %w", component, err)
		}
		if _, err := tx.ExecContext(ctx, migrationsTable); err != nil {
			return fmt.Errorf("creating schema_migrations: %w", err)
		}
		var applied int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM schema_migrations WHERE component = $1`, component,
		).Scan(&applied); err != nil {
			return fmt.Errorf("reading %s migrations: %w", component, err)
		}
		for i := applied; i < len(steps); i++ {
			if _, err := tx.ExecContext(ctx, steps[i]); err != nil {
				return fmt.Errorf("applying %s step %d: %w", component, i, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (component, step) VALUES ($1, $2)`, component, i,
			); err != nil {
				return fmt.Errorf("recording %s step %d: %w", component, i, err)
			}
		}
		if applied < len(steps) {
			c.logger.Info("schema migrated", "component", component, "from", applied, "to", len(steps))
		}
		return nil
	})
}

func lockKey(component string) int64 {
	h := fnv.New64a()
	h.Write([]byte("qya-migrate:" + component))
	return int64(h.Sum64())
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *Client) Close() error {
	return c.DB.Close()
}

// InTx runs fn in a transaction, committing if it returns nil.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			c.logger.Error("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
