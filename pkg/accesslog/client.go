// Package accesslog is the thin query surface over the columnar access
// log store. It exposes row-tuple queries and the two auxiliary-table
// replace operations (user agents, persistent users) that gate the
// detectors' candidate view. Deliberately unopinionated about SQL
// dialect: callers hand it complete statements.
package accesslog

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"

	"github.com/tempesta-tech/webshield/internal/errors"
)

// Row is one result tuple: primitive scalars in column order.
type Row []any

// Config is the access-log connection surface, sourced from
// internal/config.Config's access-log fields.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Table    string
}

func (c Config) connString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, c.Database)
}

// Client is a breaker-protected pgxpool client over the access-log
// store and its two auxiliary tables.
type Client struct {
	pool    *pgxpool.Pool
	table   string
	breaker *gobreaker.CircuitBreaker
	log     logr
}

type logr interface {
	Error(err error, msg string, keysAndValues ...any)
}

// Connect opens a pool against cfg, retrying the initial ping with
// exponential backoff, and wires a circuit breaker around subsequent
// queries so a database outage degrades to fast failures instead of
// piling up blocked goroutines.
func Connect(ctx context.Context, cfg Config, log logr) (*Client, error) {
	pool, err := pgxpool.New(ctx, cfg.connString())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeTransientStore, "creating access-log pool")
	}

	ping := func() error {
		return pool.Ping(ctx)
	}

	if err := backoff.Retry(ping, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeTransientStore, "connecting to access-log store")
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "access-log",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{pool: pool, table: cfg.Table, breaker: breaker, log: log}, nil
}

// Close releases the underlying pool.
func (c *Client) Close() {
	c.pool.Close()
}

// Query issues one read against the columnar store and returns rows as
// tuples of primitive scalars. Connection and query failures are
// returned as a TransientStoreError wrapping the original cause; the
// caller (the detection loop) treats them as iteration failures.
func (c *Client) Query(ctx context.Context, sql string, args ...any) ([]Row, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		rows, err := c.pool.Query(ctx, sql, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []Row
		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				return nil, err
			}
			out = append(out, Row(values))
		}
		return out, rows.Err()
	})
	if err != nil {
		if c.log != nil {
			c.log.Error(err, "access-log query failed")
		}
		return nil, errors.Wrap(err, errors.ErrorTypeTransientStore, "querying access log")
	}

	rows, _ := result.([]Row)
	return rows, nil
}

// ReplaceUserAgents replaces the contents of the user_agents side table
// with agents, inside one transaction.
func (c *Client) ReplaceUserAgents(ctx context.Context, agents []string) error {
	return c.replaceTable(ctx, "user_agents", "user_agent", agents)
}

// ReplacePersistentUsers replaces the contents of the persistent_users
// side table with addrs, inside one transaction.
func (c *Client) ReplacePersistentUsers(ctx context.Context, addrs []string) error {
	return c.replaceTable(ctx, "persistent_users", "address", addrs)
}

func (c *Client) replaceTable(ctx context.Context, table, column string, values []string) error {
	_, err := c.breaker.Execute(func() (any, error) {
		tx, err := c.pool.Begin(ctx)
		if err != nil {
			return nil, err
		}
		defer tx.Rollback(ctx)

		if _, err := tx.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", table)); err != nil {
			return nil, err
		}

		rows := make([][]any, len(values))
		for i, v := range values {
			rows[i] = []any{v}
		}

		if len(rows) > 0 {
			if _, err := tx.CopyFrom(ctx, pgx.Identifier{table}, []string{column}, pgx.CopyFromRows(rows)); err != nil {
				return nil, err
			}
		}

		return nil, tx.Commit(ctx)
	})
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeTransientStore, "replacing %s", table)
	}
	return nil
}
