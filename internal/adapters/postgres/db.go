package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ff-einsatz/hydrantmap/internal/pkg/config"
)

// DB is the connection pool shared by the cluster and record repositories.
type DB struct {
	Pool *pgxpool.Pool
}

// PoolOption tunes the pool before it connects.
type PoolOption func(*pgxpool.Config)

// WithPoolSize bounds the pool. Zero values keep the pgx defaults.
func WithPoolSize(maxConns, minConns int32) PoolOption {
	return func(c *pgxpool.Config) {
		if maxConns > 0 {
			c.MaxConns = maxConns
		}
		if minConns > 0 && minConns <= c.MaxConns {
			c.MinConns = minConns
		}
	}
}

// WithConnLifetime recycles connections older than d.
func WithConnLifetime(d time.Duration) PoolOption {
	return func(c *pgxpool.Config) {
		if d > 0 {
			c.MaxConnLifetime = d
		}
	}
}

// PoolOptions maps the database section of the configuration onto pool options.
func PoolOptions(c config.DatabaseConfig) []PoolOption {
	return []PoolOption{
		WithPoolSize(c.MaxConns, c.MinConns),
		WithConnLifetime(time.Duration(c.ConnLifetimeMinutes) * time.Minute),
	}
}

// New opens the pool and fails unless the server answers a ping.
func New(ctx context.Context, dsn string, opts ...PoolOption) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	for _, o := range opts {
		o(cfg)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping %s:%d: %w", cfg.ConnConfig.Host, cfg.ConnConfig.Port, err)
	}
	return &DB{Pool: pool}, nil
}

// Ping answers the readiness probe.
func (db *DB) Ping(ctx context.Context) error { return db.Pool.Ping(ctx) }

// Stat feeds the pool gauges.
func (db *DB) Stat() *pgxpool.Stat { return db.Pool.Stat() }

func (db *DB) Close() { db.Pool.Close() }
