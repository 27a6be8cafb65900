// Package store is the Time-Series Store: a TimescaleDB-backed persistence
// layer for samples, logs, alert state, device metadata and the on-demand
// collection-request queue (§4.3). It owns no business logic beyond
// idempotent writes, resolution-aware reads, and schema-level retention.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Config controls the pgx connection pool. Mirrors the pool-sizing
// conventions seen across the pack's pgxpool users: a small floor to avoid
// cold-start latency, a ceiling well under Postgres's default max_connections.
type Config struct {
	DSN             string
	MinConns        int32
	MaxConns        int32
	MaxConnLifetime time.Duration
	StatementTimeout time.Duration
}

// DefaultConfig returns the §4.3 pool defaults.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:              dsn,
		MinConns:         2,
		MaxConns:         10,
		MaxConnLifetime:  time.Hour,
		StatementTimeout: 30 * time.Second,
	}
}

// Store wraps a pgxpool.Pool with PANfm's query surface. All methods take a
// context and return explicit errors; none panic on bad input.
type Store struct {
	pool   *pgxpool.Pool
	log    zerolog.Logger
	stmtTO time.Duration
}

// Open builds the pool and verifies connectivity with a Ping. Callers should
// call Close when done.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("store: parsing DSN: %w", err)
	}
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("store: creating pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping failed: %w", err)
	}

	return &Store{pool: pool, log: logger.With().Str("component", "store").Logger(), stmtTO: cfg.StatementTimeout}, nil
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

// Ready reports whether the pool can currently reach the database, for the
// API server's /health readiness contract (§6).
func (s *Store) Ready(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx) == nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.stmtTO)
}
