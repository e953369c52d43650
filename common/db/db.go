package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/scaleflower/otrs-updater/common/config"
	"github.com/scaleflower/otrs-updater/common/logger"
)

const (
	// connectTimeout bounds the initial reachability probe so a down
	// database fails startup quickly instead of hanging the sidecar
	connectTimeout = 5 * time.Second

	// healthTimeout keeps /health snappy even when the pool is saturated
	// by a long-running audit query
	healthTimeout = 2 * time.Second
)

// DB is the persistence handle for update state: the singleton status row
// plus the run and step audit trail. The pool is sized small since the
// updater serves a handful of operators, not end-user traffic.
type DB struct {
	*pgxpool.Pool
	log *logger.Logger
}

// Option adjusts connection setup
type Option func(*settings)

type settings struct {
	migrate bool
}

// WithMigrations applies all pending embedded schema migrations right
// after the pool connects, before any repository touches the tables
func WithMigrations() Option {
	return func(s *settings) {
		s.migrate = true
	}
}

// New connects to Postgres and verifies reachability. With WithMigrations
// the update schema is brought current before New returns.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts ...Option) (*DB, error) {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxIdleTime
	poolConfig.ConnConfig.ConnectTimeout = connectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if s.migrate {
		if err := RunMigrations(cfg.DatabaseURL()); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("update schema current", "db", cfg.Database.Database)
	}

	log.Info("update store connected",
		"host", cfg.Database.Host,
		"db", cfg.Database.Database,
		"max_conns", cfg.Database.MaxConns,
	)

	return &DB{Pool: pool, log: log}, nil
}

// Close releases the connection pool
func (db *DB) Close() {
	db.log.Info("closing update store")
	db.Pool.Close()
}

// Health reports whether the update store is reachable
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	return db.Pool.Ping(ctx)
}
