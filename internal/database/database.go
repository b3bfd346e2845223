// Package database provides PostgreSQL connection management using pgx.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/config"
)

const (
	applicationName = "andres-backstage"

	connectAttempts = 5
	connectDelay    = 2 * time.Second
)

// DB bundles the pool with its transaction manager and query tracer.
type DB struct {
	Pool      *pgxpool.Pool
	TxManager *TxManager
	Tracer    *SlowQueryTracer
	logger    *zap.Logger
}

// New opens the pool and waits for PostgreSQL to answer a ping. Startup
// in a fresh compose stack often races the database, so a few failed
// pings are tolerated before giving up.
func New(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	tracer := NewSlowQueryTracer(DefaultSlowQueryThreshold, logger)
	poolConfig, err := PoolConfig(cfg, tracer)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := waitReady(ctx, pool.Ping, connectAttempts, connectDelay, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Name),
		zap.Int("max_connections", cfg.MaxConnections),
	)

	return &DB{
		Pool:      pool,
		TxManager: NewTxManager(pool, logger),
		Tracer:    tracer,
		logger:    logger,
	}, nil
}

// PoolConfig translates cfg into pgxpool settings with tracer attached.
func PoolConfig(cfg *config.DatabaseConfig, tracer *SlowQueryTracer) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	if cfg.MaxConnections > 0 {
		pc.MaxConns = int32(cfg.MaxConnections)
	}
	if cfg.MaxIdleConnections > 0 && cfg.MaxIdleConnections <= cfg.MaxConnections {
		pc.MinConns = int32(cfg.MaxIdleConnections)
	}
	if cfg.ConnectionMaxLifetime > 0 {
		pc.MaxConnLifetime = cfg.ConnectionMaxLifetime
	}
	pc.MaxConnIdleTime = 5 * time.Minute
	pc.HealthCheckPeriod = time.Minute
	pc.ConnConfig.RuntimeParams["application_name"] = applicationName
	if tracer != nil {
		pc.ConnConfig.Tracer = tracer
	}
	return pc, nil
}

// waitReady calls ping up to attempts times, sleeping delay in between.
func waitReady(ctx context.Context, ping func(context.Context) error, attempts int, delay time.Duration, logger *zap.Logger) error {
	var err error
	for i := 1; i <= attempts; i++ {
		if err = ping(ctx); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		logger.Warn("database not ready",
			zap.Int("attempt", i),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

// Close closes the connection pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info("database connection closed")
	}
}

// Ping is the readiness probe.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Stats returns current pool statistics.
func (db *DB) Stats() *pgxpool.Stat {
	return db.Pool.Stat()
}
