// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package kv

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/gatekeep/internal/platform/constants"
	"github.com/taibuivan/gatekeep/internal/platform/migration"
)

// # Backends

const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Connection tuning for a small key-value workload.
const (
	redisPoolSize     = 10
	redisMinIdleConns = 2
	redisDialTimeout  = 3 * time.Second
	redisIOTimeout    = 2 * time.Second

	pgMaxConns          = 10
	pgMinConns          = 2
	pgMaxConnLifetime   = 60 * time.Minute
	pgMaxConnIdleTime   = 10 * time.Minute
	pgHealthCheckPeriod = 1 * time.Minute

	connectTimeout = 5 * time.Second
	pingTimeout    = 2 * time.Second
)

// Options selects and configures a backend.
type Options struct {
	Backend       string
	RedisURL      string
	DatabaseURL   string
	MigrationPath string

	// MaxKeys caps the memory backend. Zero is unlimited.
	MaxKeys int
}

/*
Open connects the configured backend and starts its background expiry worker
when it needs one. Workers stop when context is cancelled.

Returns:
  - Store: The backend
  - func(): Releases connections; safe to defer
  - error: Connection or migration failure
*/
func Open(context context.Context, options Options, logger *slog.Logger) (Store, func(), error) {
	switch options.Backend {
	case BackendRedis:
		store, err := DialRedis(context, options.RedisURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close(logger) }, nil

	case BackendPostgres:
		if err := migration.RunUp(options.DatabaseURL, options.MigrationPath, logger); err != nil {
			return nil, nil, err
		}
		store, err := DialPostgres(context, options.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		go store.RunPurger(context, logger)
		return store, func() { store.Close(logger) }, nil

	case BackendMemory:
		store := NewMemoryStore(WithMaxKeys(options.MaxKeys))
		go store.RunSweeper(context, logger)
		logger.Warn("kv_memory_store_in_use", slog.String("note", "state is lost on restart"))
		return store, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("kv: unknown backend %q", options.Backend)
	}
}

// # Redis

// DialRedis parses redisURL, connects and verifies the server answers.
func DialRedis(ctx context.Context, redisURL string, logger *slog.Logger) (*RedisStore, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("kv: invalid redis URL: %w", err)
	}

	options.PoolSize = redisPoolSize
	options.MinIdleConns = redisMinIdleConns
	options.DialTimeout = redisDialTimeout
	options.ReadTimeout = redisIOTimeout
	options.WriteTimeout = redisIOTimeout

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("kv_redis_ping_failed: %w", err)
	}

	logger.Info("kv_redis_connected",
		slog.String("addr", options.Addr),
		slog.Int("pool_size", options.PoolSize),
	)
	return NewRedisStore(client), nil
}

// Close releases the client's connections.
func (store *RedisStore) Close(logger *slog.Logger) {
	logger.Info("kv_redis_closing")
	if err := store.client.Close(); err != nil {
		logger.Error("kv_redis_close_failed", slog.Any("error", err))
	}
}

// # PostgreSQL

// DialPostgres builds a tuned pool for dsn and verifies the database answers.
// The kv_entries table must already exist (see the migration package).
func DialPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("kv: invalid postgres DSN: %w", err)
	}

	poolConfig.MaxConns = pgMaxConns
	poolConfig.MinConns = pgMinConns
	poolConfig.MaxConnLifetime = pgMaxConnLifetime
	poolConfig.MaxConnIdleTime = pgMaxConnIdleTime
	poolConfig.HealthCheckPeriod = pgHealthCheckPeriod
	poolConfig.ConnConfig.ConnectTimeout = connectTimeout

	// Runaway statements never outlive a request
	poolConfig.AfterConnect = func(ctx context.Context, connection *pgx.Conn) error {
		timeoutQuery := fmt.Sprintf("SET statement_timeout = '%ds'", int(constants.GlobalRequestTimeout.Seconds()))
		_, err := connection.Exec(ctx, timeoutQuery)
		return err
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("kv_postgres_pool_failed: %w", err)
	}

	pingCtx, cancelPing := context.WithTimeout(ctx, pingTimeout)
	defer cancelPing()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("kv_postgres_ping_failed: %w", err)
	}

	logger.Info("kv_postgres_connected", slog.Int("max_conns", int(pool.Stat().MaxConns())))
	return NewPostgresStore(pool), nil
}

// Close releases the pool.
func (store *PostgresStore) Close(logger *slog.Logger) {
	logger.Info("kv_postgres_closing")
	store.pool.Close()
}

// RunPurger deletes lapsed rows until context is cancelled. Postgres has no
// native expiry, so without it expired rows only vanish when read.
func (store *PostgresStore) RunPurger(context context.Context, logger *slog.Logger) {
	ticker := time.NewTicker(constants.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed, err := store.DeleteExpired(context)
			if err != nil {
				logger.Warn("kv_postgres_purge_failed", slog.Any("error", err))
				continue
			}
			if removed > 0 {
				logger.Debug("kv_postgres_purged", slog.Int64("removed", removed))
			}
		case <-context.Done():
			return
		}
	}
}
