// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// sqlStateInsufficientResources is the SQLSTATE class for disk_full,
// out_of_memory and too_many_connections.
const sqlStateInsufficientResources = "53"

// likeEscaper escapes LIKE metacharacters in a literal prefix.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// PostgresStore implements [Store] on the kv_entries table.
//
// Expired rows stay invisible to every read and are removed lazily on Get
// and in bulk by [PostgresStore.DeleteExpired].
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an already connected pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Get implements [Store].
func (store *PostgresStore) Get(context context.Context, key string) ([]byte, error) {
	const query = `
		SELECT value, expires_at
		FROM kv_entries
		WHERE key = $1`

	var value []byte
	var expiresAt *time.Time

	err := store.pool.QueryRow(context, query, key).Scan(&value, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("kv_postgres_get_failed: %w", err)
	}

	// Lazily evict rows that outlived their TTL
	if expiresAt != nil && !time.Now().Before(*expiresAt) {
		_, _ = store.pool.Exec(context, `DELETE FROM kv_entries WHERE key = $1 AND expires_at <= now()`, key)
		return nil, ErrNotFound
	}

	return value, nil
}

// Put implements [Store] as an upsert.
func (store *PostgresStore) Put(context context.Context, key string, value []byte, ttl time.Duration) error {
	const query = `
		INSERT INTO kv_entries (key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = now()`

	var expiresAt *time.Time
	if ttl > 0 {
		deadline := time.Now().Add(ttl)
		expiresAt = &deadline
	}

	if _, err := store.pool.Exec(context, query, key, value, expiresAt); err != nil {
		return translatePostgresError("kv_postgres_put_failed", err)
	}
	return nil
}

// Delete implements [Store].
func (store *PostgresStore) Delete(context context.Context, key string) error {
	if _, err := store.pool.Exec(context, `DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("kv_postgres_delete_failed: %w", err)
	}
	return nil
}

// List implements [Store].
func (store *PostgresStore) List(context context.Context, prefix string) ([]string, error) {
	const query = `
		SELECT key
		FROM kv_entries
		WHERE key LIKE $1 ESCAPE '\'
		  AND (expires_at IS NULL OR expires_at > now())`

	rows, err := store.pool.Query(context, query, likeEscaper.Replace(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("kv_postgres_list_failed: %w", err)
	}

	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("kv_postgres_list_scan_failed: %w", err)
	}
	return keys, nil
}

// DeleteExpired physically removes rows whose TTL has elapsed.
func (store *PostgresStore) DeleteExpired(context context.Context) (int64, error) {
	tag, err := store.pool.Exec(context, `DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("kv_postgres_delete_expired_failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// translatePostgresError maps resource exhaustion onto [ErrQuotaExceeded].
func translatePostgresError(action string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, sqlStateInsufficientResources) {
		return fmt.Errorf("%s: %w: %v", action, ErrQuotaExceeded, err)
	}
	return fmt.Errorf("%s: %w", action, err)
}
