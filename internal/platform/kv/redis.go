// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// scanBatch is the COUNT hint passed to SCAN.
const scanBatch = 200

// globEscaper neutralises SCAN MATCH metacharacters in a literal prefix.
var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// RedisStore implements [Store] on top of a go-redis client.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an already connected client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get implements [Store].
func (store *RedisStore) Get(context context.Context, key string) ([]byte, error) {
	value, err := store.client.Get(context, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("kv_redis_get_failed: %w", err)
	}
	return value, nil
}

// Put implements [Store].
func (store *RedisStore) Put(context context.Context, key string, value []byte, ttl time.Duration) error {
	if err := store.client.Set(context, key, value, ttl).Err(); err != nil {
		return translateRedisError("kv_redis_put_failed", err)
	}
	return nil
}

// Delete implements [Store].
func (store *RedisStore) Delete(context context.Context, key string) error {
	if err := store.client.Del(context, key).Err(); err != nil {
		return fmt.Errorf("kv_redis_delete_failed: %w", err)
	}
	return nil
}

// List implements [Store] with a cursor-based SCAN.
func (store *RedisStore) List(context context.Context, prefix string) ([]string, error) {
	pattern := globEscaper.Replace(prefix) + "*"

	keys := make([]string, 0)
	iterator := store.client.Scan(context, 0, pattern, scanBatch).Iterator()
	for iterator.Next(context) {
		keys = append(keys, iterator.Val())
	}
	if err := iterator.Err(); err != nil {
		return nil, fmt.Errorf("kv_redis_list_failed: %w", err)
	}
	return keys, nil
}

// translateRedisError maps maxmemory rejections onto [ErrQuotaExceeded].
func translateRedisError(action string, err error) error {
	var redisErr redis.Error
	if errors.As(err, &redisErr) && strings.HasPrefix(redisErr.Error(), "OOM") {
		return fmt.Errorf("%s: %w: %v", action, ErrQuotaExceeded, err)
	}
	return fmt.Errorf("%s: %w", action, err)
}
