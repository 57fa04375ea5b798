// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package kv defines the key-value storage contract shared by every stateful
component (sessions, users, audit events, rate-limit counters, caches).

Architecture:

  - Store: Minimal Get/Put/Delete/List surface with per-key TTL.
  - Namespace: Logical partitioning of one physical store by key prefix.
  - Backends: Redis (primary), PostgreSQL and an in-process memory store.

The store is treated as eventually consistent. No operation offers
compare-and-swap semantics, so callers must tolerate lost updates.
*/
package kv

import (
	"context"
	"errors"
	"strings"
	"time"
)

// # Sentinel Errors

var (
	// ErrNotFound is returned by Get when the key is absent or expired.
	ErrNotFound = errors.New("kv: key not found")

	// ErrQuotaExceeded marks a write rejected by the backend because a storage
	// or write-rate limit has been reached. Callers downgrade it to a warning.
	ErrQuotaExceeded = errors.New("kv: quota exceeded")
)

// # Contract

// Store is a TTL-capable key-value store.
type Store interface {

	/*
		Get returns the value stored under key.

		Returns:
		  - []byte: Raw value
		  - error: ErrNotFound if absent or expired, otherwise backend failures
	*/
	Get(context context.Context, key string) ([]byte, error)

	/*
		Put stores value under key. A zero ttl keeps the entry until deleted.

		Returns:
		  - error: ErrQuotaExceeded or backend failures
	*/
	Put(context context.Context, key string, value []byte, ttl time.Duration) error

	/*
		Delete removes key. Deleting an absent key is not an error.
	*/
	Delete(context context.Context, key string) error

	/*
		List returns every live key starting with prefix. Order is unspecified.
	*/
	List(context context.Context, prefix string) ([]string, error)
}

// IsQuota reports whether err signals a backend quota condition.
func IsQuota(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// # Namespacing

// namespaced prefixes every key with "<name>:".
type namespaced struct {
	store  Store
	prefix string
}

// Namespace returns a view of store whose keys live under name.
func Namespace(store Store, name string) Store {
	return &namespaced{store: store, prefix: name + ":"}
}

func (n *namespaced) Get(context context.Context, key string) ([]byte, error) {
	return n.store.Get(context, n.prefix+key)
}

func (n *namespaced) Put(context context.Context, key string, value []byte, ttl time.Duration) error {
	return n.store.Put(context, n.prefix+key, value, ttl)
}

func (n *namespaced) Delete(context context.Context, key string) error {
	return n.store.Delete(context, n.prefix+key)
}

func (n *namespaced) List(context context.Context, prefix string) ([]string, error) {
	keys, err := n.store.List(context, n.prefix+prefix)
	if err != nil {
		return nil, err
	}

	// Hand back keys relative to the namespace
	for i, key := range keys {
		keys[i] = strings.TrimPrefix(key, n.prefix)
	}
	return keys, nil
}
