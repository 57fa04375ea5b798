// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package kv

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// sweepInterval is how often expired entries are physically removed.
const sweepInterval = 5 * time.Minute

// memoryEntry wraps a value with its absolute expiry.
type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (entry memoryEntry) expired(now time.Time) bool {
	return !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt)
}

// MemoryStore is an in-process [Store] used for local development and tests.
//
// # Concurrency
//
// Safe for concurrent use. State is local to the process, so it never
// enforces anything across replicas.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	maxKeys int
	now     func() time.Time

	// nextExpiry is no later than the earliest TTL among entries, or zero
	// when none expire. A capped Put only sweeps once it has passed.
	nextExpiry time.Time
}

// MemoryOption customises a [MemoryStore].
type MemoryOption func(*MemoryStore)

// WithMaxKeys caps the number of live keys. Writes of new keys beyond the cap
// fail with [ErrQuotaExceeded], mimicking a hosted store's write limit.
func WithMaxKeys(max int) MemoryOption {
	return func(store *MemoryStore) { store.maxKeys = max }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(store *MemoryStore) { store.now = now }
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(options ...MemoryOption) *MemoryStore {
	store := &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
	for _, option := range options {
		option(store)
	}
	return store
}

// Get implements [Store].
func (store *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	store.mu.RLock()
	entry, found := store.entries[key]
	store.mu.RUnlock()

	if !found || entry.expired(store.now()) {
		return nil, ErrNotFound
	}

	// Callers own the returned slice
	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

// Put implements [Store].
func (store *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	now := store.now()

	store.mu.Lock()
	defer store.mu.Unlock()

	if _, exists := store.entries[key]; !exists && store.maxKeys > 0 && len(store.entries) >= store.maxKeys {
		if !store.nextExpiry.IsZero() && !now.Before(store.nextExpiry) {
			store.sweepLocked(now)
		}
		if len(store.entries) >= store.maxKeys {
			return ErrQuotaExceeded
		}
	}

	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
		if store.nextExpiry.IsZero() || entry.expiresAt.Before(store.nextExpiry) {
			store.nextExpiry = entry.expiresAt
		}
	}
	store.entries[key] = entry
	return nil
}

// Delete implements [Store].
func (store *MemoryStore) Delete(_ context.Context, key string) error {
	store.mu.Lock()
	delete(store.entries, key)
	store.mu.Unlock()
	return nil
}

// List implements [Store].
func (store *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	now := store.now()

	store.mu.RLock()
	defer store.mu.RUnlock()

	keys := make([]string, 0)
	for key, entry := range store.entries {
		if strings.HasPrefix(key, prefix) && !entry.expired(now) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Sweep removes expired entries and returns how many were dropped.
func (store *MemoryStore) Sweep() int {
	now := store.now()

	store.mu.Lock()
	defer store.mu.Unlock()
	return store.sweepLocked(now)
}

// RunSweeper sweeps expired entries until context is cancelled.
func (store *MemoryStore) RunSweeper(context context.Context, logger *slog.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := store.Sweep(); removed > 0 {
				logger.Debug("kv_memory_swept", slog.Int("expired", removed))
			}
		case <-context.Done():
			return
		}
	}
}

func (store *MemoryStore) sweepLocked(now time.Time) int {
	removed := 0
	store.nextExpiry = time.Time{}
	for key, entry := range store.entries {
		if entry.expired(now) {
			delete(store.entries, key)
			removed++
			continue
		}
		if !entry.expiresAt.IsZero() && (store.nextExpiry.IsZero() || entry.expiresAt.Before(store.nextExpiry)) {
			store.nextExpiry = entry.expiresAt
		}
	}
	return removed
}
