// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package session implements opaque-token, server-side sessions on top of the
key-value store.

# Lifecycle

  - Create: Random identifier handed to the client, record stored under its digest.
  - Get: Validity is re-derived on every read; violations delete the record.
  - Refresh: LastActivity is bumped at most once per refresh interval.
  - Destroy: Idempotent delete on logout.

A session is valid iff now < ExpiresAt AND now-LastActivity < IdleTimeout.
Freshness is best-effort; validity is not.
*/
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/gatekeep/internal/platform/ctxutil"
	"github.com/taibuivan/gatekeep/internal/platform/kv"
	"github.com/taibuivan/gatekeep/internal/platform/metrics"
	"github.com/taibuivan/gatekeep/internal/platform/sec"
)

// # Defaults

const (
	// DefaultMaxAge is the absolute lifetime of a session.
	DefaultMaxAge = 7 * 24 * time.Hour

	// DefaultIdleTimeout is the maximum inactivity before a session lapses.
	DefaultIdleTimeout = 24 * time.Hour

	// DefaultRefreshInterval bounds how often LastActivity is rewritten.
	DefaultRefreshInterval = 5 * time.Minute

	// tokenBytes is the entropy of a session identifier.
	tokenBytes = 32

	// tokenLength is the base64url length of a tokenBytes identifier.
	tokenLength = 43
)

// # Domain Entities

// Record is the server-side state of one session.
type Record struct {
	Subject      string    `json:"subject"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
	IP           string    `json:"ip,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
}

// Options customises a new session.
type Options struct {
	// MaxAge overrides the manager's absolute lifetime when positive.
	MaxAge    time.Duration
	IP        string
	UserAgent string
}

// GetResult is the outcome of a session lookup.
//
// Session is nil when the caller holds no valid session. Degraded reports that
// a store failure was absorbed (refresh write refused, or read failed).
type GetResult struct {
	ID        string
	Session   *Record
	Refreshed bool
	Degraded  bool
}

// Valid reports whether a session was found.
func (result GetResult) Valid() bool {
	return result.Session != nil
}

// # Manager

// Config holds the timing policy of a [Manager].
type Config struct {
	MaxAge          time.Duration
	IdleTimeout     time.Duration
	RefreshInterval time.Duration
}

// Manager issues, validates and destroys sessions.
type Manager struct {
	store   kv.Store
	config  Config
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewManager creates a manager over store (typically the "sessions" namespace).
// Zero durations in config fall back to the package defaults.
func NewManager(store kv.Store, config Config, metrics *metrics.Metrics) *Manager {
	if config.MaxAge <= 0 {
		config.MaxAge = DefaultMaxAge
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = DefaultRefreshInterval
	}
	return &Manager{store: store, config: config, metrics: metrics, now: time.Now}
}

// WithClock overrides the time source. Intended for tests.
func (manager *Manager) WithClock(now func() time.Time) *Manager {
	manager.now = now
	return manager
}

// MaxAge returns the configured absolute lifetime.
func (manager *Manager) MaxAge() time.Duration {
	return manager.config.MaxAge
}

/*
Create issues a new session for subject.

Parameters:
  - context: context.Context
  - subject: string (the account email)
  - options: Options

Returns:
  - string: Opaque session identifier for the cookie
  - error: Entropy or storage failures
*/
func (manager *Manager) Create(context context.Context, subject string, options Options) (string, error) {
	maxAge := options.MaxAge
	if maxAge <= 0 {
		maxAge = manager.config.MaxAge
	}

	id, err := sec.GenerateSecureToken(tokenBytes)
	if err != nil {
		return "", fmt.Errorf("session_create_token_failed: %w", err)
	}

	now := manager.now()
	record := &Record{
		Subject:      subject,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(maxAge),
		IP:           options.IP,
		UserAgent:    options.UserAgent,
	}

	if err := manager.write(context, id, record, maxAge); err != nil {
		return "", fmt.Errorf("session_create_failed: %w", err)
	}

	manager.metrics.SessionCreated()
	return id, nil
}

/*
Get resolves id to a valid session.

Malformed, unknown, expired and idle identifiers all yield an absent session;
the latter two also delete the stored record. A valid session whose last
activity is older than the refresh interval is rewritten; a quota refusal of
that write is swallowed and reported through Degraded.
*/
func (manager *Manager) Get(context context.Context, id string) GetResult {
	result := GetResult{ID: id}
	if !wellFormed(id) {
		return result
	}

	logger := ctxutil.GetLogger(context)
	key := sec.HashToken(id)

	raw, err := manager.store.Get(context, key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			logger.WarnContext(context, "session_read_failed", slog.Any("error", err))
			result.Degraded = true
		}
		return result
	}

	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		logger.WarnContext(context, "session_record_corrupt", slog.Any("error", err))
		_ = manager.store.Delete(context, key)
		return result
	}

	// 1. Validity: absolute expiry, then idle timeout
	now := manager.now()
	if !now.Before(record.ExpiresAt) {
		manager.expire(context, key, "expired")
		return result
	}
	if now.Sub(record.LastActivity) >= manager.config.IdleTimeout {
		manager.expire(context, key, "idle")
		return result
	}

	result.Session = &record

	// 2. Debounced refresh
	if now.Sub(record.LastActivity) <= manager.config.RefreshInterval {
		return result
	}

	refreshed := record
	refreshed.LastActivity = now
	if err := manager.write(context, id, &refreshed, record.ExpiresAt.Sub(now)); err != nil {
		if kv.IsQuota(err) {
			logger.WarnContext(context, "session_refresh_skipped_quota", slog.Any("error", err))
			manager.metrics.SessionRefreshed("quota")
		} else {
			logger.WarnContext(context, "session_refresh_failed", slog.Any("error", err))
			manager.metrics.SessionRefreshed("error")
		}
		result.Degraded = true
		return result
	}

	manager.metrics.SessionRefreshed("ok")
	result.Session = &refreshed
	result.Refreshed = true
	return result
}

// Destroy deletes the session. Unknown or empty identifiers are not an error.
func (manager *Manager) Destroy(context context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := manager.store.Delete(context, sec.HashToken(id)); err != nil {
		return fmt.Errorf("session_destroy_failed: %w", err)
	}
	manager.metrics.SessionDestroyed("logout")
	return nil
}

// # Internals

func (manager *Manager) write(context context.Context, id string, record *Record, ttl time.Duration) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("session_encode_failed: %w", err)
	}
	return manager.store.Put(context, sec.HashToken(id), payload, ttl)
}

func (manager *Manager) expire(context context.Context, key, reason string) {
	if err := manager.store.Delete(context, key); err != nil {
		ctxutil.GetLogger(context).WarnContext(context, "session_expire_delete_failed",
			slog.String("reason", reason),
			slog.Any("error", err),
		)
	}
	manager.metrics.SessionDestroyed(reason)
}

// wellFormed rejects identifiers that could never have been issued.
func wellFormed(id string) bool {
	if len(id) != tokenLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
