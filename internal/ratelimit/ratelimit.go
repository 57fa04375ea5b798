// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package ratelimit implements a per-(action, client) sliding-window limiter
persisted in the key-value store.

# Algorithm

The window is stored as a JSON array of Unix-millisecond timestamps. Each
check prunes entries older than the window (an entry exactly one window old
still counts), compares the survivors against
the limit and, when admitted, appends now and rewrites the key with a TTL of
window + 60s so idle keys self-clean.

# Consistency

The read-modify-write is not atomic. Concurrent bursts against the same key
can admit more than the limit. This is accepted: the limiter is an abuse
deterrent, not a meter.

# Failure Policy

Fail-open. Store errors admit the request and set [Result.Degraded].
*/
package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/taibuivan/gatekeep/internal/platform/ctxutil"
	"github.com/taibuivan/gatekeep/internal/platform/kv"
	"github.com/taibuivan/gatekeep/internal/platform/metrics"
)

// ttlBuffer is added to the window when persisting so keys outlive their last entry.
const ttlBuffer = 60 * time.Second

// Result is the decision for one request.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is when the oldest counted request leaves the window.
	ResetAt time.Time
	// Degraded is set when a store failure forced a fail-open decision.
	Degraded bool
}

// RetryAfter returns the whole seconds until ResetAt, at least 1.
func (result Result) RetryAfter(now time.Time) int {
	seconds := int(result.ResetAt.Sub(now).Round(time.Second) / time.Second)
	if seconds < 1 {
		return 1
	}
	return seconds
}

// Limiter evaluates and records requests against the store.
type Limiter struct {
	store   kv.Store
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewLimiter creates a limiter over store (typically the "ratelimit" namespace).
func NewLimiter(store kv.Store, metrics *metrics.Metrics) *Limiter {
	return &Limiter{store: store, metrics: metrics, now: time.Now}
}

// WithClock overrides the time source. Intended for tests.
func (limiter *Limiter) WithClock(now func() time.Time) *Limiter {
	limiter.now = now
	return limiter
}

/*
CheckAndRecord evaluates one request for (action, client) under limit per window.

Parameters:
  - context: context.Context
  - action: string (e.g. "signup")
  - client: string (e.g. client IP)
  - limit: int
  - window: time.Duration

Returns:
  - Result: Never an error; failures surface through Result.Degraded
*/
func (limiter *Limiter) CheckAndRecord(context context.Context, action, client string, limit int, window time.Duration) Result {
	logger := ctxutil.GetLogger(context)
	now := limiter.now()
	key := action + ":" + client

	// 1. Load and prune the window
	timestamps, err := limiter.load(context, key)
	if err != nil {
		logger.WarnContext(context, "rate_limit_read_failed_fail_open",
			slog.String("action", action),
			slog.Any("error", err),
		)
		limiter.metrics.RateLimitDecision(action, "fail_open")
		return Result{Allowed: true, Limit: limit, Remaining: limit - 1, ResetAt: now.Add(window), Degraded: true}
	}

	// The window is inclusive: an entry exactly window old still counts
	cutoff := now.Add(-window).UnixMilli()
	live := timestamps[:0]
	for _, stamp := range timestamps {
		if stamp >= cutoff {
			live = append(live, stamp)
		}
	}

	// 2. Evaluate
	if len(live) >= limit {
		limiter.metrics.RateLimitDecision(action, "rejected")
		resetAt := now.Add(window)
		if len(live) > 0 {
			resetAt = fromMillis(live[0], now).Add(window)
		}
		return Result{Allowed: false, Limit: limit, Remaining: 0, ResetAt: resetAt}
	}

	// 3. Record
	live = append(live, now.UnixMilli())
	result := Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(live),
		ResetAt:   fromMillis(live[0], now).Add(window),
	}

	payload, _ := json.Marshal(live)
	if err := limiter.store.Put(context, key, payload, window+ttlBuffer); err != nil {
		event := "rate_limit_write_failed"
		if kv.IsQuota(err) {
			event = "rate_limit_write_skipped_quota"
		}
		logger.WarnContext(context, event, slog.String("action", action), slog.Any("error", err))
		limiter.metrics.RateLimitDecision(action, "fail_open")
		result.Degraded = true
		return result
	}

	limiter.metrics.RateLimitDecision(action, "allowed")
	return result
}

// fromMillis converts a stored stamp back to a time in the clock's location.
func fromMillis(stamp int64, now time.Time) time.Time {
	return time.UnixMilli(stamp).In(now.Location())
}

// load returns the stored timestamps, oldest first. Absent keys are empty windows.
func (limiter *Limiter) load(context context.Context, key string) ([]int64, error) {
	raw, err := limiter.store.Get(context, key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var timestamps []int64
	if err := json.Unmarshal(raw, &timestamps); err != nil {
		return nil, err
	}
	return timestamps, nil
}
