// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/taibuivan/gatekeep/internal/platform/ctxutil"
	"github.com/taibuivan/gatekeep/internal/platform/metrics"
)

// throttleWindow is the rolling period of the write cap.
const throttleWindow = time.Hour

// ThrottledLogger caps writes per rolling hour to bound write amplification
// under abuse.
//
// # Scope
//
// The counter is process-local. Each replica enforces its own cap, so the
// fleet-wide total is approximate. That is enough to bound worst-case writes.
type ThrottledLogger struct {
	next    Recorder
	maxRate int
	metrics *metrics.Metrics
	now     func() time.Time

	mu          sync.Mutex
	windowStart time.Time
	count       int
	warned      bool
}

// NewThrottledLogger wraps next with a cap of maxPerHour writes.
// A non-positive cap disables throttling.
func NewThrottledLogger(next Recorder, maxPerHour int, metrics *metrics.Metrics) *ThrottledLogger {
	return &ThrottledLogger{next: next, maxRate: maxPerHour, metrics: metrics, now: time.Now}
}

// WithClock overrides the time source. Intended for tests.
func (throttled *ThrottledLogger) WithClock(now func() time.Time) *ThrottledLogger {
	throttled.now = now
	return throttled
}

// LogEvent forwards to the wrapped recorder unless the hourly cap is spent.
func (throttled *ThrottledLogger) LogEvent(context context.Context, kind string, details map[string]any) Outcome {
	if !throttled.admit(context) {
		throttled.metrics.AuditEvent(Throttled.String())
		return Throttled
	}
	return throttled.next.LogEvent(context, kind, details)
}

// Remaining returns how many writes the current window still allows.
func (throttled *ThrottledLogger) Remaining() int {
	throttled.mu.Lock()
	defer throttled.mu.Unlock()

	throttled.rollLocked(throttled.now())
	if throttled.maxRate <= 0 {
		return -1
	}
	return throttled.maxRate - throttled.count
}

func (throttled *ThrottledLogger) admit(context context.Context) bool {
	if throttled.maxRate <= 0 {
		return true
	}

	throttled.mu.Lock()
	defer throttled.mu.Unlock()

	throttled.rollLocked(throttled.now())

	if throttled.count >= throttled.maxRate {
		// Warn once per window
		if !throttled.warned {
			throttled.warned = true
			ctxutil.GetLogger(context).WarnContext(context, "audit_hourly_cap_reached",
				slog.Int("max_per_hour", throttled.maxRate),
			)
		}
		return false
	}

	throttled.count++
	return true
}

// rollLocked starts a fresh window once the current one is an hour old.
func (throttled *ThrottledLogger) rollLocked(now time.Time) {
	if throttled.windowStart.IsZero() || now.Sub(throttled.windowStart) >= throttleWindow {
		throttled.windowStart = now
		throttled.count = 0
		throttled.warned = false
	}
}
