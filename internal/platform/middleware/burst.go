// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/taibuivan/gatekeep/internal/platform/constants"
	"github.com/taibuivan/gatekeep/internal/platform/ctxutil"
)

// # Burst Guard

type burstClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

/*
BurstGuard is an in-process token bucket per client IP.

It sits in front of the store-backed sliding window limiter and absorbs
floods before they reach the key-value store. State is local to the process.
*/
type BurstGuard struct {
	mu      sync.Mutex
	clients map[string]*burstClient
	rps     rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
}

// NewBurstGuard creates a guard allowing rps sustained requests with the given burst.
// Non-positive values fall back to the defaults.
func NewBurstGuard(rps float64, burst int) *BurstGuard {
	if rps <= 0 {
		rps = constants.DefaultBurstRPS
	}
	if burst <= 0 {
		burst = constants.DefaultBurstSize
	}
	return &BurstGuard{
		clients: make(map[string]*burstClient),
		rps:     rate.Limit(rps),
		burst:   burst,
		ttl:     constants.BurstClientTTL,
		now:     time.Now,
	}
}

// WithClock overrides the time source.
func (guard *BurstGuard) WithClock(now func() time.Time) *BurstGuard {
	guard.now = now
	return guard
}

// Allow reports whether client may proceed and consumes one token.
func (guard *BurstGuard) Allow(client string) bool {
	guard.mu.Lock()
	defer guard.mu.Unlock()

	now := guard.now()
	entry, found := guard.clients[client]
	if !found {
		entry = &burstClient{limiter: rate.NewLimiter(guard.rps, guard.burst)}
		guard.clients[client] = entry
	}
	entry.lastSeen = now

	return entry.limiter.AllowN(now, 1)
}

// Cleanup drops clients idle for longer than the client TTL and returns how many were removed.
func (guard *BurstGuard) Cleanup() int {
	guard.mu.Lock()
	defer guard.mu.Unlock()

	now := guard.now()
	removed := 0
	for client, entry := range guard.clients {
		if now.Sub(entry.lastSeen) > guard.ttl {
			delete(guard.clients, client)
			removed++
		}
	}
	return removed
}

// Run periodically cleans up idle clients until context is cancelled.
func (guard *BurstGuard) Run(context context.Context) {
	ticker := time.NewTicker(constants.BurstCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			guard.Cleanup()
		case <-context.Done():
			return
		}
	}
}

// Middleware rejects requests over the burst budget with a JSON 429.
//
// Must be registered AFTER [RequestID] so the client IP is known.
func (guard *BurstGuard) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			client := ctxutil.GetClientIP(request.Context())
			if client == "" {
				client = remoteHost(request)
			}

			if !guard.Allow(client) {
				writer.Header().Set("Retry-After", "1")
				writeError(writer, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}
