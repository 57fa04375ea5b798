// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package constants provides centralized, immutable values for the entire platform.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Burst Guard: In-process token bucket sizing.
  - Headers and Fields: Names shared by middleware and handlers.
  - Store Namespaces: Logical partitions of the key-value store.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "gatekeep"
	AppVersion = "0.1.0-dev"

	// LinkIssuer is the 'iss' claim of emailed link tokens.
	LinkIssuer = "gatekeep"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second

	// SweepInterval is how often the memory store drops expired entries.
	SweepInterval = time.Minute
)

// # Burst Guard

const (
	// DefaultBurstRPS is the sustained requests per second allowed per IP.
	DefaultBurstRPS = 20.0

	// DefaultBurstSize is the token bucket capacity per IP.
	DefaultBurstSize = 40

	// BurstCleanupInterval is how often idle IP entries are removed from memory.
	BurstCleanupInterval = 1 * time.Minute

	// BurstClientTTL is how long a client must be idle before its entry is deleted.
	BurstClientTTL = 3 * time.Minute
)

// # HTTP Headers

const (
	HeaderXRequestID    = "X-Request-ID"
	HeaderXRealIP       = "X-Real-IP"
	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderOrigin        = "Origin"
)

// # JSON Field Identifiers

const (
	FieldError   = "error"
	FieldCode    = "code"
	FieldStatus  = "status"
	FieldApp     = "app"
	FieldVersion = "version"
	FieldChecks  = "checks"
)

// # Store Namespaces

const (
	NamespaceSessions  = "sessions"
	NamespaceUsers     = "users"
	NamespaceAudit     = "audit"
	NamespaceRateLimit = "ratelimit"
	NamespaceCache     = "cache"
)
