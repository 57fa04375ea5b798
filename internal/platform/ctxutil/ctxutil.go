// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package ctxutil reads and writes the per-request values that middleware
// attaches for handlers, services and the audit logger further down.
package ctxutil

import (
	"context"
	"log/slog"

	"github.com/taibuivan/gatekeep/internal/platform/ctxkey"
)

// lookup returns the value under key, or the zero T when absent or mistyped.
func lookup[T any](ctx context.Context, key any) (T, bool) {
	value, ok := ctx.Value(key).(T)
	return value, ok
}

// # Correlation

// WithRequestID attaches the X-Request-ID of the current request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxkey.KeyRequestID, id)
}

// GetRequestID returns the request ID, or "" outside a request.
func GetRequestID(ctx context.Context) string {
	id, _ := lookup[string](ctx, ctxkey.KeyRequestID)
	return id
}

// # Client

// WithClientIP attaches the resolved client address. Rate limits, sessions
// and audit events all key on it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxkey.KeyClientIP, ip)
}

// GetClientIP returns the client address, or "" outside a request.
func GetClientIP(ctx context.Context) string {
	ip, _ := lookup[string](ctx, ctxkey.KeyClientIP)
	return ip
}

// # Logging

// WithLogger attaches a request-scoped logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxkey.KeyLogger, logger)
}

// GetLogger returns the request-scoped logger, falling back to [slog.Default]
// for background work.
func GetLogger(ctx context.Context) *slog.Logger {
	if logger, ok := lookup[*slog.Logger](ctx, ctxkey.KeyLogger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}
