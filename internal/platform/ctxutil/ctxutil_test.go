// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ctxutil_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/gatekeep/internal/platform/ctxutil"
)

/*
TestContext_StringValues verifies request ID and client IP round trip and
default to empty outside a request.
*/
func TestContext_StringValues(t *testing.T) {
	tests := []struct {
		name  string
		with  func(context.Context, string) context.Context
		get   func(context.Context) string
		value string
	}{
		{"request_id", ctxutil.WithRequestID, ctxutil.GetRequestID, "0192b7a4-6c1e-7d3f-9a2b-3c4d5e6f7a8b"},
		{"client_ip", ctxutil.WithClientIP, ctxutil.GetClientIP, "203.0.113.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			assert.Empty(t, tt.get(ctx))
			assert.Equal(t, tt.value, tt.get(tt.with(ctx, tt.value)))
		})
	}
}

func TestContext_Logger(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, slog.Default(), ctxutil.GetLogger(ctx))

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	assert.Equal(t, logger, ctxutil.GetLogger(ctxutil.WithLogger(ctx, logger)))

	// A nil logger never escapes
	assert.Equal(t, slog.Default(), ctxutil.GetLogger(ctxutil.WithLogger(ctx, nil)))
}
