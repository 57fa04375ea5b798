// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package middleware provides the cross-cutting HTTP processing chain.

It acts as a series of decorators around the standard http.Handler, injecting
traceability, safety, and security into every request lifecycle.

Standard Stack:

  - Trace: RequestID generation and client IP resolution.
  - Log: Structured activity logging (slog).
  - Guard: In-process burst limiting, CORS and security headers.
  - Safe: Panic recovery to prevent server crashes.
*/
package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/taibuivan/gatekeep/internal/platform/constants"
	"github.com/taibuivan/gatekeep/internal/platform/ctxutil"
	"github.com/taibuivan/gatekeep/internal/session"
	"github.com/taibuivan/gatekeep/pkg/uuid"
)

// maxRequestIDLength bounds a client-supplied request ID.
const maxRequestIDLength = 64

// # Request Tracing

// RequestID attaches a correlation ID and the resolved client IP to every
// request. Forwarding headers are honoured only from proxies.
func RequestID(proxies *TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			// 1. Reuse a well-formed client ID, otherwise mint a UUIDv7
			requestID := request.Header.Get(constants.HeaderXRequestID)
			if requestID == "" || len(requestID) > maxRequestIDLength || !uuid.Valid(requestID) {
				requestID = uuid.New()
			}

			// 2. Inject into context and response headers
			ctx := ctxutil.WithRequestID(request.Context(), requestID)
			ctx = ctxutil.WithClientIP(ctx, proxies.ClientIP(request))
			writer.Header().Set(constants.HeaderXRequestID, requestID)

			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// # Activity Logging

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (recorder *statusRecorder) WriteHeader(code int) {
	recorder.status = code
	recorder.ResponseWriter.WriteHeader(code)
}

// StructuredLogger logs every request status and latency.
// It also injects a request-specific logger into the context.
func StructuredLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			startTime := time.Now()

			// 1. Create a sub-logger for this specific request
			requestLogger := logger.With(
				slog.String("request_id", ctxutil.GetRequestID(request.Context())),
				slog.String("method", request.Method),
				slog.String("path", request.URL.Path),
				slog.String("ip", ctxutil.GetClientIP(request.Context())),
			)

			// 2. Inject this logger into the context for downstream use
			ctx := ctxutil.WithLogger(request.Context(), requestLogger)
			wrappedWriter := &statusRecorder{ResponseWriter: writer, status: http.StatusOK}

			// 3. Proceed with the enriched context
			request = request.WithContext(ctx)
			next.ServeHTTP(wrappedWriter, request)

			// 4. Final log entry after the request is finished
			logLevel := slog.LevelInfo
			if wrappedWriter.status >= 500 {
				logLevel = slog.LevelError
			} else if wrappedWriter.status >= 400 {
				logLevel = slog.LevelWarn
			}

			requestLogger.Log(ctx, logLevel, "http_request_finished",
				slog.Int("status", wrappedWriter.status),
				slog.Int64("latency_ms", time.Since(startTime).Milliseconds()),
				slog.String("user_agent", request.UserAgent()),
			)
		})
	}
}

// # Reliability & Safety

// PanicRenderer writes the response for a recovered panic.
type PanicRenderer func(writer http.ResponseWriter, request *http.Request)

// PanicRecovery recovers from panics, logs the stack trace and renders a
// generic 500. A nil render writes a JSON error.
func PanicRecovery(render PanicRenderer) func(http.Handler) http.Handler {
	if render == nil {
		render = func(writer http.ResponseWriter, _ *http.Request) {
			writeError(writer, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			defer func() {
				recovered := recover()
				if recovered == nil {
					return
				}
				// Let net/http abort the connection as intended
				if recovered == http.ErrAbortHandler {
					panic(recovered)
				}

				stackTrace := make([]byte, 4096)
				length := runtime.Stack(stackTrace, false)

				ctxutil.GetLogger(request.Context()).ErrorContext(request.Context(), "panic_recovered",
					slog.Any("error", recovered),
					slog.String("stack", string(stackTrace[:length])),
				)

				render(writer, request)
			}()

			next.ServeHTTP(writer, request)
		})
	}
}

// SecurityHeaders sets conservative browser hardening headers on every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		header := writer.Header()
		header.Set("X-Content-Type-Options", "nosniff")
		header.Set("X-Frame-Options", "DENY")
		header.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		header.Set("Content-Security-Policy",
			"default-src 'self'; script-src 'self' https://challenges.cloudflare.com; "+
				"frame-src https://challenges.cloudflare.com; style-src 'self' 'unsafe-inline'; frame-ancestors 'none'")
		next.ServeHTTP(writer, request)
	})
}

// # Cross-Origin Resource Sharing

// CORS allows credentialed cross-origin calls from allowedOrigins. In
// development every origin is allowed.
func CORS(development bool, allowedOrigins ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin = strings.TrimRight(strings.TrimSpace(origin), "/"); origin != "" {
			allowed[origin] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			// 1. Check the Origin header
			origin := request.Header.Get(constants.HeaderOrigin)
			if origin == "" {
				next.ServeHTTP(writer, request)
				return
			}

			// 2. Check if the origin is allowed (strict in PROD, open in DEV)
			_, isAllowed := allowed[origin]
			isAllowed = isAllowed || development

			// 3. Inject standard CORS headers if authorized
			header := writer.Header()
			header.Add("Vary", constants.HeaderOrigin)
			if isAllowed {
				header.Set("Access-Control-Allow-Origin", origin)
				header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				header.Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, X-Request-ID")
				header.Set("Access-Control-Expose-Headers", "Content-Length, X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After")
				header.Set("Access-Control-Allow-Credentials", "true")
				header.Set("Access-Control-Max-Age", "300")
			}

			// 4. Handle pre-flight requests (OPTIONS)
			if request.Method == http.MethodOptions {
				writer.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}

// # Session Logging

// SessionSubject adds the signed-in account to the request logger.
//
// Must be registered AFTER [session.LoadSession].
func SessionSubject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if record := session.FromContext(request.Context()); record != nil {
			logger := ctxutil.GetLogger(request.Context()).With(slog.String("subject", record.Subject))
			request = request.WithContext(ctxutil.WithLogger(request.Context(), logger))
		}
		next.ServeHTTP(writer, request)
	})
}

// # Middleware Helpers

// writeError outputs a simple JSON error payload.
func writeError(writer http.ResponseWriter, status int, code, message string) {
	writer.Header().Set("Content-Type", "application/json; charset=utf-8")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(map[string]string{
		constants.FieldCode:  code,
		constants.FieldError: message,
	})
}
