// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/taibuivan/gatekeep/internal/platform/ctxutil"
)

// # Headers

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Rejecter writes the response body for a rejected request. Headers are
// already set when it runs.
type Rejecter func(writer http.ResponseWriter, request *http.Request, result Result)

// Policy configures the middleware for one action.
type Policy struct {
	Action string
	Limit  int
	Window time.Duration

	// ClientKey identifies the caller. Defaults to the resolved client IP.
	ClientKey func(request *http.Request) string

	// Reject renders the rejection. Defaults to a plain 429.
	Reject Rejecter

	// OnReject is notified of every rejection (e.g. to record a security event).
	OnReject func(request *http.Request, result Result)
}

// Check evaluates request against policy and writes rate-limit headers.
//
// It returns true when the handler may proceed. On rejection the full response
// has been written and the caller must return.
func (limiter *Limiter) Check(writer http.ResponseWriter, request *http.Request, policy Policy) bool {
	clientKey := ctxutil.GetClientIP(request.Context())
	if policy.ClientKey != nil {
		clientKey = policy.ClientKey(request)
	}
	if clientKey == "" {
		clientKey = "unknown"
	}

	result := limiter.CheckAndRecord(request.Context(), policy.Action, clientKey, policy.Limit, policy.Window)
	WriteHeaders(writer, result)

	if result.Allowed {
		return true
	}

	writer.Header().Set(HeaderRetryAfter, strconv.Itoa(result.RetryAfter(limiter.now())))

	if policy.OnReject != nil {
		policy.OnReject(request, result)
	}

	reject := policy.Reject
	if reject == nil {
		reject = func(writer http.ResponseWriter, _ *http.Request, _ Result) {
			http.Error(writer, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}
	}
	reject(writer, request, result)
	return false
}

// Middleware wraps next with [Limiter.Check] for policy.
func (limiter *Limiter) Middleware(policy Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if !limiter.Check(writer, request, policy) {
				return
			}
			next.ServeHTTP(writer, request)
		})
	}
}

// WriteHeaders sets the X-RateLimit-* headers for result.
func WriteHeaders(writer http.ResponseWriter, result Result) {
	header := writer.Header()
	header.Set(HeaderLimit, strconv.Itoa(result.Limit))
	header.Set(HeaderRemaining, strconv.Itoa(result.Remaining))
	header.Set(HeaderReset, strconv.FormatInt(result.ResetAt.Unix(), 10))
}
