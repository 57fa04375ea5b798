// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"net/http"
	"time"

	"github.com/taibuivan/gatekeep/internal/platform/ctxkey"
)

// CookieName is the name of the session cookie.
const CookieName = "session"

// # Cookie Encoding

// Cookie builds the session cookie carrying id for maxAge.
func Cookie(id string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

// ClearCookie builds the logout signal: an empty value with Max-Age=0.
func ClearCookie() *http.Cookie {
	cookie := Cookie("", 0)
	// net/http renders a negative MaxAge as "Max-Age=0"
	cookie.MaxAge = -1
	return cookie
}

// IDFromRequest returns the raw session identifier, or "" when absent.
func IDFromRequest(request *http.Request) string {
	cookie, err := request.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// IDFromHeader extracts the identifier from a raw Cookie header value.
func IDFromHeader(header string) string {
	if header == "" {
		return ""
	}
	cookies, err := http.ParseCookie(header)
	if err != nil {
		return ""
	}
	for _, cookie := range cookies {
		if cookie.Name == CookieName {
			return cookie.Value
		}
	}
	return ""
}

// # Request Helpers

// GetFromRequest resolves the session cookie of request.
func (manager *Manager) GetFromRequest(request *http.Request) GetResult {
	return manager.Get(request.Context(), IDFromRequest(request))
}

// WithRecord attaches a validated session and its identifier to ctx.
func WithRecord(ctx context.Context, id string, record *Record) context.Context {
	ctx = context.WithValue(ctx, ctxkey.KeySessionID, id)
	return context.WithValue(ctx, ctxkey.KeySession, record)
}

// FromContext returns the session loaded by [LoadSession], or nil.
func FromContext(ctx context.Context) *Record {
	record, _ := ctx.Value(ctxkey.KeySession).(*Record)
	return record
}

// IDFromContext returns the identifier of the loaded session, or "".
func IDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxkey.KeySessionID).(string)
	return id
}
