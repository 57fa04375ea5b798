// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"net/http"
)

// LoadSession resolves the session cookie once per request and stores the
// record in the context. Requests without a valid session proceed anonymously;
// a stale cookie is cleared on the response, unless the store could not be read.
func LoadSession(manager *Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			id := IDFromRequest(request)

			// ── 1. Anonymous Access ───────────────────────────────────────────
			if id == "" {
				next.ServeHTTP(writer, request)
				return
			}

			// ── 2. Lookup ─────────────────────────────────────────────────────
			result := manager.Get(request.Context(), id)
			if !result.Valid() {
				// A failed read says nothing about the record; keep the cookie
				if !result.Degraded {
					http.SetCookie(writer, ClearCookie())
				}
				next.ServeHTTP(writer, request)
				return
			}

			// ── 3. Context Injection ──────────────────────────────────────────
			ctx := WithRecord(request.Context(), id, result.Session)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// RequireSession redirects anonymous requests to loginPath.
//
// Must be registered AFTER [LoadSession].
func RequireSession(loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if FromContext(request.Context()) == nil {
				http.Redirect(writer, request, loginPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(writer, request)
		})
	}
}
