// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package ctxkey holds the context keys shared by middleware, session and
// ctxutil. The key type is unexported so no other package can collide.
package ctxkey

type key string

const (
	KeyRequestID key = "request_id"
	KeyClientIP  key = "client_ip"
	KeyLogger    key = "logger"

	// KeySession carries the validated *session.Record.
	KeySession key = "session"

	// KeySessionID carries the raw cookie value so logout can destroy it.
	KeySessionID key = "session_id"
)
