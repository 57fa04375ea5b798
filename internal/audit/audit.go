// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package audit records user actions and security events as write-once,
TTL-bounded entries in the key-value store.

Logging is best-effort: no method returns an error or panics, and a store
quota refusal is downgraded to a warning. Callers that care can inspect the
returned [Outcome].
*/
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/taibuivan/gatekeep/internal/platform/ctxutil"
	"github.com/taibuivan/gatekeep/internal/platform/kv"
	"github.com/taibuivan/gatekeep/internal/platform/metrics"
	"github.com/taibuivan/gatekeep/pkg/uuid"
)

// DefaultRetention is how long events live before store-side expiry.
const DefaultRetention = 30 * 24 * time.Hour

// # Event Kinds

const (
	KindSignup        = "signup_success"
	KindLogin         = "login_success"
	KindLoginFailed   = "login_failed"
	KindLogout        = "logout"
	KindEmailVerified = "email_verified"
	KindContact       = "contact_submitted"
	KindHoneypot      = "honeypot_triggered"
	KindEmailRejected = "email_rejected"
	KindCaptchaFailed = "captcha_failed"
	KindRateLimited   = "rate_limit_exceeded"

	securityKindPrefix   = "security."
	userActionKindPrefix = "user."

	// subjectIndexPrefix keys a second copy of every event carrying an
	// email, so one account's history is a prefix listing.
	subjectIndexPrefix = "subject:"
)

// Outcome reports what happened to one log call.
type Outcome int

const (
	// Written means the event was persisted.
	Written Outcome = iota
	// Dropped means the store refused or failed the write.
	Dropped
	// Throttled means the hourly cap was reached and the event was discarded.
	Throttled
)

func (outcome Outcome) String() string {
	switch outcome {
	case Written:
		return "written"
	case Dropped:
		return "dropped"
	case Throttled:
		return "throttled"
	default:
		return "unknown"
	}
}

// Event is one persisted audit entry.
type Event struct {
	Kind      string         `json:"kind"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	IP        string         `json:"ip,omitempty"`
}

// Recorder is the write contract shared by [Logger] and [ThrottledLogger].
type Recorder interface {
	LogEvent(context context.Context, kind string, details map[string]any) Outcome
}

// # Logger

// Logger persists events to the store.
type Logger struct {
	store     kv.Store
	retention time.Duration
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewLogger creates a logger over store (typically the "audit" namespace).
func NewLogger(store kv.Store, retention time.Duration, metrics *metrics.Metrics) *Logger {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Logger{store: store, retention: retention, metrics: metrics, now: time.Now}
}

// WithClock overrides the time source. Intended for tests.
func (logger *Logger) WithClock(now func() time.Time) *Logger {
	logger.now = now
	return logger
}

// LogEvent persists one event. The client IP is taken from the context.
func (logger *Logger) LogEvent(context context.Context, kind string, details map[string]any) Outcome {
	log := ctxutil.GetLogger(context)

	event := Event{
		Kind:      kind,
		Details:   details,
		Timestamp: logger.now().UTC(),
		IP:        ctxutil.GetClientIP(context),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.WarnContext(context, "audit_encode_failed", slog.String("kind", kind), slog.Any("error", err))
		logger.metrics.AuditEvent(Dropped.String())
		return Dropped
	}

	suffix := eventSuffix(event.Timestamp)
	if err := logger.store.Put(context, kind+":"+suffix, payload, logger.retention); err != nil {
		message := "audit_write_failed"
		if kv.IsQuota(err) {
			message = "audit_write_skipped_quota"
		}
		log.WarnContext(context, message, slog.String("kind", kind), slog.Any("error", err))
		logger.metrics.AuditEvent(Dropped.String())
		return Dropped
	}

	if email, _ := details["email"].(string); email != "" {
		if err := logger.store.Put(context, subjectPrefix(email)+suffix, payload, logger.retention); err != nil {
			log.WarnContext(context, "audit_index_write_failed", slog.String("kind", kind), slog.Any("error", err))
		}
	}

	logger.metrics.AuditEvent(Written.String())
	return Written
}

/*
RecentFor returns up to limit of the newest events attributed to email, newest
first. Only that account's index is listed, so reads are bounded by limit
rather than by the size of the audit log.
*/
func (logger *Logger) RecentFor(context context.Context, email string, limit int) ([]Event, error) {
	if email == "" {
		return nil, nil
	}

	prefix := subjectPrefix(email)
	keys, err := logger.store.List(context, prefix)
	if err != nil {
		return nil, fmt.Errorf("audit_list_failed: %w", err)
	}
	return logger.load(context, keys, limit, nil), nil
}

// Recent returns up to limit of the newest events accepted by match, newest
// first. A nil match accepts every event. It scans the whole log; account
// pages use [Logger.RecentFor].
func (logger *Logger) Recent(context context.Context, limit int, match func(Event) bool) ([]Event, error) {
	keys, err := logger.store.List(context, "")
	if err != nil {
		return nil, fmt.Errorf("audit_list_failed: %w", err)
	}

	primary := keys[:0]
	for _, key := range keys {
		if !strings.HasPrefix(key, subjectIndexPrefix) {
			primary = append(primary, key)
		}
	}
	return logger.load(context, primary, limit, match), nil
}

// load reads keys newest first until limit matching events are found.
func (logger *Logger) load(context context.Context, keys []string, limit int, match func(Event) bool) []Event {

	// Keys end in a zero-padded timestamp and a unique suffix
	sort.Slice(keys, func(i, j int) bool { return keyTime(keys[i]) > keyTime(keys[j]) })

	events := make([]Event, 0)
	for _, key := range keys {
		if limit > 0 && len(events) >= limit {
			break
		}

		raw, err := logger.store.Get(context, key)
		if err != nil {
			continue
		}

		var event Event
		if json.Unmarshal(raw, &event) != nil {
			continue
		}
		if match == nil || match(event) {
			events = append(events, event)
		}
	}
	return events
}

// ForEmail matches events attributed to email.
func ForEmail(email string) func(Event) bool {
	return func(event Event) bool {
		subject, _ := event.Details["email"].(string)
		return subject == email
	}
}

// # Helpers

// UserAction records an account action attributed to email.
func UserAction(context context.Context, recorder Recorder, action, email string, details map[string]any) Outcome {
	merged := map[string]any{"email": email}
	for key, value := range details {
		merged[key] = value
	}
	return recorder.LogEvent(context, userActionKindPrefix+action, merged)
}

// Security records a security-relevant event.
func Security(context context.Context, recorder Recorder, kind string, details map[string]any) Outcome {
	return recorder.LogEvent(context, securityKindPrefix+kind, details)
}

// eventSuffix is "<unix nanos, 19 digits>:<uuid>". Primary keys are
// "kind:<suffix>", index keys "subject:<email>:<suffix>"; neither collides.
func eventSuffix(timestamp time.Time) string {
	return fmt.Sprintf("%019d:%s", timestamp.UnixNano(), uuid.New())
}

func subjectPrefix(email string) string {
	return subjectIndexPrefix + email + ":"
}

// keyTime extracts the padded timestamp segment used for ordering.
func keyTime(key string) string {
	parts := strings.Split(key, ":")
	if len(parts) < 3 {
		return ""
	}
	return parts[len(parts)-2]
}
