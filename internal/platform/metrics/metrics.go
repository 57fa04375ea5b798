// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package metrics holds the Prometheus collectors shared by the session,
rate-limit, audit, blocklist and mailer components.

Every recording method is nil-safe so components constructed without
metrics (unit tests, tooling) need no special casing.
*/
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the application collectors.
type Metrics struct {
	SessionsCreated    prometheus.Counter
	SessionsDestroyed  *prometheus.CounterVec
	SessionRefreshes   *prometheus.CounterVec
	RateLimitDecisions *prometheus.CounterVec
	AuditEvents        *prometheus.CounterVec
	BlocklistRefreshes *prometheus.CounterVec
	BlocklistSize      prometheus.Gauge
	EmailsSent         *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on registry.
func New(registry *prometheus.Registry) *Metrics {
	metrics := &Metrics{
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatekeep_sessions_created_total",
			Help: "Total number of sessions issued",
		}),
		SessionsDestroyed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeep_sessions_destroyed_total",
			Help: "Sessions removed, by reason (logout, expired, idle)",
		}, []string{"reason"}),
		SessionRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeep_session_refreshes_total",
			Help: "Last-activity refresh attempts, by result",
		}, []string{"result"}),
		RateLimitDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeep_rate_limit_decisions_total",
			Help: "Rate-limit decisions, by action and decision (allowed, rejected, fail_open)",
		}, []string{"action", "decision"}),
		AuditEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeep_audit_events_total",
			Help: "Audit log calls, by outcome (written, dropped, throttled)",
		}, []string{"outcome"}),
		BlocklistRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeep_blocklist_refreshes_total",
			Help: "Disposable-domain blocklist refreshes, by source",
		}, []string{"source"}),
		BlocklistSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gatekeep_blocklist_domains",
			Help: "Number of domains in the active blocklist",
		}),
		EmailsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeep_emails_sent_total",
			Help: "Outbound emails, by provider and result",
		}, []string{"provider", "result"}),
		gatherer: registry,
	}

	registry.MustRegister(
		metrics.SessionsCreated,
		metrics.SessionsDestroyed,
		metrics.SessionRefreshes,
		metrics.RateLimitDecisions,
		metrics.AuditEvents,
		metrics.BlocklistRefreshes,
		metrics.BlocklistSize,
		metrics.EmailsSent,
	)

	return metrics
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// # Recorders

func (m *Metrics) SessionCreated() {
	if m != nil {
		m.SessionsCreated.Inc()
	}
}

func (m *Metrics) SessionDestroyed(reason string) {
	if m != nil {
		m.SessionsDestroyed.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) SessionRefreshed(result string) {
	if m != nil {
		m.SessionRefreshes.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) RateLimitDecision(action, decision string) {
	if m != nil {
		m.RateLimitDecisions.WithLabelValues(action, decision).Inc()
	}
}

func (m *Metrics) AuditEvent(outcome string) {
	if m != nil {
		m.AuditEvents.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) BlocklistRefreshed(source string, size int) {
	if m != nil {
		m.BlocklistRefreshes.WithLabelValues(source).Inc()
		m.BlocklistSize.Set(float64(size))
	}
}

func (m *Metrics) EmailSent(provider string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.EmailsSent.WithLabelValues(provider, result).Inc()
}
