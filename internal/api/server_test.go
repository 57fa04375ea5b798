// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/gatekeep/internal/account"
	"github.com/taibuivan/gatekeep/internal/api"
	"github.com/taibuivan/gatekeep/internal/audit"
	"github.com/taibuivan/gatekeep/internal/captcha"
	"github.com/taibuivan/gatekeep/internal/emailcheck"
	"github.com/taibuivan/gatekeep/internal/mailer"
	"github.com/taibuivan/gatekeep/internal/platform/config"
	"github.com/taibuivan/gatekeep/internal/platform/kv"
	"github.com/taibuivan/gatekeep/internal/platform/metrics"
	"github.com/taibuivan/gatekeep/internal/platform/middleware"
	"github.com/taibuivan/gatekeep/internal/platform/sec"
	"github.com/taibuivan/gatekeep/internal/ratelimit"
	"github.com/taibuivan/gatekeep/internal/session"
	"github.com/taibuivan/gatekeep/internal/web"
)

// failingStore answers every call with an error.
type failingStore struct{ kv.Store }

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func newTestRouter(t *testing.T, checks ...api.Check) http.Handler {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := kv.NewMemoryStore()
	registry := prometheus.NewRegistry()
	collectors := metrics.New(registry)

	pages, err := web.New()
	require.NoError(t, err)

	auditLog := audit.NewLogger(kv.Namespace(store, "audit"), 0, collectors)
	sessions := session.NewManager(kv.Namespace(store, "sessions"), session.Config{}, collectors)
	limiter := ratelimit.NewLimiter(kv.Namespace(store, "ratelimit"), collectors)

	service := account.NewService(
		account.NewKVStore(kv.Namespace(store, "users")),
		emailcheck.NewValidator(nil),
		captcha.NewVerifier("", "", 0),
		sec.NewLinkSigner(strings.Repeat("k", 32), "gatekeep"),
		mailer.New(mailer.NewLogSender(), mailer.ProviderLog, collectors),
		auditLog,
		account.ServiceConfig{BaseURL: "https://gatekeep.test"},
	)

	if len(checks) == 0 {
		checks = []api.Check{api.StoreCheck("store", store)}
	}
	liveness, readiness := api.NewHealthHandlers(checks, logger)

	cfg := &config.Config{ServerPort: "0", Environment: "production", PublicBaseURL: "https://gatekeep.test"}

	return api.NewRouter(cfg, logger, api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Metrics:   collectors.Handler(),
		Account: account.NewHandler(service, sessions, limiter, pages, auditLog, auditLog, account.HandlerConfig{
			Signup:  account.RateRule{Limit: 3, Window: time.Hour},
			Login:   account.RateRule{Limit: 10, Window: 15 * time.Minute},
			Contact: account.RateRule{Limit: 5, Window: time.Hour},
		}),
		Pages:    pages,
		Sessions: sessions,
		Burst:    middleware.NewBurstGuard(100, 100),
	})
}

func serve(router http.Handler, method, path string, body io.Reader) *httptest.ResponseRecorder {
	request := httptest.NewRequest(method, path, body)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestRouter_Pages(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"Home", "/", http.StatusOK, "Sign in without the noise"},
		{"Signup form", "/signup", http.StatusOK, "<form"},
		{"Login form", "/login", http.StatusOK, "<form"},
		{"Dashboard redirects", "/dashboard", http.StatusSeeOther, ""},
		{"Unknown page", "/nope", http.StatusNotFound, "does not exist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := serve(router, http.MethodGet, tt.path, nil)

			assert.Equal(t, tt.wantStatus, recorder.Code)
			assert.Contains(t, recorder.Body.String(), tt.wantBody)
			assert.NotEmpty(t, recorder.Header().Get("X-Request-ID"))
			assert.Equal(t, "nosniff", recorder.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t)

	recorder := serve(router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"status":"ok"`)

	ready := serve(router, http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusOK, ready.Code)

	var envelope struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(ready.Body.Bytes(), &envelope))
	assert.Equal(t, "ready", envelope.Data.Status)
}

func TestRouter_ReadinessDegraded(t *testing.T) {
	router := newTestRouter(t,
		api.StoreCheck("store", failingStore{}),
		api.Check{Name: "blocklist", Informational: true, Probe: func(context.Context) error { return errors.New("builtin list") }},
	)

	recorder := serve(router, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"status":"degraded"`)
	assert.Contains(t, recorder.Body.String(), "connection refused")
}

func TestRouter_InformationalCheckNeverFails(t *testing.T) {
	router := newTestRouter(t,
		api.Check{Name: "blocklist", Informational: true, Probe: func(context.Context) error { return errors.New("builtin list") }},
	)

	recorder := serve(router, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"ok":false`)
}

func TestRouter_Metrics(t *testing.T) {
	router := newTestRouter(t)

	// Generate a rate-limit decision first
	contact := serve(router, http.MethodPost, "/api/contact",
		strings.NewReader(`{"name":"Jane","email":"jane@example.com","message":"Hi"}`))
	require.Equal(t, http.StatusOK, contact.Code)

	recorder := serve(router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "gatekeep_rate_limit_decisions_total")
	assert.Contains(t, recorder.Body.String(), "gatekeep_emails_sent_total")
}

func TestRouter_CORS(t *testing.T) {
	router := newTestRouter(t)

	request := httptest.NewRequest(http.MethodOptions, "/api/contact", nil)
	request.Header.Set("Origin", "https://gatekeep.test")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	assert.Equal(t, "https://gatekeep.test", recorder.Header().Get("Access-Control-Allow-Origin"))
}
