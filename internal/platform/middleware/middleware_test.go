// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/gatekeep/internal/platform/ctxutil"
	"github.com/taibuivan/gatekeep/internal/platform/middleware"
	"github.com/taibuivan/gatekeep/pkg/uuid"
)

var okHandler = http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
	writer.WriteHeader(http.StatusOK)
})

func TestRequestID(t *testing.T) {
	existing := uuid.New()

	tests := []struct {
		name     string
		incoming string
		wantSame bool
	}{
		{"Generated when absent", "", false},
		{"Reused when well formed", existing, true},
		{"Replaced when malformed", "<script>", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seenID, seenIP string
			handler := middleware.RequestID(nil)(http.HandlerFunc(func(_ http.ResponseWriter, request *http.Request) {
				seenID = ctxutil.GetRequestID(request.Context())
				seenIP = ctxutil.GetClientIP(request.Context())
			}))

			request := httptest.NewRequest(http.MethodGet, "/", nil)
			request.RemoteAddr = "10.0.0.7:5555"
			if tt.incoming != "" {
				request.Header.Set("X-Request-ID", tt.incoming)
			}
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, request)

			assert.True(t, uuid.Valid(seenID))
			assert.Equal(t, seenID, recorder.Header().Get("X-Request-ID"))
			assert.Equal(t, tt.wantSame, seenID == tt.incoming)
			assert.Equal(t, "10.0.0.7", seenIP)
		})
	}
}

func TestTrustedProxies_ClientIP(t *testing.T) {
	proxies, err := middleware.NewTrustedProxies([]string{"10.0.0.0/8", "192.0.2.10"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		proxies *middleware.TrustedProxies
		headers map[string]string
		remote  string
		want    string
	}{
		{"Untrusted peer ignores X-Real-IP", proxies, map[string]string{"X-Real-IP": "9.9.9.9"}, "1.1.1.1:1", "1.1.1.1"},
		{"Untrusted peer ignores X-Forwarded-For", proxies, map[string]string{"X-Forwarded-For": "8.8.8.8"}, "1.1.1.1:1", "1.1.1.1"},
		{"Nil list trusts nobody", nil, map[string]string{"X-Forwarded-For": "8.8.8.8"}, "10.1.2.3:1", "10.1.2.3"},
		{"Trusted peer X-Real-IP", proxies, map[string]string{"X-Real-IP": "9.9.9.9", "X-Forwarded-For": "8.8.8.8"}, "10.1.2.3:1", "9.9.9.9"},
		{"Rightmost untrusted hop", proxies, map[string]string{"X-Forwarded-For": "6.6.6.6, 8.8.8.8, 10.9.9.9"}, "192.0.2.10:1", "8.8.8.8"},
		{"Garbage hop stops the walk", proxies, map[string]string{"X-Forwarded-For": "8.8.8.8, not-an-ip"}, "10.1.2.3:1", "10.1.2.3"},
		{"Remote without port", nil, nil, "1.1.1.1", "1.1.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, "/", nil)
			request.RemoteAddr = tt.remote
			for key, value := range tt.headers {
				request.Header.Set(key, value)
			}
			assert.Equal(t, tt.want, tt.proxies.ClientIP(request))
		})
	}
}

func TestNewTrustedProxies_Invalid(t *testing.T) {
	_, err := middleware.NewTrustedProxies([]string{"10.0.0.0/8", "proxy.internal"})
	assert.Error(t, err)
}

/*
TestRequestID_SpoofedForwardingHeaders verifies rotating X-Forwarded-For from a
direct client does not change the rate-limit identity.
*/
func TestRequestID_SpoofedForwardingHeaders(t *testing.T) {
	proxies, err := middleware.NewTrustedProxies([]string{"10.0.0.1"})
	require.NoError(t, err)

	seen := map[string]bool{}
	handler := middleware.RequestID(proxies)(http.HandlerFunc(func(_ http.ResponseWriter, request *http.Request) {
		seen[ctxutil.GetClientIP(request.Context())] = true
	}))

	for _, forwarded := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request.RemoteAddr = "203.0.113.9:4000"
		request.Header.Set("X-Forwarded-For", forwarded)
		request.Header.Set("X-Real-IP", forwarded)
		handler.ServeHTTP(httptest.NewRecorder(), request)
	}

	assert.Equal(t, map[string]bool{"203.0.113.9": true}, seen)
}

func TestStructuredLogger(t *testing.T) {
	var buffer bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buffer, nil))

	handler := middleware.StructuredLogger(logger)(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.NotEqual(t, slog.Default(), ctxutil.GetLogger(request.Context()))
		writer.WriteHeader(http.StatusTeapot)
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/signup", nil))

	assert.Equal(t, http.StatusTeapot, recorder.Code)
	assert.Contains(t, buffer.String(), `"msg":"http_request_finished"`)
	assert.Contains(t, buffer.String(), `"status":418`)
	assert.Contains(t, buffer.String(), `"level":"WARN"`)
}

func TestPanicRecovery(t *testing.T) {
	boom := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })

	t.Run("JSON fallback", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		middleware.PanicRecovery(nil)(boom).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusInternalServerError, recorder.Code)
		assert.Contains(t, recorder.Body.String(), "INTERNAL_ERROR")
	})

	t.Run("Custom renderer", func(t *testing.T) {
		render := func(writer http.ResponseWriter, _ *http.Request) {
			writer.WriteHeader(http.StatusInternalServerError)
			_, _ = writer.Write([]byte("<h1>oops</h1>"))
		}
		recorder := httptest.NewRecorder()
		middleware.PanicRecovery(render)(boom).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusInternalServerError, recorder.Code)
		assert.Equal(t, "<h1>oops</h1>", recorder.Body.String())
	})
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		development bool
		origin      string
		method      string
		wantAllow   string
		wantStatus  int
	}{
		{"Allowed origin", false, "https://app.example.com", http.MethodGet, "https://app.example.com", http.StatusOK},
		{"Unknown origin", false, "https://evil.example", http.MethodGet, "", http.StatusOK},
		{"Development allows all", true, "http://localhost:3000", http.MethodGet, "http://localhost:3000", http.StatusOK},
		{"Preflight", false, "https://app.example.com", http.MethodOptions, "https://app.example.com", http.StatusNoContent},
		{"No origin", false, "", http.MethodGet, "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := middleware.CORS(tt.development, "https://app.example.com/")(okHandler)

			request := httptest.NewRequest(tt.method, "/api/contact", nil)
			if tt.origin != "" {
				request.Header.Set("Origin", tt.origin)
			}
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, request)

			assert.Equal(t, tt.wantStatus, recorder.Code)
			assert.Equal(t, tt.wantAllow, recorder.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	recorder := httptest.NewRecorder()
	middleware.SecurityHeaders(okHandler).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", recorder.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", recorder.Header().Get("X-Frame-Options"))
	assert.Contains(t, recorder.Header().Get("Content-Security-Policy"), "challenges.cloudflare.com")
}

func TestBurstGuard(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	guard := middleware.NewBurstGuard(1, 2).WithClock(func() time.Time { return now })

	// Bucket of two, then empty
	assert.True(t, guard.Allow("1.1.1.1"))
	assert.True(t, guard.Allow("1.1.1.1"))
	assert.False(t, guard.Allow("1.1.1.1"))

	// Other clients are independent
	assert.True(t, guard.Allow("2.2.2.2"))

	// One token refills per second
	now = now.Add(time.Second)
	assert.True(t, guard.Allow("1.1.1.1"))

	// Idle clients are swept
	now = now.Add(time.Hour)
	assert.Equal(t, 2, guard.Cleanup())
}

func TestBurstGuard_Middleware(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	guard := middleware.NewBurstGuard(1, 1).WithClock(func() time.Time { return now })
	handler := guard.Middleware()(okHandler)

	serve := func() *httptest.ResponseRecorder {
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request = request.WithContext(ctxutil.WithClientIP(request.Context(), "3.3.3.3"))
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		return recorder
	}

	require.Equal(t, http.StatusOK, serve().Code)

	rejected := serve()
	assert.Equal(t, http.StatusTooManyRequests, rejected.Code)
	assert.Equal(t, "1", rejected.Header().Get("Retry-After"))
	assert.Contains(t, rejected.Body.String(), "RATE_LIMITED")
}
