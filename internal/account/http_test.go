// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/gatekeep/internal/account"
	"github.com/taibuivan/gatekeep/internal/platform/ctxutil"
	"github.com/taibuivan/gatekeep/internal/platform/kv"
	"github.com/taibuivan/gatekeep/internal/ratelimit"
	"github.com/taibuivan/gatekeep/internal/session"
	"github.com/taibuivan/gatekeep/internal/web"
)

// newRouter wires the handler the way the server does, with a fixed client IP.
func newRouter(t *testing.T, fx *fixture) http.Handler {
	t.Helper()

	pages, err := web.New()
	require.NoError(t, err)

	sessions := session.NewManager(kv.Namespace(fx.store, "sessions"), session.Config{}, nil)
	limiter := ratelimit.NewLimiter(kv.Namespace(fx.store, "ratelimit"), nil)

	handler := account.NewHandler(fx.service, sessions, limiter, pages, fx.audit, fx.audit, account.HandlerConfig{
		Signup:  account.RateRule{Limit: 3, Window: time.Hour},
		Login:   account.RateRule{Limit: 10, Window: 15 * time.Minute},
		Contact: account.RateRule{Limit: 5, Window: time.Hour},
	})

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(ctxutil.WithClientIP(r.Context(), "1.2.3.4")))
		})
	})
	router.Use(session.LoadSession(sessions))
	handler.RegisterRoutes(router)
	return router
}

func postForm(router http.Handler, path string, values url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	request := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, cookie := range cookies {
		request.AddCookie(cookie)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func get(router http.Handler, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	request := httptest.NewRequest(http.MethodGet, path, nil)
	for _, cookie := range cookies {
		request.AddCookie(cookie)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func sessionCookie(t *testing.T, recorder *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == session.CookieName {
			return cookie
		}
	}
	t.Fatalf("no %s cookie in response", session.CookieName)
	return nil
}

func signupForm(email string) url.Values {
	return url.Values{"name": {"Jane Doe"}, "email": {email}, "password": {"correct horse"}}
}

func TestHandler_SignupDashboardLogout(t *testing.T) {
	fx := newFixture(t, nil)
	router := newRouter(t, fx)

	assert.Equal(t, http.StatusOK, get(router, "/signup").Code)

	recorder := postForm(router, "/signup", signupForm("jane.doe@example.com"))
	require.Equal(t, http.StatusSeeOther, recorder.Code)
	assert.Equal(t, "/dashboard?welcome=1", recorder.Header().Get("Location"))

	cookie := sessionCookie(t, recorder)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)

	dashboard := get(router, "/dashboard?welcome=1", cookie)
	require.Equal(t, http.StatusOK, dashboard.Code)
	assert.Contains(t, dashboard.Body.String(), "Hello, Jane Doe")
	assert.Contains(t, dashboard.Body.String(), "user.signup_success")

	// Signed-in visitors skip the forms
	assert.Equal(t, http.StatusSeeOther, get(router, "/login", cookie).Code)

	logout := get(router, "/logout", cookie)
	assert.Equal(t, http.StatusSeeOther, logout.Code)
	assert.Equal(t, "/", logout.Header().Get("Location"))
	assert.Equal(t, -1, sessionCookie(t, logout).MaxAge)

	// Old cookie no longer works
	after := get(router, "/dashboard", cookie)
	assert.Equal(t, http.StatusSeeOther, after.Code)
	assert.Equal(t, "/login", after.Header().Get("Location"))
}

func TestHandler_SignupRateLimited(t *testing.T) {
	fx := newFixture(t, nil)
	router := newRouter(t, fx)

	// Rejected submissions still count against the limit
	for i := 0; i < 3; i++ {
		recorder := postForm(router, "/signup", signupForm("user@mailinator.com"))
		assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
		assert.Equal(t, "3", recorder.Header().Get(ratelimit.HeaderLimit))
	}

	recorder := postForm(router, "/signup", signupForm("jane.doe@example.com"))
	assert.Equal(t, http.StatusTooManyRequests, recorder.Code)
	assert.Equal(t, "0", recorder.Header().Get(ratelimit.HeaderRemaining))
	assert.NotEmpty(t, recorder.Header().Get(ratelimit.HeaderRetryAfter))
	assert.Contains(t, recorder.Body.String(), "Too many requests")
	assert.Contains(t, fx.kinds(t), "security.rate_limit_exceeded")
}

func TestHandler_SignupHoneypot(t *testing.T) {
	fx := newFixture(t, nil)
	router := newRouter(t, fx)

	form := signupForm("jane.doe@example.com")
	form.Set("website", "http://spam.example")

	recorder := postForm(router, "/signup", form)
	assert.Equal(t, http.StatusSeeOther, recorder.Code)
	assert.Equal(t, "/login", recorder.Header().Get("Location"))
	assert.Empty(t, recorder.Result().Cookies())
}

func TestHandler_Login(t *testing.T) {
	fx := newFixture(t, nil)
	router := newRouter(t, fx)
	require.Equal(t, http.StatusSeeOther, postForm(router, "/signup", signupForm("jane.doe@example.com")).Code)

	failed := postForm(router, "/login", url.Values{"email": {"jane.doe@example.com"}, "password": {"nope nope"}})
	assert.Equal(t, http.StatusUnauthorized, failed.Code)
	assert.Contains(t, failed.Body.String(), "Invalid email or password")

	ok := postForm(router, "/login", url.Values{"email": {"jane.doe@example.com"}, "password": {"correct horse"}})
	assert.Equal(t, http.StatusSeeOther, ok.Code)
	assert.Equal(t, "/dashboard", ok.Header().Get("Location"))
	assert.NotEmpty(t, sessionCookie(t, ok).Value)
}

func TestHandler_DashboardRequiresSession(t *testing.T) {
	router := newRouter(t, newFixture(t, nil))

	recorder := get(router, "/dashboard")
	assert.Equal(t, http.StatusSeeOther, recorder.Code)
	assert.Equal(t, "/login", recorder.Header().Get("Location"))
}

func TestHandler_Verify(t *testing.T) {
	fx := newFixture(t, nil)
	router := newRouter(t, fx)
	require.Equal(t, http.StatusSeeOther, postForm(router, "/signup", signupForm("jane.doe@example.com")).Code)

	token := tokenFrom(t, fx.notifier.last().Body)
	assert.Equal(t, http.StatusOK, get(router, "/verify?token="+token).Code)
	assert.Equal(t, http.StatusBadRequest, get(router, "/verify?token=garbage").Code)
}

func TestHandler_Contact(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		failMail   bool
		wantStatus int
		wantCode   string
	}{
		{"Delivered", `{"name":"Jane","email":"jane@example.com","message":"Hi"}`, false, http.StatusOK, ""},
		{"Honeypot looks delivered", `{"name":"Jane","email":"jane@example.com","message":"Hi","website":"x"}`, false, http.StatusOK, ""},
		{"Disposable email", `{"name":"Jane","email":"user@mailinator.com","message":"Hi"}`, false, http.StatusUnprocessableEntity, "EMAIL_REJECTED"},
		{"Missing message", `{"name":"Jane","email":"jane@example.com","message":""}`, false, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"Unknown field", `{"name":"Jane","surprise":true}`, false, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"Provider down", `{"name":"Jane","email":"jane@example.com","message":"Hi"}`, true, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, nil)
			fx.notifier.fail = tt.failMail
			router := newRouter(t, fx)

			request := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(tt.body))
			request.Header.Set("Content-Type", "application/json")
			recorder := httptest.NewRecorder()
			router.ServeHTTP(recorder, request)

			assert.Equal(t, tt.wantStatus, recorder.Code)

			var envelope map[string]any
			require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, envelope["code"])
			} else {
				assert.Equal(t, map[string]any{"sent": true}, envelope["data"])
			}
		})
	}
}

func TestHandler_ContactRateLimited(t *testing.T) {
	router := newRouter(t, newFixture(t, nil))

	var last *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		request := httptest.NewRequest(http.MethodPost, "/api/contact",
			strings.NewReader(`{"name":"Jane","email":"jane@example.com","message":"Hi"}`))
		last = httptest.NewRecorder()
		router.ServeHTTP(last, request)
	}

	assert.Equal(t, http.StatusTooManyRequests, last.Code)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(last.Body.Bytes(), &envelope))
	assert.Equal(t, "RATE_LIMITED", envelope["code"])
}
