// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package web_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/gatekeep/internal/platform/apperr"
	"github.com/taibuivan/gatekeep/internal/web"
)

func newRenderer(t *testing.T) *web.Renderer {
	t.Helper()
	renderer, err := web.New()
	require.NoError(t, err)
	return renderer
}

func TestRenderer_Home(t *testing.T) {
	renderer := newRenderer(t)

	recorder := httptest.NewRecorder()
	renderer.Home(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "text/html; charset=utf-8", recorder.Header().Get("Content-Type"))
	assert.Contains(t, recorder.Body.String(), "<h1>Sign in without the noise</h1>")
	assert.Contains(t, recorder.Body.String(), `href="/signup"`)
}

func TestRenderer_RenderEscapesInput(t *testing.T) {
	renderer := newRenderer(t)

	recorder := httptest.NewRecorder()
	renderer.Render(recorder, httptest.NewRequest(http.MethodGet, "/signup", nil), http.StatusUnprocessableEntity, web.PageSignup, web.Page{
		Title: "Sign up",
		Error: "<script>alert(1)</script>",
		Form:  map[string]string{"email": `"><b>x`},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
	body := recorder.Body.String()
	assert.NotContains(t, body, "<script>alert(1)</script>")
	assert.Contains(t, body, "&lt;script&gt;")
	assert.NotContains(t, body, `"><b>x`)
}

func TestRenderer_RenderError(t *testing.T) {
	renderer := newRenderer(t)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantText   string
		hiddenText string
	}{
		{"App error keeps its status", apperr.Forbidden("Nope"), http.StatusForbidden, "Nope", ""},
		{"Unknown error becomes 500", errors.New("pq: password authentication failed"), http.StatusInternalServerError, "An unexpected error occurred", "password authentication"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			renderer.RenderError(recorder, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			assert.Equal(t, tt.wantStatus, recorder.Code)
			assert.Contains(t, recorder.Body.String(), tt.wantText)
			if tt.hiddenText != "" {
				assert.NotContains(t, recorder.Body.String(), tt.hiddenText)
			}
		})
	}
}

func TestRenderer_NotFound(t *testing.T) {
	recorder := httptest.NewRecorder()
	newRenderer(t).NotFound(recorder, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestRenderMarkdown_EscapesRawHTML(t *testing.T) {
	html, err := web.RenderMarkdown([]byte("hello <script>x</script>"))
	require.NoError(t, err)
	assert.NotContains(t, string(html), "<script>")
}
