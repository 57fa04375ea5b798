// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package web renders the themed HTML pages.

Templates are embedded at build time and parsed once by [New]. Every page is
executed into a buffer first, so a template failure never leaves a
half-written response.
*/
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/taibuivan/gatekeep/internal/platform/apperr"
	"github.com/taibuivan/gatekeep/internal/platform/ctxutil"
)

//go:embed templates/*.html content/*.md
var assets embed.FS

// # Page Names

const (
	PageHome      = "home.html"
	PageSignup    = "signup.html"
	PageLogin     = "login.html"
	PageDashboard = "dashboard.html"
	PageVerify    = "verify.html"
	PageError     = "error.html"
)

var pageNames = []string{PageHome, PageSignup, PageLogin, PageDashboard, PageVerify, PageError}

// Page is the view model shared by every template.
type Page struct {
	Title string
	// Email is the signed-in account, empty for anonymous visitors.
	Email   string
	Flash   string
	Error   string
	Form    map[string]string
	SiteKey string
	Content template.HTML
	Status  int
	Data    any
}

// Renderer holds the parsed page set.
type Renderer struct {
	pages map[string]*template.Template
	home  template.HTML
}

var funcs = template.FuncMap{
	"formatTime": func(value time.Time) string { return value.UTC().Format("2006-01-02 15:04 UTC") },
	"year":       func() int { return time.Now().Year() },
}

// New parses every embedded page and renders the landing copy.
func New() (*Renderer, error) {
	renderer := &Renderer{pages: make(map[string]*template.Template, len(pageNames))}

	for _, name := range pageNames {
		page, err := template.New("layout.html").Funcs(funcs).ParseFS(assets, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("web: parse %s: %w", name, err)
		}
		renderer.pages[name] = page
	}

	source, err := assets.ReadFile("content/home.md")
	if err != nil {
		return nil, fmt.Errorf("web: read landing copy: %w", err)
	}

	home, err := RenderMarkdown(source)
	if err != nil {
		return nil, err
	}
	renderer.home = home

	return renderer, nil
}

// RenderMarkdown converts trusted markdown to HTML. Raw HTML in the source is
// escaped by goldmark's default renderer.
func RenderMarkdown(source []byte) (template.HTML, error) {
	markdown := goldmark.New(goldmark.WithExtensions(extension.GFM))

	var buffer bytes.Buffer
	if err := markdown.Convert(source, &buffer); err != nil {
		return "", fmt.Errorf("web: render markdown: %w", err)
	}
	return template.HTML(buffer.String()), nil
}

/*
Render executes the named page with status.

Parameters:
  - writer: http.ResponseWriter
  - request: *http.Request
  - status: int (HTTP status code)
  - name: string (one of the Page* constants)
  - page: Page
*/
func (renderer *Renderer) Render(writer http.ResponseWriter, request *http.Request, status int, name string, page Page) {
	tmpl, ok := renderer.pages[name]
	if !ok {
		renderer.fail(writer, request, fmt.Errorf("web: unknown page %q", name))
		return
	}

	page.Status = status

	var buffer bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buffer, "layout.html", page); err != nil {
		renderer.fail(writer, request, err)
		return
	}

	writer.Header().Set("Content-Type", "text/html; charset=utf-8")
	writer.Header().Set("Cache-Control", "no-store")
	writer.WriteHeader(status)
	_, _ = buffer.WriteTo(writer)
}

// Home renders the landing page.
func (renderer *Renderer) Home(writer http.ResponseWriter, request *http.Request) {
	renderer.Render(writer, request, http.StatusOK, PageHome, Page{Title: "Welcome", Content: renderer.home})
}

// NotFound renders the themed 404 page.
func (renderer *Renderer) NotFound(writer http.ResponseWriter, request *http.Request) {
	renderer.Render(writer, request, http.StatusNotFound, PageError, Page{
		Title: "Not found",
		Error: "The page you are looking for does not exist.",
	})
}

// RenderError converts err into the themed error page. Internal details are
// logged and never shown.
func (renderer *Renderer) RenderError(writer http.ResponseWriter, request *http.Request, err error) {
	appError := apperr.As(err)
	if appError == nil {
		appError = apperr.Internal(err)
	}

	if appError.HTTPStatus >= http.StatusInternalServerError {
		ctxutil.GetLogger(request.Context()).ErrorContext(request.Context(), "page_server_error",
			slog.String("code", appError.Code),
			slog.Any("cause", appError.Cause),
		)
	}

	renderer.Render(writer, request, appError.HTTPStatus, PageError, Page{
		Title: http.StatusText(appError.HTTPStatus),
		Error: appError.Message,
	})
}

// fail is the last resort when a template itself breaks.
func (renderer *Renderer) fail(writer http.ResponseWriter, request *http.Request, err error) {
	ctxutil.GetLogger(request.Context()).ErrorContext(request.Context(), "template_render_failed", slog.Any("error", err))
	http.Error(writer, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
