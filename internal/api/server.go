// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package api wires together the HTTP router, middleware chain, and all
domain handlers into a runnable [http.Server].

Architecture:

  - This package is the topmost Presentation layer boundary.
  - It acts as the central composition root for the HTTP transport framework (chi router).
  - Only this package and cmd/api are allowed to import net/http server primitives.
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/taibuivan/gatekeep/internal/account"
	"github.com/taibuivan/gatekeep/internal/platform/config"
	"github.com/taibuivan/gatekeep/internal/platform/constants"
	"github.com/taibuivan/gatekeep/internal/platform/middleware"
	"github.com/taibuivan/gatekeep/internal/session"
	"github.com/taibuivan/gatekeep/internal/web"
)

// # Server Definitions

// Server wraps the chi router and the [http.Server].
//
// It is constructed once in main.go with all dependencies injected.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *slog.Logger
}

// # Handler Registry

// Handlers groups everything the router needs.
type Handlers struct {
	// Liveness is the /health handler. Always 200 while the process is alive.
	Liveness http.HandlerFunc

	// Readiness is the /ready handler. 200 when the store answers.
	Readiness http.HandlerFunc

	// Metrics serves the Prometheus registry. Optional.
	Metrics http.Handler

	// Account handles signup, login, logout, verification, dashboard and contact.
	Account *account.Handler

	// Pages renders the landing page and HTML error pages.
	Pages *web.Renderer

	// Sessions resolves the session cookie on every request.
	Sessions *session.Manager

	// Burst is the in-process flood guard. Optional.
	Burst *middleware.BurstGuard

	// Proxies may set the client address through forwarding headers. Nil
	// trusts nobody.
	Proxies *middleware.TrustedProxies
}

// # Server Initialization

// NewServer constructs the chi router with the full middleware chain and
// registers all route groups.
func NewServer(cfg *config.Config, log *slog.Logger, h Handlers) *Server {
	router := NewRouter(cfg, log, h)

	return &Server{
		router: router,
		log:    log,
		httpServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           router,
			ReadTimeout:       constants.DefaultReadTimeout,
			WriteTimeout:      constants.DefaultWriteTimeout,
			IdleTimeout:       constants.DefaultIdleTimeout,
			ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
		},
	}
}

// NewRouter builds the routing tree. Split from [NewServer] so tests can
// drive it with httptest.
func NewRouter(cfg *config.Config, log *slog.Logger, h Handlers) *chi.Mux {
	r := chi.NewRouter()

	// # Middleware Chain
	// Global middleware applied in order of execution.
	r.Use(middleware.RequestID(h.Proxies))
	r.Use(middleware.StructuredLogger(log))
	r.Use(middleware.PanicRecovery(func(writer http.ResponseWriter, request *http.Request) {
		h.Pages.RenderError(writer, request, nil)
	}))
	r.Use(chimw.Timeout(constants.GlobalRequestTimeout))
	if h.Burst != nil {
		r.Use(h.Burst.Middleware())
	}
	r.Use(middleware.CORS(cfg.IsDevelopment(), allowedOrigins(cfg)...))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimw.CleanPath)

	// # Infrastructure Endpoints
	// Session-free probes for container orchestration.
	r.Get("/health", h.Liveness)
	r.Get("/ready", h.Readiness)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}

	// # Application
	r.Group(func(app chi.Router) {
		app.Use(session.LoadSession(h.Sessions))
		app.Use(middleware.SessionSubject)

		app.Get("/", h.Pages.Home)
		h.Account.RegisterRoutes(app)
	})

	r.NotFound(h.Pages.NotFound)

	return r
}

// allowedOrigins is the public base URL plus any configured extras.
func allowedOrigins(cfg *config.Config) []string {
	origins := []string{cfg.PublicBaseURL}
	return append(origins, cfg.ExtraOrigins...)
}

// # Server Lifecycle

// ListenAndServe starts the HTTP server.
//
// It blocks until the server is closed or an error occurs.
func (s *Server) ListenAndServe() error {
	s.log.Info("server_starting", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	context, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(context)
}
