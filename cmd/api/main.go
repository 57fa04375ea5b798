// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the Gatekeep HTTP server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Open the key-value store (redis, postgres or memory).
//  4. Build the shared components (sessions, limiter, audit, email checks).
//  5. Wire HTTP handlers.
//  6. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/taibuivan/gatekeep/internal/account"
	"github.com/taibuivan/gatekeep/internal/api"
	"github.com/taibuivan/gatekeep/internal/audit"
	"github.com/taibuivan/gatekeep/internal/captcha"
	"github.com/taibuivan/gatekeep/internal/emailcheck"
	"github.com/taibuivan/gatekeep/internal/mailer"
	"github.com/taibuivan/gatekeep/internal/platform/config"
	"github.com/taibuivan/gatekeep/internal/platform/constants"
	"github.com/taibuivan/gatekeep/internal/platform/kv"
	"github.com/taibuivan/gatekeep/internal/platform/metrics"
	"github.com/taibuivan/gatekeep/internal/platform/middleware"
	"github.com/taibuivan/gatekeep/internal/platform/sec"
	"github.com/taibuivan/gatekeep/internal/ratelimit"
	"github.com/taibuivan/gatekeep/internal/session"
	"github.com/taibuivan/gatekeep/internal/web"
)

// captchaTimeout bounds one Turnstile siteverify call.
const captchaTimeout = 5 * time.Second

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", constants.AppName))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.String("store_backend", cfg.StoreBackend),
		slog.String("email_provider", cfg.EmailProvider),
	)

	// Background workers stop when the process begins shutting down.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// ── 3. Key-Value Store ────────────────────────────────────────────────
	store, closeStore, err := kv.Open(rootCtx, kv.Options{
		Backend:       cfg.StoreBackend,
		RedisURL:      cfg.RedisURL,
		DatabaseURL:   cfg.DatabaseURL,
		MigrationPath: cfg.MigrationPath,
		MaxKeys:       cfg.MemoryMaxKeys,
	}, log)
	must(log, err, "open key-value store")
	defer closeStore()

	// ── 4. Shared Components ──────────────────────────────────────────────
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	sessions := session.NewManager(kv.Namespace(store, constants.NamespaceSessions), session.Config{
		MaxAge:          cfg.SessionMaxAge,
		IdleTimeout:     cfg.SessionIdleTimeout,
		RefreshInterval: cfg.SessionRefreshInterval,
	}, appMetrics)

	limiter := ratelimit.NewLimiter(kv.Namespace(store, constants.NamespaceRateLimit), appMetrics)

	auditLog := audit.NewLogger(kv.Namespace(store, constants.NamespaceAudit), cfg.AuditRetention, appMetrics)
	auditRecorder := audit.NewThrottledLogger(auditLog, cfg.AuditMaxPerHour, appMetrics)

	blocklist := emailcheck.NewBlocklist(
		emailcheck.NewHTTPFetcher(cfg.BlocklistURL, cfg.BlocklistFetchTimeout),
		kv.Namespace(store, constants.NamespaceCache),
		cfg.BlocklistTTL,
		appMetrics,
	)
	go warmBlocklist(rootCtx, blocklist, log)

	sender, err := mailer.DefaultRegistry().Resolve(cfg.EmailProvider, mailer.Settings{
		APIKey:   cfg.EmailAPIKey,
		From:     cfg.EmailFrom,
		FromName: cfg.EmailFromName,
	})
	must(log, err, "resolve email provider")
	mail := mailer.New(sender, cfg.EmailProvider, appMetrics)

	verifier := captcha.NewVerifier(cfg.TurnstileSecret, cfg.TurnstileVerifyURL, captchaTimeout)
	if !verifier.Enabled() {
		log.Warn("captcha_disabled", slog.String("reason", "TURNSTILE_SECRET is empty"))
	}

	pages, err := web.New()
	must(log, err, "parse page templates")

	burst := middleware.NewBurstGuard(constants.DefaultBurstRPS, constants.DefaultBurstSize)
	go burst.Run(rootCtx)

	proxies, err := middleware.NewTrustedProxies(cfg.TrustedProxies)
	must(log, err, "parse trusted proxies")

	// ── 5. Domain Wiring ──────────────────────────────────────────────────
	accountService := account.NewService(
		account.NewKVStore(kv.Namespace(store, constants.NamespaceUsers)),
		emailcheck.NewValidator(blocklist),
		verifier,
		sec.NewLinkSigner(cfg.SessionSecret, constants.LinkIssuer),
		mail,
		auditRecorder,
		account.ServiceConfig{BaseURL: cfg.PublicBaseURL, ContactInbox: cfg.ContactInbox},
	)

	accountHandler := account.NewHandler(accountService, sessions, limiter, pages, auditRecorder, auditLog, account.HandlerConfig{
		Signup:  account.RateRule{Limit: cfg.SignupRateLimit, Window: cfg.SignupRateWindow},
		Login:   account.RateRule{Limit: cfg.LoginRateLimit, Window: cfg.LoginRateWindow},
		Contact: account.RateRule{Limit: cfg.ContactRateLimit, Window: cfg.ContactRateWindow},
		SiteKey: cfg.TurnstileSiteKey,
	})

	// ── 6. Health handlers ────────────────────────────────────────────────
	liveness, readiness := api.NewHealthHandlers([]api.Check{
		api.StoreCheck(cfg.StoreBackend, store),
		{
			Name:          "blocklist",
			Informational: true,
			Probe: func(context.Context) error {
				if source := blocklist.Source(); source != emailcheck.SourceRemote && source != emailcheck.SourceStore {
					return fmt.Errorf("blocklist serving %q list", source)
				}
				return nil
			},
		},
	}, log)

	// ── 7. HTTP Server ────────────────────────────────────────────────────
	server := api.NewServer(cfg, log, api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Metrics:   appMetrics.Handler(),
		Account:   accountHandler,
		Pages:     pages,
		Sessions:  sessions,
		Burst:     burst,
		Proxies:   proxies,
	})

	// ── 8. Graceful Shutdown ──────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown_signal_received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server_startup_error", slog.Any("error", err))
	}

	rootCancel()

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("server_shutting_down", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown_error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server_stopped")
}

// warmBlocklist loads the disposable-domain list at startup, then keeps it
// fresh. Lookups also refresh lazily; this only keeps the first signup fast.
func warmBlocklist(ctx context.Context, blocklist *emailcheck.Blocklist, log *slog.Logger) {
	refresh := func() {
		outcome := blocklist.Refresh(ctx)
		level := slog.LevelInfo
		if outcome.Degraded() {
			level = slog.LevelWarn
		}
		log.Log(ctx, level, "blocklist_warmed",
			slog.String("source", string(outcome.Source)),
			slog.Int("size", outcome.Size),
			slog.Any("error", outcome.Err),
		)
	}

	refresh()

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			refresh()
		case <-ctx.Done():
			return
		}
	}
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup_failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
