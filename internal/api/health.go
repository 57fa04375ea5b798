// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package api contains the health check handlers for liveness and readiness probes.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/taibuivan/gatekeep/internal/platform/constants"
	"github.com/taibuivan/gatekeep/internal/platform/kv"
	"github.com/taibuivan/gatekeep/internal/platform/respond"
)

// probeKey is read on every readiness check. It is never written.
const probeKey = "__ready_probe"

// probeTimeout bounds a single readiness check.
const probeTimeout = 2 * time.Second

// Check is one named readiness dependency.
type Check struct {
	Name  string
	Probe func(context context.Context) error

	// Informational checks are reported but never fail readiness.
	Informational bool
}

// StoreCheck probes the key-value store with a read. A miss counts as healthy.
func StoreCheck(name string, store kv.Store) Check {
	return Check{
		Name: name,
		Probe: func(context context.Context) error {
			_, err := store.Get(context, probeKey)
			if err == nil || errors.Is(err, kv.ErrNotFound) {
				return nil
			}
			return err
		},
	}
}

type healthHandler struct {
	checks []Check
	logger *slog.Logger
}

// NewHealthHandlers creates the /health and /ready http.HandlerFuncs.
func NewHealthHandlers(checks []Check, logger *slog.Logger) (liveness, readiness http.HandlerFunc) {
	handler := &healthHandler{checks: checks, logger: logger}
	return handler.liveness, handler.readiness
}

// liveness handles GET /health (Liveness probe).
func (handler *healthHandler) liveness(writer http.ResponseWriter, _ *http.Request) {
	respond.OK(writer, map[string]string{
		constants.FieldStatus:  "ok",
		constants.FieldApp:     constants.AppName,
		constants.FieldVersion: constants.AppVersion,
	})
}

type checkResult struct {
	Name  string `json:"name"`
	IsOK  bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// readiness handles GET /ready (Readiness probe).
func (handler *healthHandler) readiness(writer http.ResponseWriter, request *http.Request) {
	results := make([]checkResult, 0, len(handler.checks))
	isSystemReady := true

	for _, check := range handler.checks {
		ctx, cancel := context.WithTimeout(request.Context(), probeTimeout)
		err := check.Probe(ctx)
		cancel()

		result := checkResult{Name: check.Name, IsOK: err == nil}
		if err != nil {
			result.Error = err.Error()
			if !check.Informational {
				isSystemReady = false
			}
			handler.logger.Error("readiness_check_failed", slog.String("dependency", check.Name), slog.Any("error", err))
		}
		results = append(results, result)
	}

	responseStatus := "ready"
	httpStatus := http.StatusOK
	if !isSystemReady {
		responseStatus = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	respond.JSON(writer, httpStatus, respond.SuccessEnvelope{Data: map[string]any{
		constants.FieldStatus: responseStatus,
		constants.FieldChecks: results,
	}})
}
