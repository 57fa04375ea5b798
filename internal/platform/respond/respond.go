// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package respond writes the JSON bodies of the API endpoints (/api/contact,
// /health, /ready). Pages go through the web package instead.
//
// Success bodies are {"data": ...}; failures are {"error", "code", "details"}.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/taibuivan/gatekeep/internal/platform/apperr"
	"github.com/taibuivan/gatekeep/internal/platform/ctxutil"
)

// SuccessEnvelope wraps a successful payload.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// ErrorEnvelope is the body of every failed API call.
type ErrorEnvelope struct {
	Error   string              `json:"error"`
	Code    string              `json:"code"`
	Details []apperr.FieldError `json:"details,omitempty"`
}

// JSON encodes payload with status.
func JSON(writer http.ResponseWriter, status int, payload any) {
	writer.Header().Set("Content-Type", "application/json; charset=utf-8")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(payload)
}

// OK writes data in a [SuccessEnvelope] with 200.
func OK(writer http.ResponseWriter, data any) {
	JSON(writer, http.StatusOK, SuccessEnvelope{Data: data})
}

/*
Error writes err as an [ErrorEnvelope].

Anything that is not an [apperr.AppError] becomes a generic 500. Server-side
failures are logged with their cause; the client only sees the message.
*/
func Error(writer http.ResponseWriter, request *http.Request, err error) {
	ctx := request.Context()

	appError := apperr.As(err)
	if appError == nil {
		appError = apperr.Internal(err)
	}

	if appError.HTTPStatus >= http.StatusInternalServerError {
		ctxutil.GetLogger(ctx).ErrorContext(ctx, "api_request_failed",
			slog.String("code", appError.Code),
			slog.String("request_id", ctxutil.GetRequestID(ctx)),
			slog.Any("cause", appError.Cause),
		)
	}

	JSON(writer, appError.HTTPStatus, ErrorEnvelope{
		Error:   appError.Message,
		Code:    appError.Code,
		Details: appError.Details,
	})
}
