// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package apperr defines the client-facing error type for gatekeep.

Handlers never write raw errors. Service code returns an [AppError] for every
failure the visitor can act on (bad input, rejected email, CAPTCHA, rate
limit) and lets anything else fall through to [Internal], whose cause is
logged and never rendered.

The same value drives both the JSON API (respond.Error) and the HTML pages
(web.RenderError).
*/
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// # Codes

// Machine-readable identifiers carried in the "code" field of JSON errors.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeConflict           = "CONFLICT"
	CodeEmailRejected      = "EMAIL_REJECTED"
	CodeCaptchaFailed      = "CAPTCHA_FAILED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// AppError is a failure safe to show to the visitor.
//
// # Security
//
// Cause is for server-side logging only and is never serialized.
type AppError struct {
	Code       string       `json:"code"`
	Message    string       `json:"error"`
	HTTPStatus int          `json:"-"`
	Cause      error        `json:"-"`
	Details    []FieldError `json:"details,omitempty"`
}

// FieldError pins a failure to one form or JSON field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error returns the client-safe message.
func (e *AppError) Error() string { return e.Message }

// Unwrap exposes Cause to [errors.Is] and [errors.As].
func (e *AppError) Unwrap() error { return e.Cause }

func newError(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// # Client Errors (4xx)

// ValidationError is a 400 with optional per-field details.
func ValidationError(msg string, details ...FieldError) *AppError {
	appError := newError(http.StatusBadRequest, CodeValidation, msg)
	appError.Details = details
	return appError
}

// Unauthorized is a 401. Login uses one message for every credential failure.
func Unauthorized(msg string) *AppError {
	return newError(http.StatusUnauthorized, CodeUnauthorized, msg)
}

// Forbidden is a 403.
func Forbidden(msg string) *AppError {
	return newError(http.StatusForbidden, CodeForbidden, msg)
}

// Conflict is a 409, used for an email that already has an account.
func Conflict(msg string) *AppError {
	return newError(http.StatusConflict, CodeConflict, msg)
}

// EmailRejected is a 422 for an address refused by the legitimacy checks.
// reason is the validator's machine-readable code, e.g. "disposable_domain".
func EmailRejected(reason string) *AppError {
	appError := newError(http.StatusUnprocessableEntity, CodeEmailRejected, "Please use a permanent, personal email address")
	appError.Details = []FieldError{{Field: "email", Message: reason}}
	return appError
}

// CaptchaFailed is a 403 for a missing, invalid or unverifiable CAPTCHA token.
func CaptchaFailed() *AppError {
	return newError(http.StatusForbidden, CodeCaptchaFailed, "Verification failed, please try again")
}

// RateLimited is a 429. The caller sets Retry-After.
func RateLimited(retryAfterSeconds int) *AppError {
	return newError(http.StatusTooManyRequests, CodeRateLimited,
		fmt.Sprintf("Too many requests. Try again in %ds.", retryAfterSeconds))
}

// # Server Errors (5xx)

// Internal is a 500 hiding cause from the client.
func Internal(cause error) *AppError {
	appError := newError(http.StatusInternalServerError, CodeInternal, "An unexpected error occurred")
	appError.Cause = cause
	return appError
}

// ServiceUnavailable is a 503 for a downstream dependency that failed, such
// as the email provider.
func ServiceUnavailable(msg string) *AppError {
	return newError(http.StatusServiceUnavailable, CodeServiceUnavailable, msg)
}

// As extracts the [*AppError] from err's chain, or nil.
func As(err error) *AppError {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError
	}
	return nil
}
