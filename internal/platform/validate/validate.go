// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package validate collects field-level form errors into a single
// [apperr.AppError] so a page can redisplay every problem at once.
//
// Email legitimacy is not checked here; that belongs to the emailcheck
// package, which runs after these structural rules pass.
package validate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/taibuivan/gatekeep/internal/platform/apperr"
)

var (
	// ErrInvalidJSON is returned when the request body cannot be decoded.
	ErrInvalidJSON = apperr.ValidationError("Invalid JSON payload")

	// ErrInvalidForm is returned when a form body cannot be parsed.
	ErrInvalidForm = apperr.ValidationError("Invalid form submission")
)

// Validator accumulates failures through a chainable API.
//
// Not safe for concurrent use; create one per submission.
type Validator struct {
	errs []apperr.FieldError
}

// Required fails if the trimmed value is empty.
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.add(field, "This field is required")
	}
	return v
}

// MaxLen fails if value has more than max characters.
func (v *Validator) MaxLen(field, value string, max int) *Validator {
	if utf8.RuneCountInString(value) > max {
		v.add(field, fmt.Sprintf("Maximum %d characters", max))
	}
	return v
}

// MinLen fails if value has fewer than min characters. Empty values are left
// to [Validator.Required] so a blank field reports one problem, not two.
func (v *Validator) MinLen(field, value string, min int) *Validator {
	if value != "" && utf8.RuneCountInString(value) < min {
		v.add(field, fmt.Sprintf("Minimum %d characters", min))
	}
	return v
}

// MaxBytes fails if value is longer than max bytes. bcrypt ignores input past
// 72 bytes, so passwords are bounded in bytes rather than characters.
func (v *Validator) MaxBytes(field, value string, max int) *Validator {
	if len(value) > max {
		v.add(field, fmt.Sprintf("Maximum %d bytes", max))
	}
	return v
}

// HasErrors reports whether any rule has failed so far.
func (v *Validator) HasErrors() bool {
	return len(v.errs) > 0
}

// Err returns a VALIDATION_ERROR carrying every failure, or nil.
func (v *Validator) Err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return apperr.ValidationError("Please correct the highlighted fields", v.errs...)
}

func (v *Validator) add(field, message string) {
	v.errs = append(v.errs, apperr.FieldError{Field: field, Message: message})
}

// FieldError builds a single-field VALIDATION_ERROR with a page-level message.
func FieldError(field, message, detail string) *apperr.AppError {
	return apperr.ValidationError(message, apperr.FieldError{Field: field, Message: detail})
}
