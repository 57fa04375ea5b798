// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package emailcheck decides whether a submitted address looks legitimate enough
to create an account with.

Checks run in a fixed order and the first failure wins:

 1. Structure and length
 2. Exact match against the disposable-domain blocklist
 3. Heuristic patterns on the whole address
 4. Domain shape

Validation never returns an error. Blocklist refresh failures degrade to the
fallback chain described on [Blocklist].
*/
package emailcheck

import (
	"context"
	"strings"
)

// Reason is a machine-readable rejection code.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonInvalidFormat     Reason = "invalid_format"
	ReasonDisposableDomain  Reason = "disposable_domain"
	ReasonSuspiciousPattern Reason = "suspicious_pattern"
	ReasonInvalidDomain     Reason = "invalid_domain"
)

// Message returns the user-facing text for a rejection code.
func (reason Reason) Message() string {
	switch reason {
	case ReasonInvalidFormat:
		return "Please enter a valid email address."
	case ReasonDisposableDomain:
		return "Disposable email addresses are not allowed."
	case ReasonSuspiciousPattern:
		return "This email address cannot be used. Please use your regular address."
	case ReasonInvalidDomain:
		return "The email domain does not look valid."
	default:
		return ""
	}
}

// Result is the verdict for one address.
type Result struct {
	Valid  bool
	Reason Reason
	// Normalized is the trimmed, lower-cased form used for every check.
	Normalized string
}

// Validator runs the ordered checks.
type Validator struct {
	blocklist *Blocklist
}

// NewValidator creates a validator. A nil blocklist uses only the built-in list.
func NewValidator(blocklist *Blocklist) *Validator {
	if blocklist == nil {
		blocklist = NewBlocklist(nil, nil, DefaultFreshness, nil)
	}
	return &Validator{blocklist: blocklist}
}

// Validate checks email and reports the first failing rule.
func (validator *Validator) Validate(context context.Context, email string) Result {
	normalized := Normalize(email)
	reject := func(reason Reason) Result {
		return Result{Reason: reason, Normalized: normalized}
	}

	// 1. Structure
	if normalized == "" || len(normalized) > maxEmailLength || !structureRegex.MatchString(normalized) {
		return reject(ReasonInvalidFormat)
	}
	domain := normalized[strings.LastIndex(normalized, "@")+1:]

	// 2. Blocklist
	if validator.blocklist.Contains(context, domain) {
		return reject(ReasonDisposableDomain)
	}

	// 3. Heuristics
	for _, pattern := range suspiciousPatterns {
		if pattern.MatchString(normalized) {
			return reject(ReasonSuspiciousPattern)
		}
	}

	// 4. Domain shape
	if !validDomainShape(domain) {
		return reject(ReasonInvalidDomain)
	}

	return Result{Valid: true, Normalized: normalized}
}
