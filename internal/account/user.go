// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"errors"
	"time"
)

// # Domain Entities

// User is a registered account. The normalised email is the primary key.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"password_hash"`
	Verified     bool       `json:"verified"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// # Sentinel Errors

var (
	// ErrUserNotFound is returned by [Store] lookups for unknown emails.
	ErrUserNotFound = errors.New("account: user not found")

	// ErrEmailTaken is returned by [Store.Create] for an existing email.
	ErrEmailTaken = errors.New("account: email already registered")

	// ErrHoneypot marks a submission that filled the hidden bot-trap field.
	// Handlers answer it like a success.
	ErrHoneypot = errors.New("account: honeypot triggered")
)

// # Field Names

const (
	FieldName     = "name"
	FieldEmail    = "email"
	FieldPassword = "password"
	FieldMessage  = "message"
	FieldToken    = "token"
	FieldWebsite  = "website"
)

// # Limits

const (
	MaxNameLength    = 100
	MinPasswordLen   = 8
	MaxPasswordLen   = 72 // bcrypt input limit
	MaxMessageLength = 5000

	// VerifyLinkPurpose scopes email-verification tokens.
	VerifyLinkPurpose = "verify_email"

	// DefaultVerifyLinkTTL is how long an emailed verification link stays valid.
	DefaultVerifyLinkTTL = 48 * time.Hour
)
