// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package account implements signup, login, email verification and the contact
form on top of the session, rate-limit, audit and email-check components.

# Architecture

  - [Service] holds the business rules and never touches HTTP.
  - [Handler] renders pages (and JSON for the contact API) and owns cookies.
  - [Store] persists users, by default in the key-value store.
*/
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/taibuivan/gatekeep/internal/audit"
	"github.com/taibuivan/gatekeep/internal/emailcheck"
	"github.com/taibuivan/gatekeep/internal/mailer"
	"github.com/taibuivan/gatekeep/internal/platform/apperr"
	"github.com/taibuivan/gatekeep/internal/platform/ctxutil"
	"github.com/taibuivan/gatekeep/internal/platform/sec"
	"github.com/taibuivan/gatekeep/internal/platform/validate"
	"github.com/taibuivan/gatekeep/pkg/uuid"
)

// # Collaborators

// EmailValidator decides whether an address may be used.
type EmailValidator interface {
	Validate(context context.Context, email string) emailcheck.Result
}

// CaptchaVerifier checks a challenge token for a client IP.
type CaptchaVerifier interface {
	Verify(context context.Context, token, ip string) (bool, error)
}

// Notifier delivers email and reports success.
type Notifier interface {
	Send(context context.Context, message mailer.Message) bool
}

// # Inputs

// SignupInput is a submitted signup form.
type SignupInput struct {
	Name         string
	Email        string
	Password     string
	Honeypot     string
	CaptchaToken string
	IP           string
}

// LoginInput is a submitted login form.
type LoginInput struct {
	Email    string
	Password string
}

// ContactInput is a contact-form submission.
type ContactInput struct {
	Name         string
	Email        string
	Message      string
	Honeypot     string
	CaptchaToken string
	IP           string
}

// ServiceConfig holds the static settings of a [Service].
type ServiceConfig struct {
	// BaseURL is the public origin used in emailed links.
	BaseURL       string
	ContactInbox  string
	VerifyLinkTTL time.Duration
}

// # Service

// Service implements the account use cases.
type Service struct {
	store    Store
	emails   EmailValidator
	captcha  CaptchaVerifier
	links    *sec.LinkSigner
	notifier Notifier
	audit    audit.Recorder
	config   ServiceConfig
	now      func() time.Time
}

// NewService wires a [Service].
func NewService(store Store, emails EmailValidator, captcha CaptchaVerifier, links *sec.LinkSigner,
	notifier Notifier, recorder audit.Recorder, config ServiceConfig) *Service {
	if config.VerifyLinkTTL <= 0 {
		config.VerifyLinkTTL = DefaultVerifyLinkTTL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Service{
		store:    store,
		emails:   emails,
		captcha:  captcha,
		links:    links,
		notifier: notifier,
		audit:    recorder,
		config:   config,
		now:      time.Now,
	}
}

/*
Signup registers a new account.

Checks run in order: honeypot, CAPTCHA, field rules, email legitimacy,
duplicate email. The verification email is best-effort and never fails the
signup.

Returns:
  - *User: The created account
  - error: ErrHoneypot, or an [apperr.AppError] for client-visible failures
*/
func (service *Service) Signup(context context.Context, input SignupInput) (*User, error) {

	// 1. Bot trap
	if input.Honeypot != "" {
		audit.Security(context, service.audit, audit.KindHoneypot, map[string]any{"form": "signup"})
		return nil, ErrHoneypot
	}

	// 2. CAPTCHA
	if err := service.verifyCaptcha(context, input.CaptchaToken, input.IP, "signup"); err != nil {
		return nil, err
	}

	// 3. Field rules
	name := strings.TrimSpace(input.Name)
	validator := &validate.Validator{}
	validator.Required(FieldName, name).
		MaxLen(FieldName, name, MaxNameLength).
		Required(FieldEmail, input.Email).
		Required(FieldPassword, input.Password).
		MinLen(FieldPassword, input.Password, MinPasswordLen).
		MaxBytes(FieldPassword, input.Password, MaxPasswordLen)
	if err := validator.Err(); err != nil {
		return nil, err
	}

	// 4. Email legitimacy
	email, err := service.checkEmail(context, input.Email, "signup")
	if err != nil {
		return nil, err
	}

	// 5. Persist
	hash, err := sec.HashPassword(input.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	user := &User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    service.now().UTC(),
	}

	if err := service.store.Create(context, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, apperr.Conflict("An account with this email already exists")
		}
		return nil, apperr.Internal(err)
	}

	// 6. Side effects
	service.sendVerification(context, user)
	audit.UserAction(context, service.audit, audit.KindSignup, user.Email, nil)

	return user, nil
}

// Login checks credentials. Unknown emails and wrong passwords fail identically.
func (service *Service) Login(context context.Context, input LoginInput) (*User, error) {
	email := emailcheck.Normalize(input.Email)
	invalid := apperr.Unauthorized("Invalid email or password")

	if email == "" || input.Password == "" {
		return nil, invalid
	}

	user, err := service.store.FindByEmail(context, email)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, apperr.Internal(err)
	}

	hash := ""
	if user != nil {
		hash = user.PasswordHash
	}

	// Always compare so unknown emails cost the same as wrong passwords
	if !sec.CheckPasswordHash(input.Password, hash) {
		audit.UserAction(context, service.audit, audit.KindLoginFailed, email, nil)
		return nil, invalid
	}

	audit.UserAction(context, service.audit, audit.KindLogin, email, nil)
	return user, nil
}

// VerifyEmail consumes a signed verification link token.
func (service *Service) VerifyEmail(context context.Context, token string) (*User, error) {
	invalid := validate.FieldError(FieldToken, "This confirmation link is invalid or has expired", "invalid")

	email, err := service.links.Verify(token, VerifyLinkPurpose)
	if err != nil {
		return nil, invalid
	}

	user, err := service.store.FindByEmail(context, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, invalid
		}
		return nil, apperr.Internal(err)
	}

	if user.Verified {
		return user, nil
	}

	verifiedAt := service.now().UTC()
	user.Verified = true
	user.VerifiedAt = &verifiedAt

	if err := service.store.Update(context, user); err != nil {
		return nil, apperr.Internal(err)
	}

	audit.UserAction(context, service.audit, audit.KindEmailVerified, user.Email, nil)
	return user, nil
}

// FindByEmail returns the account for a session subject.
func (service *Service) FindByEmail(context context.Context, email string) (*User, error) {
	user, err := service.store.FindByEmail(context, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperr.Unauthorized("Account no longer exists")
		}
		return nil, apperr.Internal(err)
	}
	return user, nil
}

/*
Contact forwards a contact-form message to the configured inbox.

Returns:
  - bool: Whether the provider accepted the message
  - error: ErrHoneypot, or an [apperr.AppError] for rejected input
*/
func (service *Service) Contact(context context.Context, input ContactInput) (bool, error) {
	if input.Honeypot != "" {
		audit.Security(context, service.audit, audit.KindHoneypot, map[string]any{"form": "contact"})
		return false, ErrHoneypot
	}

	if err := service.verifyCaptcha(context, input.CaptchaToken, input.IP, "contact"); err != nil {
		return false, err
	}

	name := strings.TrimSpace(input.Name)
	message := strings.TrimSpace(input.Message)
	validator := &validate.Validator{}
	validator.Required(FieldName, name).
		MaxLen(FieldName, name, MaxNameLength).
		Required(FieldEmail, input.Email).
		Required(FieldMessage, message).
		MaxLen(FieldMessage, message, MaxMessageLength)
	if err := validator.Err(); err != nil {
		return false, err
	}

	email, err := service.checkEmail(context, input.Email, "contact")
	if err != nil {
		return false, err
	}

	sent := service.notifier.Send(context, mailer.Message{
		To:         service.config.ContactInbox,
		Subject:    "Contact form: " + name,
		Body:       fmt.Sprintf("From: %s <%s>\n\n%s\n", name, email, message),
		SenderName: name + " via Gatekeep",
		ReplyTo:    email,
		Tags:       map[string]string{"category": "contact"},
	})

	audit.UserAction(context, service.audit, audit.KindContact, email, map[string]any{"delivered": sent})
	return sent, nil
}

// # Internals

func (service *Service) verifyCaptcha(context context.Context, token, ip, form string) error {
	ok, err := service.captcha.Verify(context, token, ip)
	if err != nil || !ok {
		details := map[string]any{"form": form}
		if err != nil {
			ctxutil.GetLogger(context).WarnContext(context, "captcha_verification_error", slog.Any("error", err))
			details["error"] = err.Error()
		}
		audit.Security(context, service.audit, audit.KindCaptchaFailed, details)
		return apperr.CaptchaFailed()
	}
	return nil
}

// checkEmail returns the normalised address or an EMAIL_REJECTED error.
func (service *Service) checkEmail(context context.Context, email, form string) (string, error) {
	result := service.emails.Validate(context, email)
	if result.Valid {
		return result.Normalized, nil
	}

	audit.Security(context, service.audit, audit.KindEmailRejected, map[string]any{
		"form":   form,
		"email":  result.Normalized,
		"reason": string(result.Reason),
	})

	rejection := apperr.EmailRejected(string(result.Reason))
	rejection.Message = result.Reason.Message()
	return "", rejection
}

func (service *Service) sendVerification(context context.Context, user *User) {
	token, err := service.links.Sign(user.Email, VerifyLinkPurpose, service.config.VerifyLinkTTL)
	if err != nil {
		ctxutil.GetLogger(context).WarnContext(context, "verification_link_sign_failed", slog.Any("error", err))
		return
	}

	link := service.config.BaseURL + "/verify?token=" + token
	service.notifier.Send(context, mailer.Message{
		To:      user.Email,
		Subject: "Confirm your email address",
		Body: fmt.Sprintf("Hi %s,\n\nPlease confirm your email address by opening the link below.\n\n%s\n\nThe link expires in %s.\n",
			user.Name, link, service.config.VerifyLinkTTL),
		Tags: map[string]string{"category": "verify_email"},
	})
}
