// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/gatekeep/internal/audit"
	"github.com/taibuivan/gatekeep/internal/captcha"
	"github.com/taibuivan/gatekeep/internal/platform/apperr"
	"github.com/taibuivan/gatekeep/internal/platform/ctxutil"
	requestutil "github.com/taibuivan/gatekeep/internal/platform/request"
	"github.com/taibuivan/gatekeep/internal/platform/respond"
	"github.com/taibuivan/gatekeep/internal/ratelimit"
	"github.com/taibuivan/gatekeep/internal/session"
	"github.com/taibuivan/gatekeep/internal/web"
)

// # Paths

const (
	PathSignup    = "/signup"
	PathLogin     = "/login"
	PathLogout    = "/logout"
	PathVerify    = "/verify"
	PathDashboard = "/dashboard"
	PathContact   = "/api/contact"
)

// # Rate-Limit Actions

const (
	ActionSignup  = "signup"
	ActionLogin   = "login"
	ActionContact = "contact"
)

// dashboardActivityLimit is how many audit events the dashboard lists.
const dashboardActivityLimit = 10

// ActivityReader lists recent audit events for one account.
type ActivityReader interface {
	RecentFor(context context.Context, email string, limit int) ([]audit.Event, error)
}

// RateRule is one limit/window pair.
type RateRule struct {
	Limit  int
	Window time.Duration
}

// HandlerConfig holds the per-action limits and page settings.
type HandlerConfig struct {
	Signup  RateRule
	Login   RateRule
	Contact RateRule

	// SiteKey is the public Turnstile key. Empty hides the widget.
	SiteKey string
}

// # Definitions & Constructors

// Handler implements the account pages and the contact API.
type Handler struct {
	service  *Service
	sessions *session.Manager
	limiter  *ratelimit.Limiter
	pages    *web.Renderer
	audit    audit.Recorder
	activity ActivityReader
	config   HandlerConfig
}

// NewHandler constructs a [Handler]. activity may be nil.
func NewHandler(service *Service, sessions *session.Manager, limiter *ratelimit.Limiter, pages *web.Renderer,
	recorder audit.Recorder, activity ActivityReader, config HandlerConfig) *Handler {
	return &Handler{
		service:  service,
		sessions: sessions,
		limiter:  limiter,
		pages:    pages,
		audit:    recorder,
		activity: activity,
		config:   config,
	}
}

// RegisterRoutes mounts the account endpoints on router.
//
// # Endpoints
//   - GET|POST /signup    : Registration form
//   - GET|POST /login     : Sign-in form
//   - GET /logout         : Ends the session
//   - GET /verify         : Email confirmation link target
//   - GET /dashboard      : Session required
//   - POST /api/contact   : JSON contact form
//
// Must be mounted behind [session.LoadSession].
func (handler *Handler) RegisterRoutes(router chi.Router) {
	router.Get(PathSignup, handler.signupForm)
	router.Post(PathSignup, handler.signup)
	router.Get(PathLogin, handler.loginForm)
	router.Post(PathLogin, handler.login)
	router.Get(PathLogout, handler.logout)
	router.Get(PathVerify, handler.verify)
	router.Post(PathContact, handler.contact)

	router.Group(func(r chi.Router) {
		r.Use(session.RequireSession(PathLogin))
		r.Get(PathDashboard, handler.dashboard)
	})
}

// # Pages

func (handler *Handler) signupForm(writer http.ResponseWriter, request *http.Request) {
	if session.FromContext(request.Context()) != nil {
		http.Redirect(writer, request, PathDashboard, http.StatusSeeOther)
		return
	}
	handler.pages.Render(writer, request, http.StatusOK, web.PageSignup, handler.page(request, "Sign up"))
}

/*
Signup handles the registration form.

POST /signup

Response:
  - 303: Redirect to /dashboard with a fresh session
  - 4xx: Signup page re-rendered with the reason
*/
func (handler *Handler) signup(writer http.ResponseWriter, request *http.Request) {
	if err := requestutil.ParseForm(writer, request); err != nil {
		handler.pages.RenderError(writer, request, err)
		return
	}

	page := handler.page(request, "Sign up")
	page.Form = map[string]string{
		FieldName:  requestutil.Field(request, FieldName),
		FieldEmail: requestutil.Field(request, FieldEmail),
	}

	if !handler.limiter.Check(writer, request, handler.pagePolicy(ActionSignup, handler.config.Signup, web.PageSignup, page)) {
		return
	}

	user, err := handler.service.Signup(request.Context(), SignupInput{
		Name:         page.Form[FieldName],
		Email:        page.Form[FieldEmail],
		Password:     requestutil.RawField(request, FieldPassword),
		Honeypot:     requestutil.Field(request, FieldWebsite),
		CaptchaToken: requestutil.Field(request, captcha.FormField),
		IP:           ctxutil.GetClientIP(request.Context()),
	})

	// Bots get the same redirect a person would
	if errors.Is(err, ErrHoneypot) {
		http.Redirect(writer, request, PathLogin, http.StatusSeeOther)
		return
	}
	if err != nil {
		handler.renderFormError(writer, request, web.PageSignup, page, err)
		return
	}

	if err := handler.startSession(writer, request, user.Email); err != nil {
		handler.pages.RenderError(writer, request, err)
		return
	}

	http.Redirect(writer, request, PathDashboard+"?welcome=1", http.StatusSeeOther)
}

func (handler *Handler) loginForm(writer http.ResponseWriter, request *http.Request) {
	if session.FromContext(request.Context()) != nil {
		http.Redirect(writer, request, PathDashboard, http.StatusSeeOther)
		return
	}
	handler.pages.Render(writer, request, http.StatusOK, web.PageLogin, handler.page(request, "Sign in"))
}

/*
Login handles the sign-in form.

POST /login

Response:
  - 303: Redirect to /dashboard with a fresh session
  - 401: Login page re-rendered with a generic failure
  - 429: Too many attempts
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	if err := requestutil.ParseForm(writer, request); err != nil {
		handler.pages.RenderError(writer, request, err)
		return
	}

	page := handler.page(request, "Sign in")
	page.Form = map[string]string{FieldEmail: requestutil.Field(request, FieldEmail)}

	if !handler.limiter.Check(writer, request, handler.pagePolicy(ActionLogin, handler.config.Login, web.PageLogin, page)) {
		return
	}

	user, err := handler.service.Login(request.Context(), LoginInput{
		Email:    page.Form[FieldEmail],
		Password: requestutil.RawField(request, FieldPassword),
	})
	if err != nil {
		handler.renderFormError(writer, request, web.PageLogin, page, err)
		return
	}

	if err := handler.startSession(writer, request, user.Email); err != nil {
		handler.pages.RenderError(writer, request, err)
		return
	}

	http.Redirect(writer, request, PathDashboard, http.StatusSeeOther)
}

/*
Logout destroys the current session and clears the cookie.

GET /logout

Response:
  - 303: Redirect to /
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	ctx := request.Context()

	if record := session.FromContext(ctx); record != nil {
		if err := handler.sessions.Destroy(ctx, session.IDFromContext(ctx)); err != nil {
			ctxutil.GetLogger(ctx).WarnContext(ctx, "session_destroy_failed", slog.Any("error", err))
		}
		audit.UserAction(ctx, handler.audit, audit.KindLogout, record.Subject, nil)
	}

	http.SetCookie(writer, session.ClearCookie())
	http.Redirect(writer, request, "/", http.StatusSeeOther)
}

/*
Verify confirms an email address from an emailed link.

GET /verify?token=...
*/
func (handler *Handler) verify(writer http.ResponseWriter, request *http.Request) {
	page := handler.page(request, "Email confirmation")

	if _, err := handler.service.VerifyEmail(request.Context(), request.URL.Query().Get(FieldToken)); err != nil {
		status := http.StatusInternalServerError
		if appError := apperr.As(err); appError != nil {
			status = appError.HTTPStatus
			page.Error = appError.Message
		} else {
			page.Error = "An unexpected error occurred"
		}
		handler.pages.Render(writer, request, status, web.PageVerify, page)
		return
	}

	handler.pages.Render(writer, request, http.StatusOK, web.PageVerify, page)
}

// dashboardView is the dashboard template payload.
type dashboardView struct {
	Name     string
	Verified bool
	Activity []audit.Event
}

/*
Dashboard shows the account summary and recent activity.

GET /dashboard (session required)
*/
func (handler *Handler) dashboard(writer http.ResponseWriter, request *http.Request) {
	ctx := request.Context()
	record := session.FromContext(ctx)

	user, err := handler.service.FindByEmail(ctx, record.Subject)
	if err != nil {
		if appError := apperr.As(err); appError != nil && appError.HTTPStatus == http.StatusUnauthorized {
			_ = handler.sessions.Destroy(ctx, session.IDFromContext(ctx))
			http.SetCookie(writer, session.ClearCookie())
			http.Redirect(writer, request, PathLogin, http.StatusSeeOther)
			return
		}
		handler.pages.RenderError(writer, request, err)
		return
	}

	view := dashboardView{Name: user.Name, Verified: user.Verified}
	if handler.activity != nil {
		events, err := handler.activity.RecentFor(ctx, user.Email, dashboardActivityLimit)
		if err != nil {
			ctxutil.GetLogger(ctx).WarnContext(ctx, "dashboard_activity_unavailable", slog.Any("error", err))
		}
		view.Activity = events
	}

	page := handler.page(request, "Dashboard")
	page.Data = view
	if request.URL.Query().Get("welcome") != "" {
		page.Flash = "Welcome aboard! Check your inbox to confirm your email address."
	}

	handler.pages.Render(writer, request, http.StatusOK, web.PageDashboard, page)
}

// # Contact API

type contactRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Message      string `json:"message"`
	Website      string `json:"website"`
	CaptchaToken string `json:"captcha_token"`
}

/*
Contact forwards a message to the site inbox.

POST /api/contact

Request:
  - Body: contactRequest (Name, Email, Message, CaptchaToken)

Response:
  - 200: {"sent": true}
  - 400: Validation failure
  - 403: CAPTCHA failed
  - 422: Email rejected
  - 429: Rate limited
  - 503: Provider did not accept the message
*/
func (handler *Handler) contact(writer http.ResponseWriter, request *http.Request) {
	policy := ratelimit.Policy{
		Action:   ActionContact,
		Limit:    handler.config.Contact.Limit,
		Window:   handler.config.Contact.Window,
		OnReject: handler.recordRateLimited,
		Reject: func(writer http.ResponseWriter, request *http.Request, _ ratelimit.Result) {
			respond.Error(writer, request, apperr.RateLimited(retryAfter(writer)))
		},
	}
	if !handler.limiter.Check(writer, request, policy) {
		return
	}

	var input contactRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	sent, err := handler.service.Contact(request.Context(), ContactInput{
		Name:         input.Name,
		Email:        input.Email,
		Message:      input.Message,
		Honeypot:     input.Website,
		CaptchaToken: input.CaptchaToken,
		IP:           ctxutil.GetClientIP(request.Context()),
	})

	switch {
	case errors.Is(err, ErrHoneypot):
		respond.OK(writer, map[string]bool{"sent": true})
	case err != nil:
		respond.Error(writer, request, err)
	case !sent:
		respond.Error(writer, request, apperr.ServiceUnavailable("Your message could not be delivered. Please try again later."))
	default:
		respond.OK(writer, map[string]bool{"sent": true})
	}
}

// # Helpers

// page builds the common view model for request.
func (handler *Handler) page(request *http.Request, title string) web.Page {
	page := web.Page{Title: title, SiteKey: handler.config.SiteKey}
	if record := session.FromContext(request.Context()); record != nil {
		page.Email = record.Subject
	}
	return page
}

// pagePolicy limits a form POST and re-renders the form on rejection.
func (handler *Handler) pagePolicy(action string, rule RateRule, name string, page web.Page) ratelimit.Policy {
	return ratelimit.Policy{
		Action:   action,
		Limit:    rule.Limit,
		Window:   rule.Window,
		OnReject: handler.recordRateLimited,
		Reject: func(writer http.ResponseWriter, request *http.Request, _ ratelimit.Result) {
			page.Error = apperr.RateLimited(retryAfter(writer)).Message
			handler.pages.Render(writer, request, http.StatusTooManyRequests, name, page)
		},
	}
}

func (handler *Handler) recordRateLimited(request *http.Request, result ratelimit.Result) {
	audit.Security(request.Context(), handler.audit, audit.KindRateLimited, map[string]any{
		"path":  request.URL.Path,
		"limit": result.Limit,
	})
}

// renderFormError re-renders a form page with the failure reason.
func (handler *Handler) renderFormError(writer http.ResponseWriter, request *http.Request, name string, page web.Page, err error) {
	appError := apperr.As(err)
	if appError == nil || appError.HTTPStatus >= http.StatusInternalServerError {
		handler.pages.RenderError(writer, request, err)
		return
	}

	page.Error = describe(appError)
	handler.pages.Render(writer, request, appError.HTTPStatus, name, page)
}

// describe flattens field details into one readable sentence.
func describe(appError *apperr.AppError) string {
	if appError.Code != "VALIDATION_ERROR" || len(appError.Details) == 0 {
		return appError.Message
	}

	parts := make([]string, 0, len(appError.Details))
	for _, detail := range appError.Details {
		parts = append(parts, fmt.Sprintf("%s: %s", detail.Field, detail.Message))
	}
	return strings.Join(parts, "; ")
}

// retryAfter reads the Retry-After header the limiter already set.
func retryAfter(writer http.ResponseWriter) int {
	seconds, _ := strconv.Atoi(writer.Header().Get(ratelimit.HeaderRetryAfter))
	return seconds
}

// startSession rotates any existing session and issues a new cookie.
func (handler *Handler) startSession(writer http.ResponseWriter, request *http.Request, email string) error {
	ctx := request.Context()

	if previous := session.IDFromContext(ctx); previous != "" {
		_ = handler.sessions.Destroy(ctx, previous)
	}

	id, err := handler.sessions.Create(ctx, email, session.Options{
		IP:        ctxutil.GetClientIP(ctx),
		UserAgent: request.UserAgent(),
	})
	if err != nil {
		return apperr.Internal(err)
	}

	http.SetCookie(writer, session.Cookie(id, handler.sessions.MaxAge()))
	return nil
}
