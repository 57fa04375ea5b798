// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package mailer delivers transactional email through a pluggable provider.

Providers implement the one-method [Sender] interface and are resolved by name
from a [Registry] once at startup. Callers use [Mailer], which never fails the
request: delivery problems are logged and reported as false.

Usage:

	sender, err := mailer.DefaultRegistry().Resolve(cfg.EmailProvider, settings)
	if err != nil {
	    return err
	}
	mail := mailer.New(sender, cfg.EmailProvider, metrics)
	ok := mail.Send(ctx, mailer.Message{To: "jane@example.com", Subject: "Hi", Body: "..."})
*/
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/taibuivan/gatekeep/internal/platform/ctxutil"
	"github.com/taibuivan/gatekeep/internal/platform/metrics"
)

// # Provider Names

const (
	ProviderLog          = "log"
	ProviderResend       = "resend"
	ProviderMailChannels = "mailchannels"
)

// defaultTimeout bounds one provider call.
const defaultTimeout = 10 * time.Second

// Message is one outbound email.
type Message struct {
	To         string
	Subject    string
	Body       string
	SenderName string
	ReplyTo    string
	Tags       map[string]string
}

// Sender delivers a message through one provider.
type Sender interface {
	Send(context context.Context, message Message) error
}

// # Registry

// Settings carries what provider factories need.
type Settings struct {
	APIKey   string
	From     string
	FromName string

	// BaseURL overrides the provider endpoint. Empty uses the public API.
	BaseURL string
	Client  *http.Client
}

func (settings Settings) httpClient() *http.Client {
	if settings.Client != nil {
		return settings.Client
	}
	return &http.Client{Timeout: defaultTimeout}
}

// Factory builds a [Sender] from settings.
type Factory func(settings Settings) (Sender, error)

// Registry maps provider names to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with every built-in provider.
func DefaultRegistry() *Registry {
	registry := NewRegistry()
	registry.Register(ProviderLog, func(Settings) (Sender, error) { return NewLogSender(), nil })
	registry.Register(ProviderResend, NewResendSender)
	registry.Register(ProviderMailChannels, NewMailChannelsSender)
	return registry
}

// Register adds or replaces a provider.
func (registry *Registry) Register(name string, factory Factory) {
	registry.factories[strings.ToLower(name)] = factory
}

// Names lists registered providers in sorted order.
func (registry *Registry) Names() []string {
	names := make([]string, 0, len(registry.factories))
	for name := range registry.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve builds the sender registered under name.
func (registry *Registry) Resolve(name string, settings Settings) (Sender, error) {
	factory, ok := registry.factories[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("mailer: unknown provider %q (available: %s)", name, strings.Join(registry.Names(), ", "))
	}

	sender, err := factory(settings)
	if err != nil {
		return nil, fmt.Errorf("mailer: provider %q: %w", name, err)
	}
	return sender, nil
}

// # Mailer

// Mailer is the fail-soft front for a [Sender].
type Mailer struct {
	sender   Sender
	provider string
	metrics  *metrics.Metrics
}

// New wraps sender. provider labels logs and metrics.
func New(sender Sender, provider string, metrics *metrics.Metrics) *Mailer {
	return &Mailer{sender: sender, provider: provider, metrics: metrics}
}

// Send delivers message and reports success. Errors are logged, never returned.
func (mailer *Mailer) Send(context context.Context, message Message) bool {
	logger := ctxutil.GetLogger(context)

	if err := mailer.sender.Send(context, message); err != nil {
		logger.ErrorContext(context, "email_send_failed",
			slog.String("provider", mailer.provider),
			slog.String("subject", message.Subject),
			slog.Any("error", err),
		)
		mailer.metrics.EmailSent(mailer.provider, false)
		return false
	}

	logger.InfoContext(context, "email_sent",
		slog.String("provider", mailer.provider),
		slog.String("subject", message.Subject),
	)
	mailer.metrics.EmailSent(mailer.provider, true)
	return true
}
