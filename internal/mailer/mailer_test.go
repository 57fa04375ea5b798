// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package mailer_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/gatekeep/internal/mailer"
)

type senderFunc func(context.Context, mailer.Message) error

func (f senderFunc) Send(ctx context.Context, message mailer.Message) error { return f(ctx, message) }

func TestRegistry_Resolve(t *testing.T) {
	registry := mailer.DefaultRegistry()

	tests := []struct {
		name     string
		provider string
		settings mailer.Settings
		wantErr  bool
	}{
		{"Log needs nothing", "log", mailer.Settings{}, false},
		{"Case insensitive", "LOG", mailer.Settings{}, false},
		{"Resend with key", "resend", mailer.Settings{APIKey: "re_123"}, false},
		{"Resend without key", "resend", mailer.Settings{}, true},
		{"MailChannels without key", "mailchannels", mailer.Settings{}, true},
		{"Unknown provider", "carrier-pigeon", mailer.Settings{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender, err := registry.Resolve(tt.provider, tt.settings)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, sender)
		})
	}

	assert.Equal(t, []string{"log", "mailchannels", "resend"}, registry.Names())
}

func TestResendSender_Send(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer re_123", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"abc"}`))
	}))
	defer server.Close()

	sender, err := mailer.DefaultRegistry().Resolve("resend", mailer.Settings{
		APIKey: "re_123", From: "hello@example.com", FromName: "Gatekeep", BaseURL: server.URL,
	})
	require.NoError(t, err)

	err = sender.Send(context.Background(), mailer.Message{
		To: "jane@example.com", Subject: "Welcome", Body: "Hi Jane", Tags: map[string]string{"kind": "welcome"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Gatekeep <hello@example.com>", captured["from"])
	assert.Equal(t, []any{"jane@example.com"}, captured["to"])
	assert.Equal(t, "Welcome", captured["subject"])
	assert.Equal(t, "Hi Jane", captured["text"])
	assert.Equal(t, []any{map[string]any{"name": "kind", "value": "welcome"}}, captured["tags"])
}

func TestMailChannelsSender_Send(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "mc_key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sender, err := mailer.NewMailChannelsSender(mailer.Settings{
		APIKey: "mc_key", From: "hello@example.com", FromName: "Gatekeep", BaseURL: server.URL,
	})
	require.NoError(t, err)

	err = sender.Send(context.Background(), mailer.Message{
		To: "inbox@example.com", Subject: "Contact", Body: "Hello", SenderName: "Jane via Gatekeep", ReplyTo: "jane@example.com",
	})
	require.NoError(t, err)

	from := captured["from"].(map[string]any)
	assert.Equal(t, "hello@example.com", from["email"])
	assert.Equal(t, "Jane via Gatekeep", from["name"])
	assert.Equal(t, map[string]any{"email": "jane@example.com"}, captured["reply_to"])
	assert.Equal(t, "Contact", captured["subject"])
}

func TestSender_ProviderRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid from"}`))
	}))
	defer server.Close()

	sender, err := mailer.NewResendSender(mailer.Settings{APIKey: "re_123", BaseURL: server.URL})
	require.NoError(t, err)

	err = sender.Send(context.Background(), mailer.Message{To: "jane@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "invalid from")
}

func TestMailer_Send(t *testing.T) {
	ok := mailer.New(mailer.NewLogSender(), mailer.ProviderLog, nil)
	assert.True(t, ok.Send(context.Background(), mailer.Message{To: "jane@example.com", Subject: "Hi"}))

	failing := mailer.New(senderFunc(func(context.Context, mailer.Message) error {
		return errors.New("smtp down")
	}), "test", nil)
	assert.False(t, failing.Send(context.Background(), mailer.Message{To: "jane@example.com"}))
}
