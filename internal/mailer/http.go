// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
)

const (
	resendEndpoint       = "https://api.resend.com/emails"
	mailChannelsEndpoint = "https://api.mailchannels.net/tx/v1/send"

	// maxErrorBody bounds how much of a failed response is kept for the error.
	maxErrorBody = 512
)

var errMissingAPIKey = errors.New("api key is required")

// postJSON sends body as JSON and fails on any non-2xx status.
func postJSON(context context.Context, client *http.Client, url string, headers map[string]string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("email_encode_failed: %w", err)
	}

	request, err := http.NewRequestWithContext(context, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("email_request_build_failed: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	for key, value := range headers {
		request.Header.Set(key, value)
	}

	response, err := client.Do(request)
	if err != nil {
		return fmt.Errorf("email_request_failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))
		return fmt.Errorf("email_rejected_by_provider: status %d: %s", response.StatusCode, bytes.TrimSpace(detail))
	}
	return nil
}

func formatAddress(name, address string) string {
	if name == "" {
		return address
	}
	return fmt.Sprintf("%s <%s>", name, address)
}

// # Resend

// ResendSender delivers through the Resend HTTP API.
type ResendSender struct {
	client   *http.Client
	endpoint string
	apiKey   string
	from     string
	fromName string
}

// NewResendSender is the [Factory] for [ProviderResend].
func NewResendSender(settings Settings) (Sender, error) {
	if settings.APIKey == "" {
		return nil, errMissingAPIKey
	}

	endpoint := settings.BaseURL
	if endpoint == "" {
		endpoint = resendEndpoint
	}

	return &ResendSender{
		client:   settings.httpClient(),
		endpoint: endpoint,
		apiKey:   settings.APIKey,
		from:     settings.From,
		fromName: settings.FromName,
	}, nil
}

type resendTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type resendRequest struct {
	From    string      `json:"from"`
	To      []string    `json:"to"`
	Subject string      `json:"subject"`
	Text    string      `json:"text"`
	ReplyTo string      `json:"reply_to,omitempty"`
	Tags    []resendTag `json:"tags,omitempty"`
}

// Send implements [Sender].
func (sender *ResendSender) Send(context context.Context, message Message) error {
	name := sender.fromName
	if message.SenderName != "" {
		name = message.SenderName
	}

	body := resendRequest{
		From:    formatAddress(name, sender.from),
		To:      []string{message.To},
		Subject: message.Subject,
		Text:    message.Body,
		ReplyTo: message.ReplyTo,
	}

	// Stable tag order keeps requests reproducible
	keys := make([]string, 0, len(message.Tags))
	for key := range message.Tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		body.Tags = append(body.Tags, resendTag{Name: key, Value: message.Tags[key]})
	}

	return postJSON(context, sender.client, sender.endpoint, map[string]string{
		"Authorization": "Bearer " + sender.apiKey,
	}, body)
}

// # MailChannels

// MailChannelsSender delivers through the MailChannels transactional API.
type MailChannelsSender struct {
	client   *http.Client
	endpoint string
	apiKey   string
	from     string
	fromName string
}

// NewMailChannelsSender is the [Factory] for [ProviderMailChannels].
func NewMailChannelsSender(settings Settings) (Sender, error) {
	if settings.APIKey == "" {
		return nil, errMissingAPIKey
	}

	endpoint := settings.BaseURL
	if endpoint == "" {
		endpoint = mailChannelsEndpoint
	}

	return &MailChannelsSender{
		client:   settings.httpClient(),
		endpoint: endpoint,
		apiKey:   settings.APIKey,
		from:     settings.From,
		fromName: settings.FromName,
	}, nil
}

type mailChannelsAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type mailChannelsPersonalization struct {
	To []mailChannelsAddress `json:"to"`
}

type mailChannelsContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type mailChannelsRequest struct {
	Personalizations []mailChannelsPersonalization `json:"personalizations"`
	From             mailChannelsAddress           `json:"from"`
	ReplyTo          *mailChannelsAddress          `json:"reply_to,omitempty"`
	Subject          string                        `json:"subject"`
	Content          []mailChannelsContent         `json:"content"`
}

// Send implements [Sender].
func (sender *MailChannelsSender) Send(context context.Context, message Message) error {
	name := sender.fromName
	if message.SenderName != "" {
		name = message.SenderName
	}

	body := mailChannelsRequest{
		Personalizations: []mailChannelsPersonalization{{To: []mailChannelsAddress{{Email: message.To}}}},
		From:             mailChannelsAddress{Email: sender.from, Name: name},
		Subject:          message.Subject,
		Content:          []mailChannelsContent{{Type: "text/plain", Value: message.Body}},
	}
	if message.ReplyTo != "" {
		body.ReplyTo = &mailChannelsAddress{Email: message.ReplyTo}
	}

	return postJSON(context, sender.client, sender.endpoint, map[string]string{
		"X-Api-Key": sender.apiKey,
	}, body)
}
