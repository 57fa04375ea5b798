// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package captcha verifies Cloudflare Turnstile challenge tokens.
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultVerifyURL is the public Turnstile siteverify endpoint.
const DefaultVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// FormField is the form field the Turnstile widget populates.
const FormField = "cf-turnstile-response"

// ErrMissingToken is returned when an enabled verifier receives no token.
var ErrMissingToken = errors.New("captcha: token is required")

// Verifier checks tokens against the siteverify endpoint.
type Verifier struct {
	client    *http.Client
	verifyURL string
	secret    string
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// NewVerifier creates a verifier. An empty secret disables verification.
func NewVerifier(secret, verifyURL string, timeout time.Duration) *Verifier {
	if verifyURL == "" {
		verifyURL = DefaultVerifyURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Verifier{client: &http.Client{Timeout: timeout}, verifyURL: verifyURL, secret: secret}
}

// Enabled reports whether tokens are actually checked.
func (verifier *Verifier) Enabled() bool {
	return verifier != nil && verifier.secret != ""
}

/*
Verify reports whether token is a valid challenge solution for the client ip.

A disabled verifier accepts every token. Transport failures return an error and
must be treated as a failed challenge.
*/
func (verifier *Verifier) Verify(context context.Context, token, ip string) (bool, error) {
	if !verifier.Enabled() {
		return true, nil
	}
	if strings.TrimSpace(token) == "" {
		return false, ErrMissingToken
	}

	form := url.Values{}
	form.Set("secret", verifier.secret)
	form.Set("response", token)
	if ip != "" {
		form.Set("remoteip", ip)
	}

	request, err := http.NewRequestWithContext(context, http.MethodPost, verifier.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("captcha_request_build_failed: %w", err)
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := verifier.client.Do(request)
	if err != nil {
		return false, fmt.Errorf("captcha_verify_failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return false, fmt.Errorf("captcha_verify_failed: unexpected status %d", response.StatusCode)
	}

	var result verifyResponse
	if err := json.NewDecoder(io.LimitReader(response.Body, 64<<10)).Decode(&result); err != nil {
		return false, fmt.Errorf("captcha_decode_failed: %w", err)
	}

	return result.Success, nil
}
