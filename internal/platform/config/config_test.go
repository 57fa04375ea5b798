// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/gatekeep/internal/platform/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

/*
TestLoad_Defaults verifies the documented defaults for the memory backend.
*/
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", testSecret)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 7*24*time.Hour, cfg.SessionMaxAge)
	assert.Equal(t, 5*time.Minute, cfg.SessionRefreshInterval)
	assert.Equal(t, 3, cfg.SignupRateLimit)
	assert.Equal(t, time.Hour, cfg.SignupRateWindow)
	assert.Equal(t, 30*24*time.Hour, cfg.AuditRetention)
	assert.Equal(t, 24*time.Hour, cfg.BlocklistTTL)
	assert.Equal(t, "log", cfg.EmailProvider)
	assert.True(t, cfg.IsDevelopment())
}

/*
TestLoad_Invalid covers cross-field validation failures.
*/
func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing_secret", map[string]string{}},
		{"short_secret", map[string]string{"SESSION_SECRET": "short"}},
		{"redis_without_url", map[string]string{"SESSION_SECRET": testSecret, "STORE_BACKEND": "redis"}},
		{"postgres_without_dsn", map[string]string{"SESSION_SECRET": testSecret, "STORE_BACKEND": "postgres"}},
		{"unknown_backend", map[string]string{"SESSION_SECRET": testSecret, "STORE_BACKEND": "etcd"}},
		{"production_without_captcha", map[string]string{"SESSION_SECRET": testSecret, "ENVIRONMENT": "production"}},
		{"bad_trusted_proxy", map[string]string{"SESSION_SECRET": testSecret, "TRUSTED_PROXIES": "10.0.0.0/8,lb.internal"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

/*
TestLoad_ExtraOrigins verifies comma-separated list parsing.
*/
func TestLoad_ExtraOrigins(t *testing.T) {
	t.Setenv("SESSION_SECRET", testSecret)
	t.Setenv("EXTRA_ORIGINS", "https://a.example,https://b.example")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.ExtraOrigins)
}

func TestLoad_TrustedProxies(t *testing.T) {
	t.Setenv("SESSION_SECRET", testSecret)
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8,192.0.2.10")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.10"}, cfg.TrustedProxies)
}
