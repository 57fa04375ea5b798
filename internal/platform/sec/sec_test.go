// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/gatekeep/internal/platform/sec"
)

/*
TestGenerateSecureToken verifies length and uniqueness of opaque tokens.
*/
func TestGenerateSecureToken(t *testing.T) {
	first, err := sec.GenerateSecureToken(32)
	require.NoError(t, err)
	second, err := sec.GenerateSecureToken(32)
	require.NoError(t, err)

	// 32 bytes -> 43 base64url characters without padding
	assert.Len(t, first, 43)
	assert.NotEqual(t, first, second)
}

/*
TestHashToken verifies the digest is stable and hides the input.
*/
func TestHashToken(t *testing.T) {
	digest := sec.HashToken("token")

	assert.Len(t, digest, 64)
	assert.Equal(t, digest, sec.HashToken("token"))
	assert.NotEqual(t, digest, sec.HashToken("token2"))
	assert.NotContains(t, digest, "token")
}

/*
TestPasswordHash verifies bcrypt round trips.
*/
func TestPasswordHash(t *testing.T) {
	hash, err := sec.HashPassword("correct horse")
	require.NoError(t, err)

	assert.True(t, sec.CheckPasswordHash("correct horse", hash))
	assert.False(t, sec.CheckPasswordHash("wrong horse", hash))

	// Unknown account
	assert.False(t, sec.CheckPasswordHash("correct horse", ""))
}

/*
TestLinkSigner covers valid, mis-scoped, foreign and tampered tokens.
*/
func TestLinkSigner(t *testing.T) {
	signer := sec.NewLinkSigner("0123456789abcdef0123456789abcdef", "gatekeep")

	token, err := signer.Sign("jane@example.com", "verify_email", time.Hour)
	require.NoError(t, err)

	// 1. Valid
	subject, err := signer.Verify(token, "verify_email")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", subject)

	// 2. Wrong purpose
	_, err = signer.Verify(token, "reset_password")
	assert.ErrorIs(t, err, sec.ErrInvalidLink)

	// 3. Different key
	other := sec.NewLinkSigner("ffffffffffffffffffffffffffffffff", "gatekeep")
	_, err = other.Verify(token, "verify_email")
	assert.ErrorIs(t, err, sec.ErrInvalidLink)

	// 4. Tampered
	_, err = signer.Verify(token+"x", "verify_email")
	assert.ErrorIs(t, err, sec.ErrInvalidLink)
}

/*
TestLinkSigner_Expired verifies expired links are rejected.
*/
func TestLinkSigner_Expired(t *testing.T) {
	signer := sec.NewLinkSigner("0123456789abcdef0123456789abcdef", "gatekeep")

	token, err := signer.Sign("jane@example.com", "verify_email", -time.Minute)
	require.NoError(t, err)

	_, err = signer.Verify(token, "verify_email")
	assert.ErrorIs(t, err, sec.ErrInvalidLink)
}
