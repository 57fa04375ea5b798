// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides cryptographic primitives: password hashing, opaque
// token generation, token fingerprinting and signed email links.
//
// # Architecture
//
// This package isolates security-sensitive code from the domain logic.
// Session and user packages only ever see strings produced here.
package sec

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// GenerateSecureToken returns n bytes of crypto/rand entropy, base64url encoded
// without padding.
func GenerateSecureToken(n int) (string, error) {
	buffer := make([]byte, n)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("sec: failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// HashToken returns the hex BLAKE3 digest of token.
//
// Opaque tokens are stored under their digest so a dump of the store
// never yields a usable cookie value.
func HashToken(token string) string {
	digest := blake3.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}
