// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// decoyPassword only ever feeds the decoy hash.
const decoyPassword = "gatekeep-timing-decoy"

var (
	decoyOnce sync.Once
	decoyHash []byte
)

// HashPassword returns the bcrypt hash of password. Inputs over 72 bytes are
// rejected by bcrypt; callers validate the length first.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("sec_hash_password_failed: %w", err)
	}
	return string(hashed), nil
}

/*
CheckPasswordHash reports whether password matches hash.

An empty hash stands for an unknown account: the password is still compared
against a decoy so both failures take the same time.
*/
func CheckPasswordHash(password, hash string) bool {
	if hash == "" {
		decoyOnce.Do(func() {
			decoyHash, _ = bcrypt.GenerateFromPassword([]byte(decoyPassword), bcrypt.DefaultCost)
		})
		_ = bcrypt.CompareHashAndPassword(decoyHash, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
