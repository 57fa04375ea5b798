// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidLink is returned for tampered, expired or mis-scoped link tokens.
var ErrInvalidLink = errors.New("sec: invalid or expired link")

// LinkClaims is the payload of a signed, emailed link (e.g. email verification).
type LinkClaims struct {
	jwt.RegisteredClaims

	// Purpose scopes the token to one flow so a link minted for one action
	// cannot be replayed against another.
	Purpose string `json:"pur"`
}

// LinkSigner mints and verifies HS256 link tokens.
type LinkSigner struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewLinkSigner creates a signer keyed with secret.
func NewLinkSigner(secret, issuer string) *LinkSigner {
	return &LinkSigner{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Sign issues a token binding subject to purpose for timeToLive.
func (signer *LinkSigner) Sign(subject, purpose string, timeToLive time.Duration) (string, error) {
	currentTime := signer.now()
	claims := LinkClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    signer.issuer,
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(timeToLive)),
		},
		Purpose: purpose,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(signer.secret)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign link: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, expiry, issuer and purpose and returns the subject.
func (signer *LinkSigner) Verify(tokenString, purpose string) (string, error) {
	claims := &LinkClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("sec: unexpected signing method: %v", token.Header["alg"])
		}
		return signer.secret, nil
	},
		jwt.WithIssuer(signer.issuer),
		jwt.WithTimeFunc(signer.now),
	)
	if err != nil || !token.Valid {
		return "", ErrInvalidLink
	}

	if claims.Purpose != purpose || claims.Subject == "" {
		return "", ErrInvalidLink
	}

	return claims.Subject, nil
}
