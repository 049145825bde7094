// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package local

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

const (
	tokenIssuer       = "fieldguard"
	refreshTokenBytes = 32
)

// Claims are the access token claims.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// signer issues and verifies HS256 access tokens.
type signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func (s *signer) issue(subject, email string) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   subject,
			ID:        ulid.Make().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("IDENTITY_TOKEN_SIGN_FAILED").With("subject", subject).Wrap(err)
	}
	return token, expires, nil
}

func (s *signer) verify(raw string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, oops.Code("IDENTITY_TOKEN_INVALID").Wrap(err)
	}
	return &claims, nil
}

// newRefreshToken returns a random refresh token and its stored hash.
func newRefreshToken() (raw, hash string, err error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", oops.Code("IDENTITY_TOKEN_GENERATE_FAILED").Wrap(err)
	}
	raw = hex.EncodeToString(b)
	return raw, hashRefreshToken(raw), nil
}

func ulidString() string {
	return ulid.Make().String()
}

func hashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
