// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package local

import (
	"context"
	"time"
)

// Credential is the sign-in secret of a subject.
type Credential struct {
	SubjectID    string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// RefreshToken is the server-side record of an issued refresh token.
// Only the hash of the token is stored.
type RefreshToken struct {
	ID        string
	SubjectID string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpiredAt reports whether the token is expired at t.
func (r *RefreshToken) IsExpiredAt(t time.Time) bool {
	return !t.Before(r.ExpiresAt)
}

// CredentialStore persists credentials.
type CredentialStore interface {
	// Create stores a credential. A duplicate email yields identity.ErrAlreadyExists.
	Create(ctx context.Context, cred *Credential) error

	// GetByEmail returns the credential for email (case-insensitive) or identity.ErrNotFound.
	GetByEmail(ctx context.Context, email string) (*Credential, error)
}

// RefreshTokenStore persists refresh tokens.
type RefreshTokenStore interface {
	// Create stores a refresh token record.
	Create(ctx context.Context, token *RefreshToken) error

	// Consume deletes and returns the record for tokenHash, or identity.ErrNotFound.
	Consume(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// DeleteExpired removes records expired at now and returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
