// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/fieldguard/fieldguard/internal/identity"
	"github.com/fieldguard/fieldguard/internal/identity/local"
)

// CredentialRepository implements local.CredentialStore.
type CredentialRepository struct {
	db Querier
}

// NewCredentialRepository creates a CredentialRepository.
func NewCredentialRepository(db Querier) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Create stores a credential.
func (r *CredentialRepository) Create(ctx context.Context, c *local.Credential) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO credentials (subject_id, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`, c.SubjectID, c.Email, c.PasswordHash, c.CreatedAt)
	if isUniqueViolation(err) {
		return oops.Code("CREDENTIAL_ALREADY_EXISTS").With("email", c.Email).Wrap(identity.ErrAlreadyExists)
	}
	if err != nil {
		return oops.Code("CREDENTIAL_CREATE_FAILED").With("email", c.Email).Wrap(err)
	}
	return nil
}

// GetByEmail returns the credential for email, case-insensitively.
func (r *CredentialRepository) GetByEmail(ctx context.Context, email string) (*local.Credential, error) {
	var c local.Credential
	err := r.db.QueryRow(ctx, `
		SELECT subject_id, email, password_hash, created_at
		FROM credentials
		WHERE LOWER(email) = LOWER($1)
	`, email).Scan(&c.SubjectID, &c.Email, &c.PasswordHash, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("CREDENTIAL_NOT_FOUND").With("email", email).Wrap(identity.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("CREDENTIAL_QUERY_FAILED").With("email", email).Wrap(err)
	}
	return &c, nil
}

// RefreshTokenRepository implements local.RefreshTokenStore.
type RefreshTokenRepository struct {
	db Querier
}

// NewRefreshTokenRepository creates a RefreshTokenRepository.
func NewRefreshTokenRepository(db Querier) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create stores a refresh token record.
func (r *RefreshTokenRepository) Create(ctx context.Context, t *local.RefreshToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, subject_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, t.ID, t.SubjectID, t.TokenHash, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		return oops.Code("REFRESH_TOKEN_CREATE_FAILED").With("subject_id", t.SubjectID).Wrap(err)
	}
	return nil
}

// Consume deletes and returns the record for tokenHash in one statement, so a
// token can be redeemed at most once.
func (r *RefreshTokenRepository) Consume(ctx context.Context, tokenHash string) (*local.RefreshToken, error) {
	t := local.RefreshToken{TokenHash: tokenHash}
	err := r.db.QueryRow(ctx, `
		DELETE FROM refresh_tokens
		WHERE token_hash = $1
		RETURNING id, subject_id, expires_at, created_at
	`, tokenHash).Scan(&t.ID, &t.SubjectID, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("REFRESH_TOKEN_UNKNOWN").Wrap(identity.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("REFRESH_TOKEN_CONSUME_FAILED").Wrap(err)
	}
	return &t, nil
}

// DeleteExpired removes tokens expired at now.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, oops.Code("REFRESH_TOKEN_PRUNE_FAILED").Wrap(err)
	}
	return tag.RowsAffected(), nil
}

var (
	_ local.CredentialStore   = (*CredentialRepository)(nil)
	_ local.RefreshTokenStore = (*RefreshTokenRepository)(nil)
)
