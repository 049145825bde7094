// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/fieldguard/fieldguard/internal/identity"
)

// ProfileRepository implements identity.ProfileStore over the users, agents
// and clients tables.
type ProfileRepository struct {
	db Querier
}

// NewProfileRepository creates a ProfileRepository.
func NewProfileRepository(db Querier) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// FetchProfileByID returns the profile for id, or (nil, nil) when absent.
func (r *ProfileRepository) FetchProfileByID(ctx context.Context, id string) (*identity.Profile, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, email, display_name, phone_number, role, status, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)

	var (
		p      identity.Profile
		role   string
		status string
	)
	err := row.Scan(&p.ID, &p.Email, &p.DisplayName, &p.PhoneNumber, &role, &status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("PROFILE_QUERY_FAILED").With("id", id).Wrap(err)
	}
	p.Role = identity.Role(role)
	p.Status = identity.Status(status)
	return &p, nil
}

// InsertProfile creates a users row.
func (r *ProfileRepository) InsertProfile(ctx context.Context, p *identity.Profile) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, email, display_name, phone_number, role, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.Email, p.DisplayName, p.PhoneNumber, string(p.Role), string(p.Status), p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return oops.Code("PROFILE_ALREADY_EXISTS").With("id", p.ID).Wrap(identity.ErrAlreadyExists)
	}
	if err != nil {
		return oops.Code("PROFILE_INSERT_FAILED").With("id", p.ID).Wrap(err)
	}
	return nil
}

// UpdateProfile applies the non-nil fields of u.
func (r *ProfileRepository) UpdateProfile(ctx context.Context, id string, u identity.ProfileUpdate) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET
			display_name = COALESCE($2, display_name),
			phone_number = COALESCE($3, phone_number),
			role         = COALESCE($4, role),
			status       = COALESCE($5, status),
			updated_at   = now()
		WHERE id = $1
	`, id, u.DisplayName, u.PhoneNumber, roleArg(u.Role), statusArg(u.Status))
	if err != nil {
		return oops.Code("PROFILE_UPDATE_FAILED").With("id", id).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("PROFILE_NOT_FOUND").With("id", id).Wrap(identity.ErrNotFound)
	}
	return nil
}

func roleArg(r *identity.Role) *string {
	if r == nil {
		return nil
	}
	s := string(*r)
	return &s
}

func statusArg(s *identity.Status) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

// InsertAgent creates the agents row.
func (r *ProfileRepository) InsertAgent(ctx context.Context, a *identity.AgentRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO agents (user_id, availability, qr_code, created_at)
		VALUES ($1, $2, $3, $4)
	`, a.UserID, string(a.Availability), a.QRCode, a.CreatedAt)
	if isUniqueViolation(err) {
		return oops.Code("AGENT_ALREADY_EXISTS").With("user_id", a.UserID).Wrap(identity.ErrAlreadyExists)
	}
	if err != nil {
		return oops.Code("AGENT_INSERT_FAILED").With("user_id", a.UserID).Wrap(err)
	}
	return nil
}

// InsertClient creates the clients row.
func (r *ProfileRepository) InsertClient(ctx context.Context, c *identity.ClientRecord) error {
	history := c.ScanHistory
	if history == nil {
		history = []string{}
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO clients (user_id, scan_history, created_at)
		VALUES ($1, $2, $3)
	`, c.UserID, history, c.CreatedAt)
	if isUniqueViolation(err) {
		return oops.Code("CLIENT_ALREADY_EXISTS").With("user_id", c.UserID).Wrap(identity.ErrAlreadyExists)
	}
	if err != nil {
		return oops.Code("CLIENT_INSERT_FAILED").With("user_id", c.UserID).Wrap(err)
	}
	return nil
}

var _ identity.ProfileStore = (*ProfileRepository)(nil)
