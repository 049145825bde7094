// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldguard/fieldguard/internal/errclass"
	"github.com/fieldguard/fieldguard/internal/identity"
	"github.com/fieldguard/fieldguard/pkg/errutil"
)

var profileColumns = []string{"id", "email", "display_name", "phone_number", "role", "status", "created_at", "updated_at"}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func TestProfileRepository_FetchProfileByID(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("returns row", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT id, email, display_name, phone_number, role, status, created_at, updated_at\s+FROM users`).
			WithArgs("user-1").
			WillReturnRows(pgxmock.NewRows(profileColumns).
				AddRow("user-1", "ana@example.com", "Ana", "+33", "agent", "active", now, now))

		p, err := NewProfileRepository(mock).FetchProfileByID(ctx, "user-1")
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, identity.RoleAgent, p.Role)
		assert.Equal(t, identity.StatusActive, p.Status)
		assert.Equal(t, now, p.CreatedAt)
	})

	t.Run("no row is nil without error", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM users`).WithArgs("ghost").WillReturnError(pgx.ErrNoRows)

		p, err := NewProfileRepository(mock).FetchProfileByID(ctx, "ghost")
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("permission denied stays classifiable", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM users`).WithArgs("user-1").
			WillReturnError(&pgconn.PgError{Code: pgerrcode.InsufficientPrivilege, Message: "permission denied for table users"})

		_, err := NewProfileRepository(mock).FetchProfileByID(ctx, "user-1")
		errutil.AssertErrorCode(t, err, "PROFILE_QUERY_FAILED")
		assert.Equal(t, errclass.Permission, errclass.Classify(err))
	})

	t.Run("connection failure is network", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM users`).WithArgs("user-1").WillReturnError(errors.New("connection reset by peer"))

		_, err := NewProfileRepository(mock).FetchProfileByID(ctx, "user-1")
		assert.True(t, errclass.ShouldTriggerOfflineMode(err))
	})
}

func TestProfileRepository_InsertProfile(t *testing.T) {
	ctx := context.Background()
	p, err := identity.NewProfile("user-1", "ana@example.com", "Ana", "+33", identity.RoleClient)
	require.NoError(t, err)

	t.Run("inserts", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`INSERT INTO users`).
			WithArgs("user-1", "ana@example.com", "Ana", "+33", "client", "pending", p.CreatedAt, p.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		require.NoError(t, NewProfileRepository(mock).InsertProfile(ctx, p))
	})

	t.Run("duplicate", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`INSERT INTO users`).WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

		err := NewProfileRepository(mock).InsertProfile(ctx, p)
		errutil.AssertErrorCode(t, err, "PROFILE_ALREADY_EXISTS")
		assert.ErrorIs(t, err, identity.ErrAlreadyExists)
	})
}

func TestProfileRepository_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	status := identity.StatusActive

	t.Run("updates", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE users SET`).
			WithArgs("user-1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		require.NoError(t, NewProfileRepository(mock).UpdateProfile(ctx, "user-1", identity.ProfileUpdate{Status: &status}))
	})

	t.Run("missing row", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE users SET`).
			WithArgs("ghost", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		err := NewProfileRepository(mock).UpdateProfile(ctx, "ghost", identity.ProfileUpdate{Status: &status})
		assert.ErrorIs(t, err, identity.ErrNotFound)
	})
}

func TestUpdateArgs(t *testing.T) {
	assert.Nil(t, roleArg(nil))
	assert.Nil(t, statusArg(nil))
	admin := identity.RoleAdmin
	assert.Equal(t, "admin", *roleArg(&admin))
	inactive := identity.StatusInactive
	assert.Equal(t, "inactive", *statusArg(&inactive))
}

func TestProfileRepository_AuxiliaryRows(t *testing.T) {
	ctx := context.Background()

	t.Run("agent", func(t *testing.T) {
		agent, err := identity.NewAgentRecord("user-1")
		require.NoError(t, err)

		mock := newMock(t)
		mock.ExpectExec(`INSERT INTO agents`).
			WithArgs("user-1", "available", agent.QRCode, agent.CreatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		require.NoError(t, NewProfileRepository(mock).InsertAgent(ctx, agent))
	})

	t.Run("client with nil history stores empty array", func(t *testing.T) {
		client := &identity.ClientRecord{UserID: "user-2"}

		mock := newMock(t)
		mock.ExpectExec(`INSERT INTO clients`).
			WithArgs("user-2", []string{}, client.CreatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		require.NoError(t, NewProfileRepository(mock).InsertClient(ctx, client))
	})

	t.Run("client failure", func(t *testing.T) {
		client, err := identity.NewClientRecord("user-2")
		require.NoError(t, err)

		mock := newMock(t)
		mock.ExpectExec(`INSERT INTO clients`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(errors.New("boom"))
		errutil.AssertErrorCode(t, NewProfileRepository(mock).InsertClient(ctx, client), "CLIENT_INSERT_FAILED")
	})
}
