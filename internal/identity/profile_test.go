// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package identity_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldguard/fieldguard/internal/identity"
	"github.com/fieldguard/fieldguard/pkg/errutil"
)

func TestNewProfile(t *testing.T) {
	t.Run("creates pending profile", func(t *testing.T) {
		p, err := identity.NewProfile("user-1", "ana@example.com", "  Ana ", "+33 6 00", identity.RoleAgent)
		require.NoError(t, err)
		assert.Equal(t, "user-1", p.ID)
		assert.Equal(t, "Ana", p.DisplayName)
		assert.Equal(t, identity.RoleAgent, p.Role)
		assert.Equal(t, identity.StatusPending, p.Status)
		assert.False(t, p.CreatedAt.IsZero())
	})

	tests := []struct {
		name    string
		id      string
		email   string
		role    identity.Role
		errCode string
	}{
		{"empty id", " ", "ana@example.com", identity.RoleAgent, "PROFILE_INVALID_ID"},
		{"bad email", "user-1", "not-an-email", identity.RoleAgent, "PROFILE_INVALID_EMAIL"},
		{"unknown role", "user-1", "ana@example.com", identity.Role("guard"), "PROFILE_INVALID_ROLE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := identity.NewProfile(tt.id, tt.email, "Ana", "", tt.role)
			require.Error(t, err)
			assert.Nil(t, p)
			errutil.AssertErrorCode(t, err, tt.errCode)
		})
	}
}

func TestRole(t *testing.T) {
	assert.True(t, identity.RoleAdmin.Valid())
	assert.False(t, identity.Role("").Valid())
	assert.True(t, identity.RoleAgent.SelfRegistrable())
	assert.True(t, identity.RoleClient.SelfRegistrable())
	assert.False(t, identity.RoleAdmin.SelfRegistrable())
}

func TestNewAgentRecord(t *testing.T) {
	rec, err := identity.NewAgentRecord("user-1")
	require.NoError(t, err)
	assert.Equal(t, identity.AvailabilityAvailable, rec.Availability)
	assert.True(t, strings.HasPrefix(rec.QRCode, "agent_user-1_"))

	other, err := identity.NewAgentRecord("user-1")
	require.NoError(t, err)
	assert.NotEqual(t, rec.QRCode, other.QRCode, "QR codes must be unique per call")

	_, err = identity.NewAgentRecord("")
	errutil.AssertErrorCode(t, err, "AGENT_INVALID_USER")
}

func TestNewClientRecord(t *testing.T) {
	rec, err := identity.NewClientRecord("user-2")
	require.NoError(t, err)
	assert.NotNil(t, rec.ScanHistory)
	assert.Empty(t, rec.ScanHistory)

	_, err = identity.NewClientRecord("")
	errutil.AssertErrorCode(t, err, "CLIENT_INVALID_USER")
}

func TestSession(t *testing.T) {
	now := time.Now()
	s := &identity.Session{AccessToken: "a", RefreshToken: "r", SubjectID: "u", ExpiresAt: now.Add(time.Minute)}

	t.Run("same compares tokens and subject", func(t *testing.T) {
		assert.True(t, s.Same(s.Clone()))
		assert.False(t, s.Same(&identity.Session{AccessToken: "b", RefreshToken: "r", SubjectID: "u"}))
		assert.False(t, s.Same(nil))
		var nilSession *identity.Session
		assert.True(t, nilSession.Same(nil))
	})

	t.Run("expiry", func(t *testing.T) {
		assert.False(t, s.IsExpiredAt(now))
		assert.True(t, s.IsExpiredAt(now.Add(time.Minute)))
		assert.False(t, (&identity.Session{}).IsExpiredAt(now), "zero expiry never expires")
	})
}

func TestRemoteError(t *testing.T) {
	err := &identity.RemoteError{Code: "PGRST116", Message: "no rows"}
	assert.Equal(t, "no rows (code PGRST116)", err.Error())
	assert.Equal(t, "boom", (&identity.RemoteError{Message: "boom"}).Error())
}
