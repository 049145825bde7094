// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package identity

import (
	"context"
	"time"
)

// Session is a server-issued proof of authentication for a subject.
// Sessions are replaced wholesale on every identity event and never mutated.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	SubjectID    string    `json:"subject_id"`
	Email        string    `json:"email,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Clone returns a copy of s, or nil when s is nil.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Same reports whether s and other carry the same tokens for the same subject.
func (s *Session) Same(other *Session) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.SubjectID == other.SubjectID &&
		s.AccessToken == other.AccessToken &&
		s.RefreshToken == other.RefreshToken
}

// IsExpiredAt reports whether the access token is expired at t.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !s.ExpiresAt.IsZero() && !t.Before(s.ExpiresAt)
}

// User is the identity returned by a successful sign-up.
type User struct {
	ID    string
	Email string
}

// AuthEvent names an identity change delivered on the session-change stream.
type AuthEvent string

// Known auth events.
const (
	EventInitialSession AuthEvent = "INITIAL_SESSION"
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEvent = "USER_UPDATED"
)

// SessionChangeFunc receives identity changes. session is nil when signed out.
type SessionChangeFunc func(event AuthEvent, session *Session)

// Provider is the identity service capability consumed by the session controller.
type Provider interface {
	// GetCurrentSession returns the current session, or nil when signed out.
	GetCurrentSession(ctx context.Context) (*Session, error)

	// SignInWithPassword authenticates with email and password.
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)

	// SignUp registers a new account. The returned user may be nil when the
	// service defers account creation (for example pending email confirmation).
	SignUp(ctx context.Context, email, password string) (*User, error)

	// SignOut ends the current session.
	SignOut(ctx context.Context) error

	// OnSessionChange registers fn for identity changes and returns a function
	// that removes the registration.
	OnSessionChange(fn SessionChangeFunc) (unsubscribe func())
}

// ProfileStore is the profile table capability consumed by the session controller.
type ProfileStore interface {
	// FetchProfileByID returns the profile for id, or (nil, nil) when no row exists.
	FetchProfileByID(ctx context.Context, id string) (*Profile, error)

	// InsertProfile creates a profile row.
	InsertProfile(ctx context.Context, profile *Profile) error

	// UpdateProfile applies update to the profile row for id.
	UpdateProfile(ctx context.Context, id string, update ProfileUpdate) error

	// InsertAgent creates the agent auxiliary row.
	InsertAgent(ctx context.Context, agent *AgentRecord) error

	// InsertClient creates the client auxiliary row.
	InsertClient(ctx context.Context, client *ClientRecord) error
}
