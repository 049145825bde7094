// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package session

import "github.com/fieldguard/fieldguard/internal/identity"

// Phase is the lifecycle phase of a controller.
type Phase string

// Lifecycle phases.
const (
	PhaseInitializing   Phase = "initializing"
	PhaseReady          Phase = "ready"
	PhaseSessionExpired Phase = "sessionExpired"
)

// State is an immutable snapshot of the controller.
type State struct {
	Phase            Phase             `yaml:"phase"`
	Session          *identity.Session `yaml:"-"`
	Profile          *identity.Profile `yaml:"profile,omitempty"`
	LastKnownProfile *identity.Profile `yaml:"last_known_profile,omitempty"`
	LastKnownRole    *identity.Role    `yaml:"last_known_role,omitempty"`
	Loading          bool              `yaml:"loading"`
	OfflineReadOnly  bool              `yaml:"offline_read_only"`
	InitTimedOut     bool              `yaml:"init_timed_out"`
	SessionExpired   bool              `yaml:"session_expired"`
}

func (s State) clone() State {
	c := s
	c.Session = s.Session.Clone()
	c.Profile = s.Profile.Clone()
	c.LastKnownProfile = s.LastKnownProfile.Clone()
	if s.LastKnownRole != nil {
		r := *s.LastKnownRole
		c.LastKnownRole = &r
	}
	return c
}

// Role returns the live profile's role. While offline it falls back to the
// last-known role, then to the last-known profile's role.
func (s State) Role() (identity.Role, bool) {
	if s.Profile != nil {
		return s.Profile.Role, true
	}
	if !s.OfflineReadOnly {
		return "", false
	}
	if s.LastKnownRole != nil {
		return *s.LastKnownRole, true
	}
	if s.LastKnownProfile != nil {
		return s.LastKnownProfile.Role, true
	}
	return "", false
}

// effectiveProfile is the profile the UI should display.
func (s State) effectiveProfile() *identity.Profile {
	if s.Profile != nil || !s.OfflineReadOnly {
		return s.Profile
	}
	return s.LastKnownProfile
}

// Screen is the top-level screen a state routes to.
type Screen string

// Screens.
const (
	ScreenLoading         Screen = "loading"
	ScreenSignIn          Screen = "sign_in"
	ScreenSessionExpired  Screen = "session_expired"
	ScreenOffline         Screen = "offline"
	ScreenPendingApproval Screen = "pending_approval"
	ScreenAgentHome       Screen = "agent_home"
	ScreenClientHome      Screen = "client_home"
	ScreenAdminHome       Screen = "admin_home"
)

// Screen routes s to a screen by lifecycle, connectivity and role.
func (s State) Screen() Screen {
	switch {
	case s.SessionExpired:
		return ScreenSessionExpired
	case s.Loading:
		return ScreenLoading
	case s.Session == nil && !s.OfflineReadOnly:
		return ScreenSignIn
	}

	role, ok := s.Role()
	if !ok {
		if s.OfflineReadOnly {
			return ScreenOffline
		}
		return ScreenLoading
	}
	if p := s.effectiveProfile(); p != nil && role != identity.RoleAdmin && p.Status != identity.StatusActive {
		return ScreenPendingApproval
	}
	switch role {
	case identity.RoleAgent:
		return ScreenAgentHome
	case identity.RoleClient:
		return ScreenClientHome
	case identity.RoleAdmin:
		return ScreenAdminHome
	default:
		return ScreenSignIn
	}
}
