// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package identity

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Role is the application role of a user.
type Role string

// Known roles.
const (
	RoleAgent  Role = "agent"
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAgent, RoleClient, RoleAdmin:
		return true
	default:
		return false
	}
}

// SelfRegistrable reports whether users may sign up with this role.
// Admins are only ever promoted from existing accounts.
func (r Role) SelfRegistrable() bool {
	return r == RoleAgent || r == RoleClient
}

// Status is the approval status of a profile.
type Status string

// Known statuses.
const (
	StatusActive   Status = "active"
	StatusPending  Status = "pending"
	StatusInactive Status = "inactive"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPending, StatusInactive:
		return true
	default:
		return false
	}
}

// Availability is the dispatch availability of an agent.
type Availability string

// Known availabilities.
const (
	AvailabilityAvailable   Availability = "available"
	AvailabilityOnMission   Availability = "on_mission"
	AvailabilityUnavailable Availability = "unavailable"
)

// Profile is the application-level user record keyed by the session subject id.
type Profile struct {
	ID          string    `json:"id" jsonschema:"minLength=1"`
	Email       string    `json:"email" jsonschema:"minLength=3"`
	DisplayName string    `json:"display_name"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	Role        Role      `json:"role" jsonschema:"enum=agent,enum=client,enum=admin"`
	Status      Status    `json:"status" jsonschema:"enum=active,enum=pending,enum=inactive"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone returns a copy of p, or nil when p is nil.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// NewProfile creates a validated Profile for a freshly signed-up subject.
// New profiles start in StatusPending until an admin approves them.
func NewProfile(subjectID, email, displayName, phoneNumber string, role Role) (*Profile, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, oops.Code("PROFILE_INVALID_ID").Errorf("subject id cannot be empty")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, oops.Code("PROFILE_INVALID_EMAIL").With("email", email).Wrap(err)
	}
	if !role.Valid() {
		return nil, oops.Code("PROFILE_INVALID_ROLE").With("role", string(role)).Errorf("unknown role %q", role)
	}

	now := time.Now().UTC()
	return &Profile{
		ID:          subjectID,
		Email:       email,
		DisplayName: strings.TrimSpace(displayName),
		PhoneNumber: strings.TrimSpace(phoneNumber),
		Role:        role,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ProfileUpdate carries the mutable profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	DisplayName *string
	PhoneNumber *string
	Role        *Role
	Status      *Status
}

// AgentRecord is the agent-specific auxiliary row created at sign-up.
type AgentRecord struct {
	UserID       string
	Availability Availability
	QRCode       string
	CreatedAt    time.Time
}

// NewAgentRecord creates an available AgentRecord with a generated QR identifier.
func NewAgentRecord(userID string) (*AgentRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, oops.Code("AGENT_INVALID_USER").Errorf("user id cannot be empty")
	}
	return &AgentRecord{
		UserID:       userID,
		Availability: AvailabilityAvailable,
		QRCode:       GenerateAgentQRCode(userID),
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// GenerateAgentQRCode returns a unique QR payload of the form agent_<userID>_<ulid>.
func GenerateAgentQRCode(userID string) string {
	return fmt.Sprintf("agent_%s_%s", userID, ulid.Make().String())
}

// ClientRecord is the client-specific auxiliary row created at sign-up.
type ClientRecord struct {
	UserID      string
	ScanHistory []string
	CreatedAt   time.Time
}

// NewClientRecord creates a ClientRecord with an empty scan history.
func NewClientRecord(userID string) (*ClientRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, oops.Code("CLIENT_INVALID_USER").Errorf("user id cannot be empty")
	}
	return &ClientRecord{
		UserID:      userID,
		ScanHistory: []string{},
		CreatedAt:   time.Now().UTC(),
	}, nil
}
