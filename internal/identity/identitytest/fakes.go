// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

// Package identitytest provides in-memory identity collaborators for tests.
package identitytest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/fieldguard/fieldguard/internal/identity"
)

// Provider is an in-memory identity.Provider.
//
// By default it behaves like a well-connected identity service. The *Func
// and *Err fields script failures or delays; set them before first use.
type Provider struct {
	mu          sync.Mutex
	session     *identity.Session
	subscribers map[int]identity.SessionChangeFunc
	nextSub     int

	// LookupFunc overrides GetCurrentSession when set.
	LookupFunc func(ctx context.Context) (*identity.Session, error)
	// SignInErr is returned by SignInWithPassword when set.
	SignInErr error
	// SignUpFunc overrides SignUp when set.
	SignUpFunc func(ctx context.Context, email, password string) (*identity.User, error)
	// SignOutErr is returned by SignOut after the local session is cleared.
	SignOutErr error

	lookups  atomic.Int32
	signOuts atomic.Int32
}

// NewProvider creates a Provider holding session, which may be nil.
func NewProvider(session *identity.Session) *Provider {
	return &Provider{session: session, subscribers: make(map[int]identity.SessionChangeFunc)}
}

// NewSession returns a session for subject with fresh opaque tokens.
func NewSession(subject string) *identity.Session {
	return &identity.Session{
		AccessToken:  "access-" + uuid.NewString(),
		RefreshToken: "refresh-" + uuid.NewString(),
		SubjectID:    subject,
		Email:        subject + "@example.com",
	}
}

// SetSession replaces the held session without emitting an event.
func (p *Provider) SetSession(s *identity.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = s.Clone()
}

// Lookups returns how many times GetCurrentSession was called.
func (p *Provider) Lookups() int { return int(p.lookups.Load()) }

// SignOuts returns how many times SignOut was called.
func (p *Provider) SignOuts() int { return int(p.signOuts.Load()) }

// Subscribers returns the number of live subscriptions.
func (p *Provider) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subscribers)
}

// Emit delivers event to every subscriber synchronously.
func (p *Provider) Emit(event identity.AuthEvent, s *identity.Session) {
	p.mu.Lock()
	subs := make([]identity.SessionChangeFunc, 0, len(p.subscribers))
	for _, fn := range p.subscribers {
		subs = append(subs, fn)
	}
	p.mu.Unlock()
	for _, fn := range subs {
		fn(event, s.Clone())
	}
}

// GetCurrentSession implements identity.Provider.
func (p *Provider) GetCurrentSession(ctx context.Context) (*identity.Session, error) {
	p.lookups.Add(1)
	if p.LookupFunc != nil {
		return p.LookupFunc(ctx)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session.Clone(), nil
}

// SignInWithPassword implements identity.Provider.
func (p *Provider) SignInWithPassword(_ context.Context, email, _ string) (*identity.Session, error) {
	if p.SignInErr != nil {
		return nil, p.SignInErr
	}
	s := NewSession(uuid.NewString())
	s.Email = email
	p.SetSession(s)
	p.Emit(identity.EventSignedIn, s)
	return s.Clone(), nil
}

// SignUp implements identity.Provider.
func (p *Provider) SignUp(ctx context.Context, email, password string) (*identity.User, error) {
	if p.SignUpFunc != nil {
		return p.SignUpFunc(ctx, email, password)
	}
	s := NewSession(uuid.NewString())
	s.Email = email
	p.SetSession(s)
	p.Emit(identity.EventSignedIn, s)
	return &identity.User{ID: s.SubjectID, Email: email}, nil
}

// SignOut implements identity.Provider.
func (p *Provider) SignOut(_ context.Context) error {
	p.signOuts.Add(1)
	p.SetSession(nil)
	p.Emit(identity.EventSignedOut, nil)
	return p.SignOutErr
}

// OnSessionChange implements identity.Provider.
func (p *Provider) OnSessionChange(fn identity.SessionChangeFunc) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.subscribers[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subscribers, id)
	}
}

// ProfileStore is an in-memory identity.ProfileStore.
type ProfileStore struct {
	mu       sync.Mutex
	profiles map[string]*identity.Profile
	agents   map[string]*identity.AgentRecord
	clients  map[string]*identity.ClientRecord

	// FetchFunc overrides FetchProfileByID when set.
	FetchFunc func(ctx context.Context, id string) (*identity.Profile, error)
	// InsertProfileErr, InsertAgentErr and InsertClientErr fail the matching insert.
	InsertProfileErr error
	InsertAgentErr   error
	InsertClientErr  error

	fetches atomic.Int32
}

// NewProfileStore creates a ProfileStore seeded with profiles.
func NewProfileStore(profiles ...*identity.Profile) *ProfileStore {
	s := &ProfileStore{
		profiles: make(map[string]*identity.Profile),
		agents:   make(map[string]*identity.AgentRecord),
		clients:  make(map[string]*identity.ClientRecord),
	}
	for _, p := range profiles {
		s.profiles[p.ID] = p.Clone()
	}
	return s
}

// Fetches returns how many times FetchProfileByID was called.
func (s *ProfileStore) Fetches() int { return int(s.fetches.Load()) }

// Put stores or replaces a profile.
func (s *ProfileStore) Put(p *identity.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p.Clone()
}

// Delete removes a profile row.
func (s *ProfileStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, id)
}

// Profile returns the stored profile for id, or nil.
func (s *ProfileStore) Profile(id string) *identity.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profiles[id].Clone()
}

// Agent returns the stored agent record for userID, or nil.
func (s *ProfileStore) Agent(userID string) *identity.AgentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agents[userID]
}

// Client returns the stored client record for userID, or nil.
func (s *ProfileStore) Client(userID string) *identity.ClientRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients[userID]
}

// FetchProfileByID implements identity.ProfileStore.
func (s *ProfileStore) FetchProfileByID(ctx context.Context, id string) (*identity.Profile, error) {
	s.fetches.Add(1)
	if s.FetchFunc != nil {
		return s.FetchFunc(ctx, id)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Profile(id), nil
}

// InsertProfile implements identity.ProfileStore.
func (s *ProfileStore) InsertProfile(_ context.Context, p *identity.Profile) error {
	if s.InsertProfileErr != nil {
		return s.InsertProfileErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.ID]; ok {
		return identity.ErrAlreadyExists
	}
	s.profiles[p.ID] = p.Clone()
	return nil
}

// UpdateProfile implements identity.ProfileStore.
func (s *ProfileStore) UpdateProfile(_ context.Context, id string, u identity.ProfileUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return identity.ErrNotFound
	}
	if u.DisplayName != nil {
		p.DisplayName = *u.DisplayName
	}
	if u.PhoneNumber != nil {
		p.PhoneNumber = *u.PhoneNumber
	}
	if u.Role != nil {
		p.Role = *u.Role
	}
	if u.Status != nil {
		p.Status = *u.Status
	}
	return nil
}

// InsertAgent implements identity.ProfileStore.
func (s *ProfileStore) InsertAgent(_ context.Context, a *identity.AgentRecord) error {
	if s.InsertAgentErr != nil {
		return s.InsertAgentErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[a.UserID] = a
	return nil
}

// InsertClient implements identity.ProfileStore.
func (s *ProfileStore) InsertClient(_ context.Context, c *identity.ClientRecord) error {
	if s.InsertClientErr != nil {
		return s.InsertClientErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.UserID] = c
	return nil
}

// Verify interfaces are satisfied.
var (
	_ identity.Provider     = (*Provider)(nil)
	_ identity.ProfileStore = (*ProfileStore)(nil)
)
