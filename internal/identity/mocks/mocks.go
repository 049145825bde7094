// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

// Package mocks provides testify mocks of the identity collaborators.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/fieldguard/fieldguard/internal/identity"
)

// Provider is a mock identity.Provider.
type Provider struct {
	mock.Mock
}

// GetCurrentSession implements identity.Provider.
func (m *Provider) GetCurrentSession(ctx context.Context) (*identity.Session, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Session), args.Error(1)
}

// SignInWithPassword implements identity.Provider.
func (m *Provider) SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Session), args.Error(1)
}

// SignUp implements identity.Provider.
func (m *Provider) SignUp(ctx context.Context, email, password string) (*identity.User, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

// SignOut implements identity.Provider.
func (m *Provider) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// OnSessionChange implements identity.Provider.
func (m *Provider) OnSessionChange(fn identity.SessionChangeFunc) func() {
	args := m.Called(fn)
	if unsub, ok := args.Get(0).(func()); ok {
		return unsub
	}
	return func() {}
}

// ProfileStore is a mock identity.ProfileStore.
type ProfileStore struct {
	mock.Mock
}

// FetchProfileByID implements identity.ProfileStore.
func (m *ProfileStore) FetchProfileByID(ctx context.Context, id string) (*identity.Profile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Profile), args.Error(1)
}

// InsertProfile implements identity.ProfileStore.
func (m *ProfileStore) InsertProfile(ctx context.Context, profile *identity.Profile) error {
	return m.Called(ctx, profile).Error(0)
}

// UpdateProfile implements identity.ProfileStore.
func (m *ProfileStore) UpdateProfile(ctx context.Context, id string, update identity.ProfileUpdate) error {
	return m.Called(ctx, id, update).Error(0)
}

// InsertAgent implements identity.ProfileStore.
func (m *ProfileStore) InsertAgent(ctx context.Context, agent *identity.AgentRecord) error {
	return m.Called(ctx, agent).Error(0)
}

// InsertClient implements identity.ProfileStore.
func (m *ProfileStore) InsertClient(ctx context.Context, client *identity.ClientRecord) error {
	return m.Called(ctx, client).Error(0)
}

var (
	_ identity.Provider     = (*Provider)(nil)
	_ identity.ProfileStore = (*ProfileStore)(nil)
)
