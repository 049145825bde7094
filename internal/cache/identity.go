// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package cache

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/samber/oops"

	"github.com/fieldguard/fieldguard/internal/identity"
	"github.com/fieldguard/fieldguard/pkg/errutil"
)

// Keys of the last-known identity snapshot.
const (
	KeyLastKnownProfile = "@lastKnownProfile"
	KeyLastKnownRole    = "@lastKnownRole"
)

// CachedIdentity is the last successfully fetched profile and role.
// Either field may be nil.
type CachedIdentity struct {
	Profile *identity.Profile
	Role    *identity.Role
}

// IdentityCache reads and writes the CachedIdentity snapshot.
type IdentityCache struct {
	store  Store
	logger *slog.Logger
}

// NewIdentityCache wraps store. A nil logger uses slog.Default.
func NewIdentityCache(store Store, logger *slog.Logger) *IdentityCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityCache{store: store, logger: logger}
}

// Load reads the snapshot. Each key is decoded independently; a missing,
// unparsable or schema-invalid value leaves its field nil and is logged.
// Only store failures are returned.
func (c *IdentityCache) Load(ctx context.Context) (CachedIdentity, error) {
	var out CachedIdentity

	raw, ok, err := c.store.Get(ctx, KeyLastKnownProfile)
	if err != nil {
		return out, oops.Code("CACHE_LOAD_FAILED").With("key", KeyLastKnownProfile).Wrap(err)
	}
	if ok {
		out.Profile = c.decodeProfile(raw)
	}

	raw, ok, err = c.store.Get(ctx, KeyLastKnownRole)
	if err != nil {
		return out, oops.Code("CACHE_LOAD_FAILED").With("key", KeyLastKnownRole).Wrap(err)
	}
	if ok {
		out.Role = c.decodeRole(raw)
	}
	return out, nil
}

func (c *IdentityCache) decodeProfile(raw string) *identity.Profile {
	if err := ValidateProfileJSON(raw); err != nil {
		errutil.LogWarn(c.logger, "ignoring cached profile", err)
		return nil
	}
	var p identity.Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		errutil.LogWarn(c.logger, "ignoring cached profile", err)
		return nil
	}
	return &p
}

func (c *IdentityCache) decodeRole(raw string) *identity.Role {
	var r identity.Role
	if err := json.Unmarshal([]byte(raw), &r); err != nil || !r.Valid() {
		c.logger.Warn("ignoring cached role", "value", raw)
		return nil
	}
	return &r
}

// Save persists profile and its role together.
func (c *IdentityCache) Save(ctx context.Context, profile *identity.Profile) error {
	if profile == nil {
		return oops.Code("CACHE_SAVE_NIL_PROFILE").Errorf("profile is nil")
	}
	p, err := json.Marshal(profile)
	if err != nil {
		return oops.Code("CACHE_SAVE_FAILED").Wrap(err)
	}
	r, err := json.Marshal(profile.Role)
	if err != nil {
		return oops.Code("CACHE_SAVE_FAILED").Wrap(err)
	}
	err = Apply(ctx, c.store, map[string]string{
		KeyLastKnownProfile: string(p),
		KeyLastKnownRole:    string(r),
	}, nil)
	if err != nil {
		return oops.Code("CACHE_SAVE_FAILED").With("profile_id", profile.ID).Wrap(err)
	}
	return nil
}

// Clear removes both keys.
func (c *IdentityCache) Clear(ctx context.Context) error {
	if err := Apply(ctx, c.store, nil, []string{KeyLastKnownProfile, KeyLastKnownRole}); err != nil {
		return oops.Code("CACHE_CLEAR_FAILED").Wrap(err)
	}
	return nil
}
