// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/fieldguard/fieldguard/internal/cache"
	"github.com/fieldguard/fieldguard/internal/identity/local"
	"github.com/fieldguard/fieldguard/internal/identity/postgres"
	"github.com/fieldguard/fieldguard/internal/store"
	"github.com/fieldguard/fieldguard/internal/xdg"
	"github.com/fieldguard/fieldguard/pkg/errutil"
)

// Cache namespaces inside the device badger database.
const (
	devicePrefix   = "device/"
	identityPrefix = "identity/"
)

// openBackend connects PostgreSQL, opens the device cache and assembles the
// self-hosted identity provider.
func openBackend(ctx context.Context, cfg *Config, logger *slog.Logger) (*Backend, error) {
	if err := cfg.requireBackend(); err != nil {
		return nil, err
	}

	pool, err := store.OpenPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if err := xdg.EnsureDir(cfg.CacheDir); err != nil {
		pool.Close()
		return nil, err
	}
	db, err := cache.OpenBadger(cfg.CacheDir, cache.WithBadgerLogger(logger))
	if err != nil {
		pool.Close()
		return nil, err
	}

	closeAll := func() {
		if err := db.Close(); err != nil {
			errutil.LogError(logger, "closing device cache", err)
		}
		pool.Close()
	}

	provider, err := local.New(
		postgres.NewCredentialRepository(pool),
		postgres.NewRefreshTokenRepository(pool),
		cache.Prefixed(db, devicePrefix),
		local.Config{
			Secret:     []byte(cfg.JWTSecret),
			AccessTTL:  cfg.AccessTokenTTL,
			RefreshTTL: cfg.RefreshTokenTTL,
		},
		local.WithLogger(logger.With("component", "identity")),
	)
	if err != nil {
		closeAll()
		return nil, oops.Code("BACKEND_INIT_FAILED").Wrap(err)
	}

	return &Backend{
		Provider: provider,
		Profiles: postgres.NewProfileRepository(pool),
		Cache:    cache.Prefixed(db, identityPrefix),
		Prune:    provider.PruneExpired,
		Close:    closeAll,
	}, nil
}
