// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fieldguard/fieldguard/internal/cache"
	"github.com/fieldguard/fieldguard/internal/identity"
	"github.com/fieldguard/fieldguard/internal/observability"
	"github.com/fieldguard/fieldguard/internal/store"
)

// Deps contains injectable dependencies for the CLI commands.
// All fields with nil values use their default implementations.
type Deps struct {
	// BackendFactory connects the identity provider, profile store and
	// device cache.
	// Default: openBackend (PostgreSQL + badger)
	BackendFactory func(ctx context.Context, cfg *Config, logger *slog.Logger) (*Backend, error)

	// MigratorFactory creates a schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker, opts ...observability.Option) ObservabilityServer

	// Getenv reads environment variables.
	// Default: os.Getenv
	Getenv func(string) string
}

// Backend bundles the session controller's collaborators.
type Backend struct {
	Provider identity.Provider
	Profiles identity.ProfileStore
	Cache    cache.Store
	// Prune removes expired refresh tokens. It may be nil.
	Prune func(ctx context.Context) (int64, error)
	// Close releases connections and files. It may be nil.
	Close func()
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Status() (store.Status, error)
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Registry() *prometheus.Registry
}

func (d *Deps) withDefaults() *Deps {
	out := &Deps{}
	if d != nil {
		*out = *d
	}
	if out.BackendFactory == nil {
		out.BackendFactory = openBackend
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, opts ...observability.Option) ObservabilityServer {
			return observability.NewServer(addr, ready, opts...)
		}
	}
	if out.Getenv == nil {
		out.Getenv = os.Getenv
	}
	return out
}
