// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fieldguard/fieldguard/internal/cache"
	"github.com/fieldguard/fieldguard/internal/identity"
	"github.com/fieldguard/fieldguard/internal/identity/identitytest"
	"github.com/fieldguard/fieldguard/internal/observability"
	"github.com/fieldguard/fieldguard/internal/store"
)

// harness wires the CLI to in-memory collaborators.
type harness struct {
	provider *identitytest.Provider
	profiles *identitytest.ProfileStore
	cache    *cache.MemoryStore
	env      map[string]string

	backendErr error
	closed     atomic.Int32
	pruned     atomic.Int32

	migrator *fakeMigrator

	mu     sync.Mutex
	server *fakeServer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	return &harness{
		provider: identitytest.NewProvider(nil),
		profiles: identitytest.NewProfileStore(),
		cache:    cache.NewMemoryStore(),
		env:      map[string]string{},
		migrator: &fakeMigrator{},
	}
}

func (h *harness) deps() *Deps {
	return &Deps{
		BackendFactory: func(context.Context, *Config, *slog.Logger) (*Backend, error) {
			if h.backendErr != nil {
				return nil, h.backendErr
			}
			return &Backend{
				Provider: h.provider,
				Profiles: h.profiles,
				Cache:    h.cache,
				Prune: func(context.Context) (int64, error) {
					h.pruned.Add(1)
					return 0, nil
				},
				Close: func() { h.closed.Add(1) },
			}, nil
		},
		MigratorFactory: func(string) (Migrator, error) { return h.migrator, nil },
		ObservabilityServerFactory: func(addr string, ready observability.ReadinessChecker, _ ...observability.Option) ObservabilityServer {
			s := &fakeServer{addr: addr, ready: ready, reg: prometheus.NewRegistry(), errCh: make(chan error, 1)}
			h.mu.Lock()
			h.server = s
			h.mu.Unlock()
			return s
		},
		Getenv: func(key string) string { return h.env[key] },
	}
}

func (h *harness) currentServer() *fakeServer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.server
}

func (h *harness) execute(ctx context.Context, args ...string) (string, error) {
	cmd := newRootCmd(h.deps())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func activeProfile(id string, role identity.Role) *identity.Profile {
	return &identity.Profile{
		ID:          id,
		Email:       id + "@example.com",
		DisplayName: "User " + id,
		Role:        role,
		Status:      identity.StatusActive,
	}
}

type fakeServer struct {
	addr    string
	ready   observability.ReadinessChecker
	reg     *prometheus.Registry
	errCh   chan error
	started atomic.Bool
	stopped atomic.Bool
}

func (s *fakeServer) Start() (<-chan error, error) {
	s.started.Store(true)
	return s.errCh, nil
}

func (s *fakeServer) Stop(context.Context) error {
	s.stopped.Store(true)
	return nil
}

func (s *fakeServer) Addr() string                   { return s.addr }
func (s *fakeServer) Registry() *prometheus.Registry { return s.reg }

type fakeMigrator struct {
	upErr  error
	status store.Status
	ups    int
	closed int
}

func (m *fakeMigrator) Up() error                     { m.ups++; return m.upErr }
func (m *fakeMigrator) Status() (store.Status, error) { return m.status, nil }
func (m *fakeMigrator) Close() error                  { m.closed++; return nil }
