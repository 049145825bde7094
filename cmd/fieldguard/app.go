// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/fieldguard/fieldguard/internal/logging"
	"github.com/fieldguard/fieldguard/internal/session"
)

// app is a started session controller and the backend behind it.
type app struct {
	cfg     *Config
	logger  *slog.Logger
	backend *Backend
	ctrl    *session.Controller
}

// prepare loads configuration and builds the logger for cmd.
func prepare(cmd *cobra.Command, deps *Deps) (*Config, *slog.Logger, error) {
	cfg, err := loadConfig(cmd.Flags(), deps.Getenv)
	if err != nil {
		return nil, nil, err
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.Setup("fieldguard", version, cfg.LogFormat, level, cmd.ErrOrStderr())
	return cfg, logger, nil
}

// startApp opens the backend, initializes a controller and waits for the
// startup load. Callers must Close the returned app.
func startApp(ctx context.Context, cmd *cobra.Command, deps *Deps, opts ...session.Option) (*app, error) {
	cfg, logger, err := prepare(cmd, deps)
	if err != nil {
		return nil, err
	}

	backend, err := deps.BackendFactory(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, backend: backend}

	opts = append([]session.Option{session.WithConfig(cfg.Session), session.WithLogger(logger)}, opts...)
	ctrl, err := session.New(backend.Provider, backend.Profiles, backend.Cache, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ctrl = ctrl

	if err := ctrl.Initialize(ctx); err != nil {
		a.Close()
		return nil, err
	}
	waitCtx, cancel := context.WithTimeout(ctx, cfg.Session.SafetyTimeout+cfg.Session.ProfileFetchTimeout)
	defer cancel()
	if err := ctrl.WaitLoaded(waitCtx); err != nil {
		a.Close()
		return nil, oops.Code("SESSION_LOAD_FAILED").Wrap(err)
	}
	return a, nil
}

// Close stops the controller and releases the backend.
func (a *app) Close() {
	if a.ctrl != nil {
		a.ctrl.Close()
	}
	if a.backend != nil && a.backend.Close != nil {
		a.backend.Close()
	}
}

// settleWait bounds how long a command waits for an identity change to be
// applied.
func (a *app) settleWait() time.Duration {
	return 2 * a.cfg.Session.ProfileFetchTimeout
}

// awaitState returns the first state satisfying cond, or the latest state when
// ctx ends first.
func awaitState(ctx context.Context, ctrl *session.Controller, cond func(session.State) bool) (session.State, bool) {
	ch, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	last := ctrl.State()
	for {
		if cond(last) {
			return last, true
		}
		select {
		case <-ctx.Done():
			return last, false
		case st, ok := <-ch:
			if !ok {
				return last, false
			}
			last = st
		}
	}
}

// signedInSettled reports whether a session is present and its profile
// outcome is known.
func signedInSettled(s session.State) bool {
	if s.Loading || s.Session == nil {
		return false
	}
	return s.Profile != nil || s.OfflineReadOnly || s.SessionExpired
}
