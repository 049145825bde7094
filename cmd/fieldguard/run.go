// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/fieldguard/fieldguard/internal/observability"
	"github.com/fieldguard/fieldguard/internal/session"
	"github.com/fieldguard/fieldguard/pkg/errutil"
)

const (
	defaultPruneInterval = time.Hour
	shutdownTimeout      = 5 * time.Second
)

// NewRunCmd creates the run subcommand.
func NewRunCmd(deps *Deps) *cobra.Command {
	var pruneInterval time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the session controller until interrupted",
		Long: `Start the session controller for this device, serve metrics, health probes
and a status document, and log every screen transition until SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWithDeps(ctx, cmd, pruneInterval, deps.withDefaults())
		},
	}
	cmd.Flags().String("metrics-addr", defaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().DurationVar(&pruneInterval, "prune-interval", defaultPruneInterval, "interval between expired refresh token sweeps")
	return cmd
}

func runWithDeps(ctx context.Context, cmd *cobra.Command, pruneInterval time.Duration, deps *Deps) error {
	if pruneInterval <= 0 {
		return oops.Code("CONFIG_INVALID").With("key", "prune_interval").Errorf("prune interval must be positive")
	}
	cfg, logger, err := prepare(cmd, deps)
	if err != nil {
		return err
	}

	backend, err := deps.BackendFactory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if backend.Close != nil {
		defer backend.Close()
	}

	ctrl, err := session.New(backend.Provider, backend.Profiles, backend.Cache,
		session.WithConfig(cfg.Session), session.WithLogger(logger))
	if err != nil {
		return err
	}
	defer ctrl.Close()

	var serverErr <-chan error
	if cfg.MetricsAddr != "" {
		srv := deps.ObservabilityServerFactory(cfg.MetricsAddr,
			func() bool { return !ctrl.State().Loading },
			observability.WithLogger(logger),
			observability.WithStatus(func() any { return newStateView(ctrl.State()) }),
		)
		session.RegisterMetrics(srv.Registry())
		serverErr, err = srv.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := srv.Stop(stopCtx); err != nil {
				errutil.LogError(logger, "stopping observability server", err)
			}
		}()
	}

	updates, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()
	if err := ctrl.Initialize(ctx); err != nil {
		return err
	}

	prune := time.NewTicker(pruneInterval)
	defer prune.Stop()

	logger.Info("session controller running")
	var lastScreen session.Screen
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case err, ok := <-serverErr:
			if ok && err != nil {
				return oops.Code("OBSERVABILITY_FAILED").Wrap(err)
			}
			serverErr = nil
		case st, ok := <-updates:
			if !ok {
				return nil
			}
			if screen := st.Screen(); screen != lastScreen {
				logger.Info("screen changed",
					"from", lastScreen,
					"to", screen,
					"phase", st.Phase,
					"offline", st.OfflineReadOnly)
				lastScreen = screen
			}
		case <-prune.C:
			if backend.Prune == nil {
				continue
			}
			n, err := backend.Prune(ctx)
			if err != nil {
				errutil.LogWarn(logger, "pruning refresh tokens", err)
				continue
			}
			logger.Debug("pruned refresh tokens", "count", n)
		}
	}
}
