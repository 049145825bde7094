// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package session

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fieldguard/fieldguard/internal/errclass"
)

var (
	errRoundsExhausted = errors.New("reconnect rounds exhausted")
	errStopReconnect   = errors.New("reconnect abandoned")
)

// sequence yields delays in order and then stops.
func sequence(delays []time.Duration) retry.Backoff {
	i := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		if i >= len(delays) {
			return 0, true
		}
		d := delays[i]
		i++
		return d, false
	})
}

// TryReconnectWithBackoff tries to restore the session and profile, waiting
// Config.Backoff[i] after failed round i. It reports whether the controller
// is back online.
//
// An expired credential signs out and stops immediately. So does a session
// whose profile row no longer exists. Cancelling ctx stops the wait.
func (c *Controller) TryReconnectWithBackoff(ctx context.Context) (ok bool) {
	rounds := len(c.cfg.Backoff)
	ctx, span := tracer.Start(ctx, "session.reconnect",
		trace.WithAttributes(attribute.Int("rounds", rounds)))
	defer func() {
		span.SetAttributes(attribute.Bool("reconnected", ok))
		span.End()
	}()

	attempt := 0
	err := retry.Do(ctx, sequence(c.cfg.Backoff), func(ctx context.Context) error {
		attempt++
		if attempt > rounds {
			return errRoundsExhausted
		}
		err := c.reconnectRound(ctx)
		switch {
		case err == nil:
			c.metrics.ReconnectAttempts.WithLabelValues(ResultSuccess).Inc()
			return nil
		case errors.Is(err, errStopReconnect):
			c.metrics.ReconnectAttempts.WithLabelValues(ResultExpired).Inc()
			return err
		default:
			c.metrics.ReconnectAttempts.WithLabelValues(ResultFailure).Inc()
			c.logger.Debug("reconnect round failed",
				append([]any{"attempt", attempt, "of", rounds}, errclass.Attrs(err)...)...)
			return retry.RetryableError(err)
		}
	})
	if err != nil {
		if errors.Is(err, errRoundsExhausted) {
			c.logger.Info("reconnect gave up", "rounds", rounds)
		}
		return false
	}

	c.markOnline(true)
	return true
}

// reconnectRound performs one lookup-then-load round. It returns
// errStopReconnect when retrying cannot help.
func (c *Controller) reconnectRound(ctx context.Context) error {
	s, err := c.provider.GetCurrentSession(ctx)
	if err != nil {
		if errclass.ShouldForceSignOut(err) {
			c.logger.Warn("credential expired during reconnect; signing out", errclass.Attrs(err)...)
			c.SignOut(context.WithoutCancel(ctx))
			return errStopReconnect
		}
		return err
	}
	if s == nil {
		return oops.Code("RECONNECT_NO_SESSION").Errorf("no session available")
	}

	c.mu.Lock()
	if !s.Same(c.state.Session) {
		c.sessionGen++
		c.state.Session = s.Clone()
		c.publishLocked()
	}
	c.mu.Unlock()

	p, err := c.LoadProfile(ctx, s.SubjectID)
	if err != nil {
		if errclass.ShouldForceSignOut(err) {
			c.logger.Warn("credential expired during reconnect; signing out", errclass.Attrs(err)...)
			c.SignOut(context.WithoutCancel(ctx))
			return errStopReconnect
		}
		return err
	}
	if p == nil {
		// No row: LoadProfile signed out unless a sign-up is provisioning it.
		return errStopReconnect
	}
	return nil
}
