// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package session

import (
	"context"
	"time"
)

// poller periodically runs a reconnect while offline. At most one poller is
// active per controller.
type poller struct {
	cancel context.CancelFunc
}

// pollerAllowedLocked reports whether the current state calls for polling.
func (c *Controller) pollerAllowedLocked() bool {
	return !c.closed &&
		c.state.OfflineReadOnly &&
		!c.state.SessionExpired &&
		c.state.Phase != PhaseInitializing
}

// ensurePollerLocked starts a poller if one is needed and none runs.
func (c *Controller) ensurePollerLocked() {
	if c.poller == nil && c.pollerAllowedLocked() {
		c.startPollerLocked()
	}
}

// startPollerLocked replaces any running poller with a new one.
func (c *Controller) startPollerLocked() {
	c.stopPollerLocked()

	ctx, cancel := context.WithCancel(c.ctx)
	p := &poller{cancel: cancel}
	c.poller = p
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.poll(ctx, p)
	}()
	c.logger.Info("reconnect poller started", "interval", c.cfg.PollInterval)
}

// stopPollerLocked cancels the running poller without waiting for it.
func (c *Controller) stopPollerLocked() {
	if c.poller == nil {
		return
	}
	c.poller.cancel()
	c.poller = nil
}

func (c *Controller) poll(ctx context.Context, p *poller) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if c.TryReconnectWithBackoff(ctx) {
			c.mu.Lock()
			if c.poller == p {
				c.poller = nil
			}
			c.mu.Unlock()
			p.cancel()
			return
		}
	}
}
