// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package session

import (
	"time"

	"github.com/samber/oops"
)

// Config holds the controller timings.
type Config struct {
	// SafetyTimeout caps how long the startup load may keep Loading set.
	SafetyTimeout time.Duration `koanf:"safety_timeout"`
	// ProfileFetchTimeout bounds a single profile fetch.
	ProfileFetchTimeout time.Duration `koanf:"profile_fetch_timeout"`
	// PollInterval is the period of the offline reconnect poller.
	PollInterval time.Duration `koanf:"poll_interval"`
	// Backoff lists the delay after each failed reconnect round. Its length
	// is the number of rounds.
	Backoff []time.Duration `koanf:"backoff"`
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		SafetyTimeout:       30 * time.Second,
		ProfileFetchTimeout: 10 * time.Second,
		PollInterval:        10 * time.Second,
		Backoff:             []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
	}
}

// Validate checks that every timing is usable.
func (c Config) Validate() error {
	switch {
	case c.SafetyTimeout <= 0:
		return oops.Code("SESSION_CONFIG_INVALID").With("field", "safety_timeout").Errorf("must be positive")
	case c.ProfileFetchTimeout <= 0:
		return oops.Code("SESSION_CONFIG_INVALID").With("field", "profile_fetch_timeout").Errorf("must be positive")
	case c.PollInterval <= 0:
		return oops.Code("SESSION_CONFIG_INVALID").With("field", "poll_interval").Errorf("must be positive")
	case len(c.Backoff) == 0:
		return oops.Code("SESSION_CONFIG_INVALID").With("field", "backoff").Errorf("at least one round is required")
	}
	for i, d := range c.Backoff {
		if d < 0 {
			return oops.Code("SESSION_CONFIG_INVALID").With("field", "backoff").With("index", i).
				Errorf("delay cannot be negative")
		}
	}
	return nil
}
