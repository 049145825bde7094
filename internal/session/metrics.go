// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package session

import "github.com/prometheus/client_golang/prometheus"

// Result labels.
const (
	ResultFound    = "found"
	ResultNotFound = "not_found"
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultExpired  = "expired"
)

// Metrics holds the controller's Prometheus collectors.
type Metrics struct {
	ProfileFetches     *prometheus.CounterVec
	ReconnectAttempts  *prometheus.CounterVec
	OfflineTransitions prometheus.Counter
	SessionExpirations prometheus.Counter
}

// NewMetrics creates an unregistered set of collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		ProfileFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldguard_profile_fetch_total",
				Help: "Profile fetches by result (found, not_found, or the failure kind)",
			},
			[]string{"result"},
		),
		ReconnectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldguard_reconnect_attempts_total",
				Help: "Reconnect rounds by result",
			},
			[]string{"result"},
		),
		OfflineTransitions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldguard_offline_transitions_total",
			Help: "Transitions into offline read-only mode",
		}),
		SessionExpirations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldguard_session_expired_total",
			Help: "Sessions ended by an expired credential",
		}),
	}
}

// Register registers the collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.ProfileFetches, m.ReconnectAttempts, m.OfflineTransitions, m.SessionExpirations} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// defaultMetrics backs controllers created without WithMetrics.
var defaultMetrics = NewMetrics()

// RegisterMetrics registers the default collectors with reg.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	if err := defaultMetrics.Register(reg); err != nil {
		panic(err)
	}
}
