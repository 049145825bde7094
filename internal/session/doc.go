// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

// Package session implements the authentication lifecycle of a FieldGuard
// device.
//
// A Controller reconciles the identity provider's session, the profile row
// of the signed-in subject, the last-known identity cached on the device and
// transient connectivity failures into a single observable State.
//
// # Lifecycle
//
// A controller starts in PhaseInitializing with Loading set. Initialize looks
// up the current session and loads its profile under a safety timer, after
// which the controller is PhaseReady. A dead refresh token moves it to
// PhaseSessionExpired, which only SignOut leaves.
//
// # Offline mode
//
// Network and permission failures never erase local data. They set
// OfflineReadOnly, keep the last profile readable and start a background
// poller that calls TryReconnectWithBackoff until the backend answers again.
// AssertOnline lets mutating callers refuse writes while offline.
package session
