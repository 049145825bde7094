// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

// Package identity defines the identity and profile domain shared by the
// session controller and its remote collaborators.
//
// # Domain Types
//
// Profiles and role-specific records should be created using their
// constructors:
//   - NewProfile - creates a Profile with a validated subject id, email and role
//   - NewAgentRecord - creates an AgentRecord with a generated QR identifier
//   - NewClientRecord - creates a ClientRecord with an empty scan history
//
// # Collaborators
//
// Provider abstracts the identity service (sessions, sign-in, sign-up,
// sign-out, change stream). ProfileStore abstracts the relational profile
// tables. Implementations live in the local and postgres sub-packages.
package identity
