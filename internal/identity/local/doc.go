// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

// Package local implements identity.Provider as a self-hosted identity
// service.
//
// Credentials are argon2id hashes. Access tokens are short-lived HS256 JWTs.
// Refresh tokens are random secrets stored only as SHA-256 hashes and rotated
// on every use. The device session (the token pair currently held by this
// process) is persisted in a cache.Store so it survives restarts.
package local
