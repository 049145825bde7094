// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

// Package cache provides the durable device-local key/value store.
//
// Values are opaque strings that survive process restarts. BadgerStore keeps
// them on disk; MemoryStore keeps them in process for tests. IdentityCache
// layers the last-known profile and role snapshot on top of any Store.
package cache
