// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package session

import "github.com/samber/oops"

// ErrOfflineReadOnly is returned by AssertOnline while the controller is in
// offline read-only mode.
var ErrOfflineReadOnly = oops.Code("OFFLINE_READ_ONLY").Errorf("read-only while offline")

// Sentinel errors.
var (
	ErrAlreadyInitialized = oops.Code("SESSION_ALREADY_INITIALIZED").Errorf("controller already initialized")
	ErrClosed             = oops.Code("SESSION_CLOSED").Errorf("controller is closed")
	// ErrSubjectChanged is returned by LoadProfile when the signed-in subject
	// changed while the profile was being fetched.
	ErrSubjectChanged = oops.Code("PROFILE_SUBJECT_CHANGED").Errorf("signed-in subject changed during profile load")
)
