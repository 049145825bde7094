// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package identity

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when an insert collides with an existing row.
var ErrAlreadyExists = errors.New("already exists")

// RemoteError is the loosely-typed failure payload returned by the identity
// service and the profile store. Code carries the backend's machine-readable
// code (for example "PGRST116" or "refresh_token_not_found").
type RemoteError struct {
	Code    string
	Message string
	Details string
	Hint    string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (code %s)", e.Message, e.Code)
}
