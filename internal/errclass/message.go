// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package errclass

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fieldguard/fieldguard/internal/identity"
)

// User-facing messages per kind.
const (
	MessageUnknown           = "Unknown error."
	MessageNetwork           = "Connection problem. Check your network."
	MessagePermission        = "Insufficient permissions. Contact an administrator."
	MessageExpiredCredential = "Session expired. Please sign in again."
)

// Message returns a short, user-facing description of err.
func Message(err error) string {
	switch Classify(err) {
	case None:
		return MessageUnknown
	case Network:
		return MessageNetwork
	case Permission:
		return MessagePermission
	case ExpiredCredential:
		return MessageExpiredCredential
	default:
		if msg := err.Error(); msg != "" {
			return msg
		}
		return MessageUnknown
	}
}

// Attrs returns slog key/value pairs describing err and its classification.
func Attrs(err error) []any {
	if err == nil {
		return nil
	}
	kind := Classify(err)
	attrs := []any{
		"error", err.Error(),
		"kind", kind.String(),
		"offline", kind == Network || kind == Permission,
	}

	var remote *identity.RemoteError
	if errors.As(err, &remote) {
		if remote.Code != "" {
			attrs = append(attrs, "remote_code", remote.Code)
		}
		if remote.Details != "" {
			attrs = append(attrs, "details", remote.Details)
		}
		if remote.Hint != "" {
			attrs = append(attrs, "hint", remote.Hint)
		}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		attrs = append(attrs, "pg_code", pgErr.Code)
	}
	return attrs
}
