// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

// Package errclass categorizes failures from the identity service and the
// profile store into a small closed set of kinds that drive session policy.
//
// Classification is pure: it inspects the error chain and never performs I/O.
package errclass

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/gobwas/glob"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/fieldguard/fieldguard/internal/identity"
)

// Kind is the category of a remote failure.
type Kind int

// Failure kinds.
const (
	// None is the kind of a nil error.
	None Kind = iota
	// Network covers transport failures and timeouts.
	Network
	// Permission covers row-level-security and authorization rejections.
	Permission
	// ExpiredCredential covers invalid, expired or missing refresh tokens.
	ExpiredCredential
	// NotFound means "no data"; callers treat it as an empty result.
	NotFound
	// Unknown is anything else.
	Unknown
)

// String returns the lower camel name of the kind.
func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Network:
		return "network"
	case Permission:
		return "permission"
	case ExpiredCredential:
		return "expiredCredential"
	case NotFound:
		return "notFound"
	case Unknown:
		return "unknown"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// CodeNoRows is the REST gateway code for zero rows under a single-row fetch.
const CodeNoRows = "PGRST116"

// CodeRLSViolation is the REST gateway code for a row-level-security rejection.
const CodeRLSViolation = "PGRST301"

// markers holds lower-cased glob patterns matched against an error's message
// and codes.
type markers struct {
	message []glob.Glob
	code    []glob.Glob
}

func compile(patterns ...string) []glob.Glob {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, glob.MustCompile(p))
	}
	return out
}

var (
	networkMarkers = markers{
		message: compile("*network*", "*timeout*", "*fetch*", "*connection*"),
		code:    compile("*network*", "*timeout*"),
	}
	permissionMarkers = markers{
		message: compile("*rls*", "*policy*", "*permission*", "*unauthorized*"),
		code:    compile("*"+pgerrcode.InsufficientPrivilege+"*", "*"+strings.ToLower(CodeRLSViolation)+"*"),
	}
	expiredMarkers = markers{
		message: compile("*invalid refresh token*", "*refresh token not found*", "*refresh token expired*"),
		code:    compile("*invalid_grant*", "*refresh_token_not_found*"),
	}
	notFoundCode = strings.ToLower(CodeNoRows)
)

func (m markers) match(f facts) bool {
	for _, g := range m.message {
		if g.Match(f.message) {
			return true
		}
	}
	for _, code := range f.codes {
		for _, g := range m.code {
			if g.Match(code) {
				return true
			}
		}
	}
	return false
}

// facts is what the classifier knows about an error: its lower-cased message
// and every machine-readable code found in the chain.
type facts struct {
	message string
	codes   []string
}

func extract(err error) facts {
	f := facts{message: strings.ToLower(err.Error())}

	var remote *identity.RemoteError
	if errors.As(err, &remote) && remote.Code != "" {
		f.codes = append(f.codes, strings.ToLower(remote.Code))
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code != "" {
		f.codes = append(f.codes, strings.ToLower(pgErr.Code))
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		if code, ok := any(oopsErr.Code()).(string); ok && code != "" {
			f.codes = append(f.codes, strings.ToLower(code))
		}
	}
	return f
}

// Classify returns the kind of err. A nil error is None.
func Classify(err error) Kind {
	if err == nil {
		return None
	}
	if errors.Is(err, identity.ErrNotFound) || errors.Is(err, pgx.ErrNoRows) {
		return NotFound
	}

	f := extract(err)
	for _, code := range f.codes {
		if code == notFoundCode {
			return NotFound
		}
	}

	switch {
	case expiredMarkers.match(f):
		return ExpiredCredential
	case permissionMarkers.match(f):
		return Permission
	case errors.Is(err, context.DeadlineExceeded), isNetError(err), networkMarkers.match(f):
		return Network
	default:
		return Unknown
	}
}

func isNetError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}

// ShouldTriggerOfflineMode reports whether err should degrade the session to
// offline read-only mode instead of discarding local state.
func ShouldTriggerOfflineMode(err error) bool {
	k := Classify(err)
	return k == Network || k == Permission
}

// ShouldForceSignOut reports whether err proves the credential is dead.
func ShouldForceSignOut(err error) bool {
	return Classify(err) == ExpiredCredential
}

// IsNotFound reports whether err only signals the absence of data.
func IsNotFound(err error) bool {
	return Classify(err) == NotFound
}
