// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireOops fails the test unless err is a non-nil oops error.
func requireOops(t *testing.T, err error) oops.OopsError {
	t.Helper()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	return oopsErr
}

// AssertErrorCode checks the outermost oops code of err. Commands wrap
// controller errors, so callers assert the code their own layer sets.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	assert.Equal(t, code, requireOops(t, err).Code(), "error: %v", err)
}

// AssertErrorContext checks that the merged oops context of err has key set
// to value.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	ctx := requireOops(t, err).Context()
	if assert.Contains(t, ctx, key, "context keys: %v", keys(ctx)) {
		assert.Equal(t, value, ctx[key])
	}
}

// AssertErrorHint checks the user-facing hint attached to err.
func AssertErrorHint(t *testing.T, err error, hint string) {
	t.Helper()
	assert.Equal(t, hint, requireOops(t, err).Hint())
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
