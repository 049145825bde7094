// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

// Package errutil holds helpers for logging and asserting oops errors.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at error level with its oops code and context, if any.
// Extra attrs are appended after the error attributes.
func LogError(logger *slog.Logger, msg string, err error, attrs ...any) {
	logAt(context.Background(), logger, slog.LevelError, msg, err, attrs)
}

// LogWarn is LogError at warn level, for failures the caller recovers from.
func LogWarn(logger *slog.Logger, msg string, err error, attrs ...any) {
	logAt(context.Background(), logger, slog.LevelWarn, msg, err, attrs)
}

// LogErrorContext is LogError with a context carrying trace ids.
func LogErrorContext(ctx context.Context, logger *slog.Logger, msg string, err error, attrs ...any) {
	logAt(ctx, logger, slog.LevelError, msg, err, attrs)
}

func logAt(ctx context.Context, logger *slog.Logger, level slog.Level, msg string, err error, extra []any) {
	if logger == nil {
		logger = slog.Default()
	}
	attrs := ErrorAttrs(err)
	attrs = append(attrs, extra...)
	logger.Log(ctx, level, msg, attrs...)
}

// ErrorAttrs returns slog key/value pairs describing err. For oops errors the
// code and context are included.
func ErrorAttrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err}
	}
	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil {
		attrs = append(attrs, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", ctx)
	}
	return attrs
}
