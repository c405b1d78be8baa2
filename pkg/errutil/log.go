// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// secretKeys lists context keys whose values must never reach the log.
// Errors wrapped deep in the auth flows can carry raw credentials or
// session ids in their context.
var secretKeys = map[string]struct{}{
	"pwd":      {},
	"password": {},
	"sid":      {},
	"token":    {},
	"aid":      {},
}

// LogError logs an error with structured context if it's an oops error.
// For oops errors, it extracts and logs the message, code, and context,
// redacting any secret-bearing context values. For standard errors, it
// logs the error string.
func LogError(logger *slog.Logger, msg string, err error) {
	if oopsErr, ok := oops.AsOops(err); ok {
		attrs := []any{
			"error", oopsErr.Error(),
		}
		if code := oopsErr.Code(); code != "" {
			attrs = append(attrs, "code", code)
		}
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			attrs = append(attrs, "context", redact(ctx))
		}
		logger.Error(msg, attrs...)
	} else {
		logger.Error(msg, "error", err)
	}
}

// redact replaces secret context values, leaving the keys visible so
// the log still shows what the error carried.
func redact(ctx map[string]any) map[string]any {
	clean := make(map[string]any, len(ctx))
	for k, v := range ctx {
		if _, secret := secretKeys[k]; secret {
			clean[k] = "[redacted]"
			continue
		}
		clean[k] = v
	}
	return clean
}
