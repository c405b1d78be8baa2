// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// logEntry represents a parsed JSON log entry.
type logEntry struct {
	Level string `json:"level"`
	Msg   string `json:"msg"`
	Event string `json:"event"`
	Email string `json:"email"`
	Error string `json:"error"`
}

func TestRegistrationFlow_LogsDeliveryFailure(t *testing.T) {
	store := newMemStore()
	notifier := &stubNotifier{err: errors.New("smtp connection refused")}

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	flow := auth.NewRegistrationFlowWithLogger(
		store,
		&stubTokens{tokens: []string{"tok"}},
		fakeHasher{},
		notifier,
		auth.DefaultConfig(),
		logger,
	)

	err := flow.Register(context.Background(), "unreachable@example.com", "password123")
	require.NoError(t, err, "registration should survive a delivery failure")

	var entry logEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "should have logged JSON entry")

	assert.Equal(t, "WARN", entry.Level)
	assert.Contains(t, entry.Msg, "delivery failed")
	assert.Equal(t, "notify_failed", entry.Event)
	assert.Equal(t, "unreachable@example.com", entry.Email)
	assert.Contains(t, entry.Error, "smtp connection refused")
}
