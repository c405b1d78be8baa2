// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionStatus records the outcome of the most recent login attempt.
type SessionStatus int16

// Session statuses. The numeric values are stored as-is.
const (
	SessionRefused  SessionStatus = 0
	SessionAccepted SessionStatus = 1
)

// Session is the single per-account login record. It doubles as the
// throttling ledger: a refused attempt overwrites it with an empty
// token hash and the running attempt counter, an accepted attempt
// overwrites it with a fresh token. Only the SHA-256 digest of the
// session id is stored.
type Session struct {
	AccountID     ulid.ULID
	TokenHash     string
	Status        SessionStatus
	Attempts      int
	LastAttemptAt time.Time
}

// ExpiredAt reports whether the session has aged past the TTL at the
// given instant. The boundary is inclusive.
func (s *Session) ExpiredAt(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.LastAttemptAt) >= ttl
}

// NeedsRefreshAt reports whether the remaining lifetime at the given
// instant is at or below the refresh threshold.
func (s *Session) NeedsRefreshAt(now time.Time, ttl, threshold time.Duration) bool {
	return now.Sub(s.LastAttemptAt) >= ttl-threshold
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Upsert writes the session row for an account, replacing any
	// existing one.
	Upsert(ctx context.Context, session *Session) error

	// GetByAccount retrieves the session row for an account.
	// Returns ErrNotFound if none exists.
	GetByAccount(ctx context.Context, accountID ulid.ULID) (*Session, error)

	// GetByTokenHash retrieves a session by its token digest.
	// Returns ErrNotFound if none exists.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// Delete removes the session row for an account.
	Delete(ctx context.Context, accountID ulid.ULID) error
}
