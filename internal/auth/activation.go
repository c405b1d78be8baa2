// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Activation is the pending-confirmation record for an Inactive account.
// At most one exists per account; re-registration overwrites it in place.
// Only the SHA-256 digest of the token is stored.
type Activation struct {
	AccountID ulid.ULID
	TokenHash string
	CreatedAt time.Time
}

// ExpiredAt reports whether the token has aged past the TTL at the
// given instant. The boundary is inclusive: a token exactly TTL old is
// expired.
func (a *Activation) ExpiredAt(now time.Time, ttl time.Duration) bool {
	return now.Sub(a.CreatedAt) >= ttl
}

// ActivationRepository manages activation persistence.
type ActivationRepository interface {
	// Upsert writes the activation row for an account, replacing any
	// existing one.
	Upsert(ctx context.Context, activation *Activation) error

	// GetByAccount retrieves the activation for an account.
	// Returns ErrNotFound if none exists.
	GetByAccount(ctx context.Context, accountID ulid.ULID) (*Activation, error)

	// GetByTokenHash retrieves an activation by its token digest.
	// Returns ErrNotFound if none exists.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Activation, error)

	// Delete removes the activation for an account.
	Delete(ctx context.Context, accountID ulid.ULID) error
}
