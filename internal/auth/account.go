// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// AccountStatus is the lifecycle state of an account.
type AccountStatus int16

// Account lifecycle states. The numeric values are stored as-is.
const (
	StatusInactive AccountStatus = 0
	StatusActive   AccountStatus = 1
	StatusBlocked  AccountStatus = 2
)

// String returns the status name for logging.
func (s AccountStatus) String() string {
	switch s {
	case StatusInactive:
		return "inactive"
	case StatusActive:
		return "active"
	case StatusBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Well-known role slugs. RoleAnonymous is the tree root used for
// unauthenticated callers; RoleStandard is assigned on registration.
const (
	RoleAnonymous = "anonymous"
	RoleStandard  = "standard"
)

// Account represents a registered identity.
type Account struct {
	ID           ulid.ULID
	Email        string
	PasswordHash string
	Status       AccountStatus
	RoleSlug     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewAccount creates an Inactive account with a fresh identifier.
// The password must already be hashed; raw credentials never reach the
// entity layer.
func NewAccount(email, passwordHash, roleSlug string) (*Account, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, oops.Code("ACCOUNT_INVALID").Errorf("email cannot be empty")
	}
	if !strings.Contains(email, "@") {
		return nil, oops.Code("ACCOUNT_INVALID").With("email", email).Errorf("email is not an address")
	}
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID").Errorf("password hash cannot be empty")
	}
	if roleSlug == "" {
		return nil, oops.Code("ACCOUNT_INVALID").Errorf("role slug cannot be empty")
	}

	now := time.Now().UTC()
	return &Account{
		ID:           NewULID(),
		Email:        email,
		PasswordHash: passwordHash,
		Status:       StatusInactive,
		RoleSlug:     roleSlug,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// AccountRepository manages account persistence.
type AccountRepository interface {
	// Create persists a new account. A duplicate email surfaces as a
	// store uniqueness error.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by its identifier.
	// Returns ErrNotFound if no account exists.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByEmail retrieves an account by email.
	// Returns ErrNotFound if no account exists.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// Update persists changes to an existing account.
	Update(ctx context.Context, account *Account) error

	// Delete removes an account. Dependent activation and session rows
	// are removed with it.
	Delete(ctx context.Context, id ulid.ULID) error
}
