// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package postgres implements auth.Store on PostgreSQL via pgx.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// querier is the subset of pool operations the repositories need. Both
// *pgxpool.Pool and pgx.Tx satisfy it, so a repository runs unchanged
// inside or outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// beginner extends querier with transaction start. *pgxpool.Pool and
// pgxmock pools implement it.
type beginner interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store implements auth.Store. The zero value is not usable; construct
// with NewStore.
type Store struct {
	db      beginner
	txBound bool
}

// NewStore creates a Store on the given pool.
func NewStore(pool beginner) *Store {
	return &Store{db: pool}
}

// Accounts returns the account repository.
func (s *Store) Accounts() auth.AccountRepository { return NewAccountRepository(s.db) }

// Activations returns the activation repository.
func (s *Store) Activations() auth.ActivationRepository { return NewActivationRepository(s.db) }

// Sessions returns the session repository.
func (s *Store) Sessions() auth.SessionRepository { return NewSessionRepository(s.db) }

// Roles returns the role repository.
func (s *Store) Roles() auth.RoleRepository { return NewRoleRepository(s.db) }

// Permissions returns the permission repository.
func (s *Store) Permissions() auth.PermissionRepository { return NewPermissionRepository(s.db) }

// InTx begins a transaction and calls fn with a Store view bound to it.
// If fn returns nil the transaction is committed, otherwise it is
// rolled back. On an already-bound view fn joins the open transaction.
func (s *Store) InTx(ctx context.Context, fn func(auth.Store) error) error {
	if s.txBound {
		return fn(s)
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(&Store{db: tx, txBound: true}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	return nil
}

// Compile-time interface check.
var _ auth.Store = (*Store)(nil)
