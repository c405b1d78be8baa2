// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	db querier
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db querier) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create stores a new account. A duplicate email is reported as
// auth.ErrConflict.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO accounts (id, email, password_hash, status, role_slug, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		account.ID.String(),
		account.Email,
		account.PasswordHash,
		int16(account.Status),
		account.RoleSlug,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("ACCOUNT_EXISTS").
				With("email", account.Email).
				Wrap(auth.ErrConflict)
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("email", account.Email).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, email, password_hash, status, role_slug, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`, id.String())

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_ID_FAILED").
			With("operation", "get account by id").
			With("id", id.String()).
			Wrap(err)
	}
	return account, nil
}

// GetByEmail retrieves an account by its exact email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, email, password_hash, status, role_slug, created_at, updated_at
		FROM accounts
		WHERE email = $1
	`, email)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_EMAIL_FAILED").
			With("operation", "get account by email").
			With("email", email).
			Wrap(err)
	}
	return account, nil
}

// Update updates an existing account.
func (r *AccountRepository) Update(ctx context.Context, account *auth.Account) error {
	result, err := r.db.Exec(ctx, `
		UPDATE accounts SET
			email = $2,
			password_hash = $3,
			status = $4,
			role_slug = $5,
			updated_at = $6
		WHERE id = $1
	`,
		account.ID.String(),
		account.Email,
		account.PasswordHash,
		int16(account.Status),
		account.RoleSlug,
		account.UpdatedAt,
	)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "update account").
			With("id", account.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", account.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// Delete removes an account. Activation and session rows cascade.
func (r *AccountRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.db.Exec(ctx, `
		DELETE FROM accounts WHERE id = $1
	`, id.String())
	if err != nil {
		return oops.Code("ACCOUNT_DELETE_FAILED").
			With("operation", "delete account").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanAccount scans a single row into an Account.
func scanAccount(row pgx.Row) (*auth.Account, error) {
	var account auth.Account
	var idStr string
	var status int16

	err := row.Scan(
		&idStr,
		&account.Email,
		&account.PasswordHash,
		&status,
		&account.RoleSlug,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_PARSE_FAILED").
			With("field", "id").
			With("value", idStr).
			Wrap(err)
	}
	account.Status = auth.AccountStatus(status)
	return &account, nil
}

// Compile-time interface check.
var _ auth.AccountRepository = (*AccountRepository)(nil)
