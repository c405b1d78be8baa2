// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// ActivationRepository implements auth.ActivationRepository using
// PostgreSQL.
type ActivationRepository struct {
	db querier
}

// NewActivationRepository creates a new ActivationRepository.
func NewActivationRepository(db querier) *ActivationRepository {
	return &ActivationRepository{db: db}
}

// Upsert writes the activation row for an account, replacing any
// existing one.
func (r *ActivationRepository) Upsert(ctx context.Context, activation *auth.Activation) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO activations (account_id, token_hash, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id) DO UPDATE SET
			token_hash = EXCLUDED.token_hash,
			created_at = EXCLUDED.created_at
	`,
		activation.AccountID.String(),
		activation.TokenHash,
		activation.CreatedAt,
	)
	if err != nil {
		return oops.Code("ACTIVATION_UPSERT_FAILED").
			With("operation", "upsert activation").
			With("account_id", activation.AccountID.String()).
			Wrap(err)
	}
	return nil
}

// GetByAccount retrieves the activation for an account.
func (r *ActivationRepository) GetByAccount(ctx context.Context, accountID ulid.ULID) (*auth.Activation, error) {
	row := r.db.QueryRow(ctx, `
		SELECT account_id, token_hash, created_at
		FROM activations
		WHERE account_id = $1
	`, accountID.String())

	activation, err := scanActivation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACTIVATION_NOT_FOUND").
			With("account_id", accountID.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACTIVATION_GET_BY_ACCOUNT_FAILED").
			With("operation", "get activation by account").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return activation, nil
}

// GetByTokenHash retrieves an activation by its token digest.
func (r *ActivationRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Activation, error) {
	row := r.db.QueryRow(ctx, `
		SELECT account_id, token_hash, created_at
		FROM activations
		WHERE token_hash = $1
	`, tokenHash)

	activation, err := scanActivation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACTIVATION_NOT_FOUND").
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACTIVATION_GET_BY_TOKEN_FAILED").
			With("operation", "get activation by token").
			Wrap(err)
	}
	return activation, nil
}

// Delete removes the activation for an account.
func (r *ActivationRepository) Delete(ctx context.Context, accountID ulid.ULID) error {
	result, err := r.db.Exec(ctx, `
		DELETE FROM activations WHERE account_id = $1
	`, accountID.String())
	if err != nil {
		return oops.Code("ACTIVATION_DELETE_FAILED").
			With("operation", "delete activation").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACTIVATION_NOT_FOUND").
			With("account_id", accountID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanActivation scans a single row into an Activation.
func scanActivation(row pgx.Row) (*auth.Activation, error) {
	var activation auth.Activation
	var accountIDStr string

	err := row.Scan(&accountIDStr, &activation.TokenHash, &activation.CreatedAt)
	if err != nil {
		return nil, err
	}

	activation.AccountID, err = ulid.Parse(accountIDStr)
	if err != nil {
		return nil, oops.Code("ACTIVATION_PARSE_FAILED").
			With("field", "account_id").
			With("value", accountIDStr).
			Wrap(err)
	}
	return &activation, nil
}

// Compile-time interface check.
var _ auth.ActivationRepository = (*ActivationRepository)(nil)
