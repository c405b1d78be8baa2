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

// SessionRepository implements auth.SessionRepository using PostgreSQL.
// Refused rows carry no token; their empty hash is stored as NULL so the
// partial unique index on token_hash only ever sees real digests.
type SessionRepository struct {
	db querier
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db querier) *SessionRepository {
	return &SessionRepository{db: db}
}

// Upsert writes the session row for an account, replacing any existing
// one.
func (r *SessionRepository) Upsert(ctx context.Context, session *auth.Session) error {
	var tokenHash *string
	if session.TokenHash != "" {
		tokenHash = &session.TokenHash
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO sessions (account_id, token_hash, status, attempts, last_attempt_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id) DO UPDATE SET
			token_hash = EXCLUDED.token_hash,
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			last_attempt_at = EXCLUDED.last_attempt_at
	`,
		session.AccountID.String(),
		tokenHash,
		int16(session.Status),
		session.Attempts,
		session.LastAttemptAt,
	)
	if err != nil {
		return oops.Code("SESSION_UPSERT_FAILED").
			With("operation", "upsert session").
			With("account_id", session.AccountID.String()).
			Wrap(err)
	}
	return nil
}

// GetByAccount retrieves the session row for an account.
func (r *SessionRepository) GetByAccount(ctx context.Context, accountID ulid.ULID) (*auth.Session, error) {
	row := r.db.QueryRow(ctx, `
		SELECT account_id, token_hash, status, attempts, last_attempt_at
		FROM sessions
		WHERE account_id = $1
	`, accountID.String())

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").
			With("account_id", accountID.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_ACCOUNT_FAILED").
			With("operation", "get session by account").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return session, nil
}

// GetByTokenHash retrieves a session by its token digest. Refused rows
// store NULL and can never match.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	row := r.db.QueryRow(ctx, `
		SELECT account_id, token_hash, status, attempts, last_attempt_at
		FROM sessions
		WHERE token_hash = $1
	`, tokenHash)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "get session by token").
			Wrap(err)
	}
	return session, nil
}

// Delete removes the session row for an account.
func (r *SessionRepository) Delete(ctx context.Context, accountID ulid.ULID) error {
	result, err := r.db.Exec(ctx, `
		DELETE FROM sessions WHERE account_id = $1
	`, accountID.String())
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("account_id", accountID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanSession scans a single row into a Session.
func scanSession(row pgx.Row) (*auth.Session, error) {
	var session auth.Session
	var accountIDStr string
	var tokenHash *string
	var status int16

	err := row.Scan(&accountIDStr, &tokenHash, &status, &session.Attempts, &session.LastAttemptAt)
	if err != nil {
		return nil, err
	}

	session.AccountID, err = ulid.Parse(accountIDStr)
	if err != nil {
		return nil, oops.Code("SESSION_PARSE_FAILED").
			With("field", "account_id").
			With("value", accountIDStr).
			Wrap(err)
	}
	if tokenHash != nil {
		session.TokenHash = *tokenHash
	}
	session.Status = auth.SessionStatus(status)
	return &session, nil
}

// Compile-time interface check.
var _ auth.SessionRepository = (*SessionRepository)(nil)
