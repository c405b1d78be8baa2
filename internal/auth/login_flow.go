// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/samber/oops"
)

// LoginFlow authenticates credentials and issues session ids. Failed
// attempts inside the retry window accumulate until the account is
// blocked; every attempt, pass or fail, is recorded on the account's
// single session row.
type LoginFlow struct {
	store  Store
	tokens TokenGenerator
	hasher PasswordHasher
	cfg    Config
}

// NewLoginFlow creates a LoginFlow.
func NewLoginFlow(store Store, tokens TokenGenerator, hasher PasswordHasher, cfg Config) *LoginFlow {
	return &LoginFlow{store: store, tokens: tokens, hasher: hasher, cfg: cfg}
}

// Login verifies email and password. On success it returns a fresh
// session id with ok true; on a credential mismatch it returns ok
// false with no error. Unknown emails fail with AUTH_NOT_REGISTERED,
// inactive accounts with AUTH_NOT_ACTIVATED, and blocked accounts with
// AUTH_TEMPORARILY_BLOCKED until the block duration has fully elapsed.
func (f *LoginFlow) Login(ctx context.Context, email, password string) (string, bool, error) {
	email = strings.TrimSpace(email)

	var (
		sid string
		ok  bool
	)
	err := f.store.InTx(ctx, func(tx Store) error {
		now := time.Now().UTC()

		account, err := tx.Accounts().GetByEmail(ctx, email)
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeNotRegistered).Errorf("email not registered")
		}
		if err != nil {
			return oops.Code("LOGIN_FAILED").
				With("operation", "get account by email").
				Wrap(err)
		}
		if account.Status == StatusInactive {
			return oops.Code(CodeNotActivated).Errorf("account not activated")
		}

		sess, err := tx.Sessions().GetByAccount(ctx, account.ID)
		haveSession := err == nil
		if err != nil && !errors.Is(err, ErrNotFound) {
			return oops.Code("LOGIN_FAILED").
				With("operation", "get session").
				Wrap(err)
		}

		if account.Status == StatusBlocked {
			if haveSession && now.Sub(sess.LastAttemptAt) <= f.cfg.BlockDuration {
				return oops.Code(CodeTemporarilyBlocked).Errorf("account temporarily blocked")
			}
			account.Status = StatusActive
			account.UpdatedAt = now
			if err := tx.Accounts().Update(ctx, account); err != nil {
				return oops.Code("LOGIN_FAILED").
					With("operation", "unblock account").
					Wrap(err)
			}
		}

		match, err := f.hasher.Verify(password, account.PasswordHash)
		if err != nil {
			return oops.Code("LOGIN_FAILED").
				With("operation", "verify password").
				Wrap(err)
		}
		if match {
			token, err := f.tokens.Generate()
			if err != nil {
				return oops.Code("LOGIN_FAILED").
					With("operation", "generate session id").
					Wrap(err)
			}
			if err := tx.Sessions().Upsert(ctx, &Session{
				AccountID:     account.ID,
				TokenHash:     HashToken(token),
				Status:        SessionAccepted,
				Attempts:      0,
				LastAttemptAt: now,
			}); err != nil {
				return oops.Code("LOGIN_FAILED").
					With("operation", "record accepted session").
					Wrap(err)
			}
			sid, ok = token, true
			return nil
		}

		attempts := 0
		if haveSession {
			attempts = sess.Attempts
		}
		switch {
		case attempts == 0:
			attempts = 1
		case now.Sub(sess.LastAttemptAt) <= f.cfg.RetryWindow:
			attempts++
			if attempts >= f.cfg.MaxAttempts {
				account.Status = StatusBlocked
				account.UpdatedAt = now
				if err := tx.Accounts().Update(ctx, account); err != nil {
					return oops.Code("LOGIN_FAILED").
						With("operation", "block account").
						Wrap(err)
				}
				attempts = 0
			}
		default:
			// Attempts outside the retry window carry over as-is; the
			// counter only moves again once it has been reset.
		}
		if err := tx.Sessions().Upsert(ctx, &Session{
			AccountID:     account.ID,
			TokenHash:     "",
			Status:        SessionRefused,
			Attempts:      attempts,
			LastAttemptAt: now,
		}); err != nil {
			return oops.Code("LOGIN_FAILED").
				With("operation", "record refused session").
				Wrap(err)
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return sid, ok, nil
}
