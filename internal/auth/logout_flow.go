// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"
)

// LogoutFlow closes sessions.
type LogoutFlow struct {
	store Store
}

// NewLogoutFlow creates a LogoutFlow.
func NewLogoutFlow(store Store) *LogoutFlow {
	return &LogoutFlow{store: store}
}

// Logout deletes the session identified by sid. An empty, unknown, or
// refused sid fails with AUTH_NOT_AUTHENTICATED.
func (f *LogoutFlow) Logout(ctx context.Context, sid string) error {
	if sid == "" {
		return oops.Code(CodeNotAuthenticated).Errorf("no session to close")
	}
	return f.store.InTx(ctx, func(tx Store) error {
		sess, err := tx.Sessions().GetByTokenHash(ctx, HashToken(sid))
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeNotAuthenticated).Errorf("no session to close")
		}
		if err != nil {
			return oops.Code("LOGOUT_FAILED").
				With("operation", "get session by id").
				Wrap(err)
		}
		if sess.Status != SessionAccepted {
			return oops.Code(CodeNotAuthenticated).Errorf("no session to close")
		}
		if err := tx.Sessions().Delete(ctx, sess.AccountID); err != nil {
			return oops.Code("LOGOUT_FAILED").
				With("operation", "delete session").
				Wrap(err)
		}
		return nil
	})
}
