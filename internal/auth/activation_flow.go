// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
)

// ActivationFlow consumes activation tokens, promoting accounts to
// Active or cleaning up tokens that can no longer be redeemed.
type ActivationFlow struct {
	store Store
	cfg   Config
}

// NewActivationFlow creates an ActivationFlow.
func NewActivationFlow(store Store, cfg Config) *ActivationFlow {
	return &ActivationFlow{store: store, cfg: cfg}
}

// Activate redeems a token. An unknown or orphaned token fails with
// AUTH_ACTIVATION_INVALID; a token at or past the activation TTL fails
// with AUTH_ACTIVATION_EXPIRED after removing both the token and the
// abandoned account. Cleanup deletions commit even though the call
// fails; only store errors roll the transaction back.
func (f *ActivationFlow) Activate(ctx context.Context, token string) error {
	var domErr error
	err := f.store.InTx(ctx, func(tx Store) error {
		now := time.Now().UTC()

		activation, err := tx.Activations().GetByTokenHash(ctx, HashToken(token))
		if errors.Is(err, ErrNotFound) {
			domErr = oops.Code(CodeActivationInvalid).Errorf("activation link not valid")
			return nil
		}
		if err != nil {
			return oops.Code("ACTIVATE_FAILED").
				With("operation", "get activation by token").
				Wrap(err)
		}

		account, err := tx.Accounts().GetByID(ctx, activation.AccountID)
		if errors.Is(err, ErrNotFound) {
			// Orphaned token; remove it so the digest cannot linger.
			if err := tx.Activations().Delete(ctx, activation.AccountID); err != nil {
				return oops.Code("ACTIVATE_FAILED").
					With("operation", "delete orphan activation").
					Wrap(err)
			}
			domErr = oops.Code(CodeActivationInvalid).Errorf("activation link not valid")
			return nil
		}
		if err != nil {
			return oops.Code("ACTIVATE_FAILED").
				With("operation", "get account").
				Wrap(err)
		}

		if activation.ExpiredAt(now, f.cfg.ActivationTTL) {
			// Abandoned registration: drop the token and the account it
			// was protecting.
			if err := tx.Activations().Delete(ctx, activation.AccountID); err != nil {
				return oops.Code("ACTIVATE_FAILED").
					With("operation", "delete expired activation").
					Wrap(err)
			}
			if err := tx.Accounts().Delete(ctx, account.ID); err != nil {
				return oops.Code("ACTIVATE_FAILED").
					With("operation", "delete abandoned account").
					Wrap(err)
			}
			domErr = oops.Code(CodeActivationExpired).Errorf("activation link expired")
			return nil
		}

		account.Status = StatusActive
		account.UpdatedAt = now
		if err := tx.Accounts().Update(ctx, account); err != nil {
			return oops.Code("ACTIVATE_FAILED").
				With("operation", "activate account").
				Wrap(err)
		}
		if err := tx.Activations().Delete(ctx, activation.AccountID); err != nil {
			return oops.Code("ACTIVATE_FAILED").
				With("operation", "delete consumed activation").
				Wrap(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return domErr
}
