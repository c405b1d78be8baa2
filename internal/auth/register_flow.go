// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Notifier delivers an activation token to a registrant out-of-band.
type Notifier interface {
	// Send delivers the token to the address. Delivery is best-effort
	// from the caller's perspective.
	Send(ctx context.Context, email, token string) error
}

// RegistrationFlow creates or refreshes an account registration and
// issues its activation token.
type RegistrationFlow struct {
	store    Store
	tokens   TokenGenerator
	hasher   PasswordHasher
	notifier Notifier
	cfg      Config
	logger   *slog.Logger
}

// NewRegistrationFlow creates a RegistrationFlow with a no-op logger.
func NewRegistrationFlow(store Store, tokens TokenGenerator, hasher PasswordHasher, notifier Notifier, cfg Config) *RegistrationFlow {
	return &RegistrationFlow{
		store:    store,
		tokens:   tokens,
		hasher:   hasher,
		notifier: notifier,
		cfg:      cfg,
		logger:   slog.New(slog.DiscardHandler),
	}
}

// NewRegistrationFlowWithLogger creates a RegistrationFlow that logs
// best-effort notification failures.
func NewRegistrationFlowWithLogger(store Store, tokens TokenGenerator, hasher PasswordHasher, notifier Notifier, cfg Config, logger *slog.Logger) *RegistrationFlow {
	f := NewRegistrationFlow(store, tokens, hasher, notifier, cfg)
	f.logger = logger
	return f
}

// Register creates an Inactive account for an unknown email, or
// refreshes an abandoned registration. It fails with
// AUTH_DUPLICATE_REGISTRATION when the email belongs to an activated
// account and with AUTH_PENDING_ACTIVATION while a live activation
// token exists, so a pending registration cannot be hijacked by
// re-registering with a different password.
func (f *RegistrationFlow) Register(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)

	// Hashing is CPU-bound; keep it outside the transaction.
	passwordHash, err := f.hasher.Hash(password)
	if err != nil {
		return err
	}

	var token string
	err = f.store.InTx(ctx, func(tx Store) error {
		now := time.Now().UTC()

		account, err := tx.Accounts().GetByEmail(ctx, email)
		switch {
		case err == nil:
			if account.Status != StatusInactive {
				return oops.Code(CodeDuplicateRegistration).
					With("email", email).
					Errorf("already registered")
			}

			activation, actErr := tx.Activations().GetByAccount(ctx, account.ID)
			if actErr != nil && !errors.Is(actErr, ErrNotFound) {
				return oops.Code("REGISTER_FAILED").
					With("operation", "get activation").
					Wrap(actErr)
			}
			if actErr == nil && now.Sub(activation.CreatedAt) <= f.cfg.ActivationTTL {
				return oops.Code(CodePendingActivation).
					With("email", email).
					Errorf("already registered but not activated")
			}

			// Abandoned registration: take the new password and fall
			// through to issuing a fresh token.
			account.PasswordHash = passwordHash
			account.UpdatedAt = now
			if err := tx.Accounts().Update(ctx, account); err != nil {
				return oops.Code("REGISTER_FAILED").
					With("operation", "update account").
					Wrap(err)
			}

		case errors.Is(err, ErrNotFound):
			account, err = NewAccount(email, passwordHash, RoleStandard)
			if err != nil {
				return err
			}
			if err := tx.Accounts().Create(ctx, account); err != nil {
				if errors.Is(err, ErrConflict) {
					// A concurrent registration won the unique index.
					return oops.Code(CodeDuplicateRegistration).
						With("email", email).
						Wrap(err)
				}
				return oops.Code("REGISTER_FAILED").
					With("operation", "create account").
					Wrap(err)
			}

		default:
			return oops.Code("REGISTER_FAILED").
				With("operation", "get account by email").
				Wrap(err)
		}

		generated, err := f.tokens.Generate()
		if err != nil {
			return err
		}
		token = generated

		activation := &Activation{
			AccountID: account.ID,
			TokenHash: HashToken(generated),
			CreatedAt: now,
		}
		if err := tx.Activations().Upsert(ctx, activation); err != nil {
			return oops.Code("REGISTER_FAILED").
				With("operation", "upsert activation").
				Wrap(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Delivery runs after commit so a rolled-back registration never
	// produces mail. Failure is logged, not surfaced.
	if err := f.notifier.Send(ctx, email, token); err != nil {
		f.logger.Warn("activation delivery failed",
			"event", "notify_failed",
			"email", email,
			"error", err.Error(),
		)
	}
	return nil
}
