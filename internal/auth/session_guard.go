// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionGuard validates session ids against their stored rows and
// rotates ids approaching expiry. It operates on whatever store view
// the caller hands it, so a guard check can share the caller's open
// transaction.
type SessionGuard struct {
	tokens TokenGenerator
	cfg    Config
}

// NewSessionGuard creates a SessionGuard.
func NewSessionGuard(tokens TokenGenerator, cfg Config) *SessionGuard {
	return &SessionGuard{tokens: tokens, cfg: cfg}
}

// Validate checks sid and returns the id the caller should keep using,
// along with the owning account. A sid with no stored row fails with
// AUTH_SESSION_EXPIRED, like a session at or past its TTL, which is
// also deleted; a refused row fails with AUTH_SESSION_INVALID. A live
// session inside the refresh threshold is rotated: a fresh id replaces
// the stored one and is returned in place of sid.
func (g *SessionGuard) Validate(ctx context.Context, s Store, sid string) (string, ulid.ULID, error) {
	now := time.Now().UTC()

	sess, err := s.Sessions().GetByTokenHash(ctx, HashToken(sid))
	if errors.Is(err, ErrNotFound) {
		// The row may have been reaped or logged out; either way the
		// session is gone, not forged.
		return "", ulid.ULID{}, oops.Code(CodeSessionExpired).Errorf("session id not recognized")
	}
	if err != nil {
		return "", ulid.ULID{}, oops.Code("SESSION_CHECK_FAILED").
			With("operation", "get session by id").
			Wrap(err)
	}

	if sess.Status != SessionAccepted {
		if err := s.Sessions().Delete(ctx, sess.AccountID); err != nil {
			return "", ulid.ULID{}, oops.Code("SESSION_CHECK_FAILED").
				With("operation", "delete refused session").
				Wrap(err)
		}
		return "", ulid.ULID{}, oops.Code(CodeSessionInvalid).Errorf("session id not recognized")
	}

	if sess.ExpiredAt(now, g.cfg.SessionTTL) {
		if err := s.Sessions().Delete(ctx, sess.AccountID); err != nil {
			return "", ulid.ULID{}, oops.Code("SESSION_CHECK_FAILED").
				With("operation", "delete expired session").
				Wrap(err)
		}
		return "", ulid.ULID{}, oops.Code(CodeSessionExpired).Errorf("session expired")
	}

	if sess.NeedsRefreshAt(now, g.cfg.SessionTTL, g.cfg.RefreshThreshold) {
		token, err := g.tokens.Generate()
		if err != nil {
			return "", ulid.ULID{}, oops.Code("SESSION_CHECK_FAILED").
				With("operation", "generate rotated session id").
				Wrap(err)
		}
		sess.TokenHash = HashToken(token)
		sess.LastAttemptAt = now
		if err := s.Sessions().Upsert(ctx, sess); err != nil {
			return "", ulid.ULID{}, oops.Code("SESSION_CHECK_FAILED").
				With("operation", "store rotated session").
				Wrap(err)
		}
		return token, sess.AccountID, nil
	}

	return sid, sess.AccountID, nil
}
