// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"
)

// PermissionResolver answers access questions by combining session
// validation with a walk of the role tree.
type PermissionResolver struct {
	store Store
	guard *SessionGuard
}

// NewPermissionResolver creates a PermissionResolver.
func NewPermissionResolver(store Store, guard *SessionGuard) *PermissionResolver {
	return &PermissionResolver{store: store, guard: guard}
}

// Resolve collects the object ids granted to roleSlug and every
// ancestor up to and including the root of the role tree. A slug with
// no stored role contributes whatever grants it has and ends the walk;
// repeated slugs end it too, so a miswired parent chain cannot loop.
func (r *PermissionResolver) Resolve(ctx context.Context, s Store, roleSlug string) (map[string]struct{}, error) {
	granted := make(map[string]struct{})
	seen := make(map[string]struct{})

	slug := roleSlug
	for {
		if _, dup := seen[slug]; dup {
			break
		}
		seen[slug] = struct{}{}

		ids, err := s.Permissions().ListObjectIDs(ctx, slug)
		if err != nil {
			return nil, oops.Code("RESOLVE_FAILED").
				With("operation", "list grants").
				With("role", slug).
				Wrap(err)
		}
		for _, id := range ids {
			granted[id] = struct{}{}
		}

		role, err := s.Roles().Get(ctx, slug)
		if errors.Is(err, ErrNotFound) {
			break
		}
		if err != nil {
			return nil, oops.Code("RESOLVE_FAILED").
				With("operation", "get role").
				With("role", slug).
				Wrap(err)
		}
		if role.ParentSlug == nil {
			break
		}
		slug = *role.ParentSlug
	}
	return granted, nil
}

// Authorize reports whether the caller identified by sid may access
// objectID. An empty sid resolves against the anonymous role;
// otherwise the session is validated first and the id it returns, which
// may have been rotated, comes back as the sid the caller should keep.
// Denial is a false result, not an error. Session cleanup performed by
// the guard commits even when validation fails.
func (r *PermissionResolver) Authorize(ctx context.Context, sid, objectID string) (bool, string, error) {
	var (
		allowed  bool
		validSID string
		domErr   error
	)
	err := r.store.InTx(ctx, func(tx Store) error {
		roleSlug := RoleAnonymous
		if sid != "" {
			fresh, accountID, err := r.guard.Validate(ctx, tx, sid)
			if err != nil {
				if oopsErr, ok := oops.AsOops(err); ok {
					switch oopsErr.Code() {
					case CodeSessionExpired, CodeSessionInvalid:
						// Commit so the guard's deletions stick.
						domErr = err
						return nil
					}
				}
				return err
			}
			account, err := tx.Accounts().GetByID(ctx, accountID)
			if err != nil {
				return oops.Code("AUTHORIZE_FAILED").
					With("operation", "get session account").
					Wrap(err)
			}
			validSID = fresh
			roleSlug = account.RoleSlug
		}

		granted, err := r.Resolve(ctx, tx, roleSlug)
		if err != nil {
			return err
		}
		_, allowed = granted[objectID]
		return nil
	})
	if err != nil {
		return false, "", err
	}
	if domErr != nil {
		return false, "", domErr
	}
	return allowed, validSID, nil
}
