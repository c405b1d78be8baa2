// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package postgres

import (
	"context"

	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// PermissionRepository implements auth.PermissionRepository using PostgreSQL.
type PermissionRepository struct {
	db querier
}

// NewPermissionRepository creates a new PermissionRepository.
func NewPermissionRepository(db querier) *PermissionRepository {
	return &PermissionRepository{db: db}
}

// ListObjectIDs returns the object ids granted directly to a role.
func (r *PermissionRepository) ListObjectIDs(ctx context.Context, roleSlug string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT object_id FROM permissions WHERE role_slug = $1 ORDER BY object_id
	`, roleSlug)
	if err != nil {
		return nil, oops.Code("PERMISSION_LIST_FAILED").
			With("operation", "list permissions").
			With("role_slug", roleSlug).
			Wrap(err)
	}
	defer rows.Close()

	var objectIDs []string
	for rows.Next() {
		var objectID string
		if err := rows.Scan(&objectID); err != nil {
			return nil, oops.Code("PERMISSION_LIST_FAILED").
				With("operation", "scan permission row").
				With("role_slug", roleSlug).
				Wrap(err)
		}
		objectIDs = append(objectIDs, objectID)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("PERMISSION_LIST_FAILED").
			With("operation", "iterate permission rows").
			With("role_slug", roleSlug).
			Wrap(err)
	}
	return objectIDs, nil
}

// Grant records a permission. Granting an existing pair is a no-op.
func (r *PermissionRepository) Grant(ctx context.Context, perm *auth.Permission) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO permissions (role_slug, object_id)
		VALUES ($1, $2)
		ON CONFLICT (role_slug, object_id) DO NOTHING
	`, perm.RoleSlug, perm.ObjectID)
	if err != nil {
		return oops.Code("PERMISSION_GRANT_FAILED").
			With("operation", "grant permission").
			With("role_slug", perm.RoleSlug).
			With("object_id", perm.ObjectID).
			Wrap(err)
	}
	return nil
}

// Compile-time interface check.
var _ auth.PermissionRepository = (*PermissionRepository)(nil)
