// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// RoleRepository implements auth.RoleRepository using PostgreSQL.
type RoleRepository struct {
	db querier
}

// NewRoleRepository creates a new RoleRepository.
func NewRoleRepository(db querier) *RoleRepository {
	return &RoleRepository{db: db}
}

// Get retrieves a role by slug.
func (r *RoleRepository) Get(ctx context.Context, slug string) (*auth.Role, error) {
	var role auth.Role
	err := r.db.QueryRow(ctx, `
		SELECT slug, parent_slug FROM roles WHERE slug = $1
	`, slug).Scan(&role.Slug, &role.ParentSlug)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ROLE_NOT_FOUND").
			With("slug", slug).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ROLE_GET_FAILED").
			With("operation", "get role").
			With("slug", slug).
			Wrap(err)
	}
	return &role, nil
}

// Upsert writes a role, replacing the parent link of an existing one.
func (r *RoleRepository) Upsert(ctx context.Context, role *auth.Role) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO roles (slug, parent_slug)
		VALUES ($1, $2)
		ON CONFLICT (slug) DO UPDATE SET parent_slug = EXCLUDED.parent_slug
	`, role.Slug, role.ParentSlug)
	if err != nil {
		return oops.Code("ROLE_UPSERT_FAILED").
			With("operation", "upsert role").
			With("slug", role.Slug).
			Wrap(err)
	}
	return nil
}

// Compile-time interface check.
var _ auth.RoleRepository = (*RoleRepository)(nil)
