// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import "context"

// Role is a node in the role tree. ParentSlug is nil for the root.
// The tree is acyclic by construction: seed validation rejects cycles
// before rows exist, and the resolver additionally refuses to revisit a
// slug within one walk.
type Role struct {
	Slug       string
	ParentSlug *string
}

// Permission grants one resource object id to one role. Holders of the
// role and of every descendant role are authorized for the object.
type Permission struct {
	RoleSlug string
	ObjectID string
}

// RoleRepository manages role persistence.
type RoleRepository interface {
	// Get retrieves a role by slug. Returns ErrNotFound if none exists.
	Get(ctx context.Context, slug string) (*Role, error)

	// Upsert writes a role, replacing the parent link of an existing
	// one.
	Upsert(ctx context.Context, role *Role) error
}

// PermissionRepository manages permission grants.
type PermissionRepository interface {
	// ListObjectIDs returns the object ids granted directly to a role,
	// excluding ancestor grants.
	ListObjectIDs(ctx context.Context, roleSlug string) ([]string, error)

	// Grant records a permission. Granting an existing pair is a no-op.
	Grant(ctx context.Context, perm *Permission) error
}
