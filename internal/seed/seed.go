// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package seed loads, validates, and applies role/grant seed files.
package seed

import (
	"context"
	_ "embed"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// defaultSeed is the seed applied when no file is given: the anonymous
// root and the standard registration role, with no grants.
//
//go:embed seed.yaml
var defaultSeed []byte

// File is a parsed seed file.
type File struct {
	Roles  []Role  `yaml:"roles" json:"roles" jsonschema:"required"`
	Grants []Grant `yaml:"grants,omitempty" json:"grants,omitempty"`
}

// Role declares one node of the role tree. Parent is empty for the
// root.
type Role struct {
	Slug   string `yaml:"slug" json:"slug" jsonschema:"required,minLength=1"`
	Parent string `yaml:"parent,omitempty" json:"parent,omitempty"`
}

// Grant assigns object ids to a role declared in the same file.
type Grant struct {
	Role    string   `yaml:"role" json:"role" jsonschema:"required,minLength=1"`
	Objects []string `yaml:"objects" json:"objects" jsonschema:"required"`
}

// Default returns the embedded default seed file.
func Default() []byte {
	return defaultSeed
}

// Parse validates data against the seed schema, decodes it, and runs
// the semantic checks.
func Parse(data []byte) (*File, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, oops.Code("SEED_INVALID").With("operation", "decode seed file").Wrap(err)
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate runs the semantic checks the schema cannot express:
// duplicate slugs, dangling parent links, cycles, missing required
// roles, and grants against undeclared roles.
func (f *File) Validate() error {
	if len(f.Roles) == 0 {
		return oops.Code("SEED_INVALID").Errorf("seed file declares no roles")
	}

	parents := make(map[string]string, len(f.Roles))
	for _, role := range f.Roles {
		if _, dup := parents[role.Slug]; dup {
			return oops.Code("SEED_INVALID").
				With("role", role.Slug).
				Errorf("role %q declared twice", role.Slug)
		}
		parents[role.Slug] = role.Parent
	}

	for slug, parent := range parents {
		if parent == "" {
			continue
		}
		if _, ok := parents[parent]; !ok {
			return oops.Code("SEED_INVALID").
				With("role", slug).
				With("parent", parent).
				Errorf("role %q links to undeclared parent %q", slug, parent)
		}
	}

	if err := f.checkCycles(parents); err != nil {
		return err
	}

	if parent, ok := parents[auth.RoleAnonymous]; !ok {
		return oops.Code("SEED_INVALID").
			Errorf("seed file must declare the %q root role", auth.RoleAnonymous)
	} else if parent != "" {
		return oops.Code("SEED_INVALID").
			With("parent", parent).
			Errorf("role %q must be a root, not a child of %q", auth.RoleAnonymous, parent)
	}
	if _, ok := parents[auth.RoleStandard]; !ok {
		return oops.Code("SEED_INVALID").
			Errorf("seed file must declare the %q registration role", auth.RoleStandard)
	}

	for _, grant := range f.Grants {
		if _, ok := parents[grant.Role]; !ok {
			return oops.Code("SEED_INVALID").
				With("role", grant.Role).
				Errorf("grant references undeclared role %q", grant.Role)
		}
		if len(grant.Objects) == 0 {
			return oops.Code("SEED_INVALID").
				With("role", grant.Role).
				Errorf("grant for role %q lists no objects", grant.Role)
		}
	}

	return nil
}

// checkCycles walks each role's parent chain. A chain longer than the
// role count must have revisited a slug.
func (f *File) checkCycles(parents map[string]string) error {
	for start := range parents {
		slug := start
		for range len(parents) {
			parent := parents[slug]
			if parent == "" {
				break
			}
			if parent == start {
				return oops.Code("SEED_INVALID").
					With("role", start).
					Errorf("role %q participates in a parent cycle", start)
			}
			slug = parent
		}
	}
	return nil
}

// Apply writes the seed's roles and grants inside one transaction.
// Re-applying the same file is a no-op: roles upsert, grants ignore
// existing pairs.
func Apply(ctx context.Context, store auth.Store, f *File) error {
	return store.InTx(ctx, func(tx auth.Store) error {
		for _, role := range f.Roles {
			r := &auth.Role{Slug: role.Slug}
			if role.Parent != "" {
				parent := role.Parent
				r.ParentSlug = &parent
			}
			if err := tx.Roles().Upsert(ctx, r); err != nil {
				return oops.Code("SEED_APPLY_FAILED").
					With("role", role.Slug).
					Wrap(err)
			}
		}

		for _, grant := range f.Grants {
			for _, objectID := range grant.Objects {
				perm := &auth.Permission{RoleSlug: grant.Role, ObjectID: objectID}
				if err := tx.Permissions().Grant(ctx, perm); err != nil {
					return oops.Code("SEED_APPLY_FAILED").
						With("role", grant.Role).
						With("object_id", objectID).
						Wrap(err)
				}
			}
		}

		return nil
	})
}
