// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth_test

import (
	"context"
	"maps"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// memStore is a map-backed auth.Store for exercising flows without a
// database. Gets return copies, Create enforces email uniqueness with
// auth.ErrConflict, and refused sessions (empty token hash) are never
// matched by token lookups, mirroring the production store. InTx
// snapshots the maps and restores them when fn fails, so rollback
// behavior can be asserted. Individual operations can be made to fail
// via fail(op, err).
type memStore struct {
	accounts    map[ulid.ULID]auth.Account
	activations map[ulid.ULID]auth.Activation
	sessions    map[ulid.ULID]auth.Session
	roles       map[string]auth.Role
	grants      map[string][]string
	failures    map[string]error
	inTx        bool
}

func newMemStore() *memStore {
	return &memStore{
		accounts:    make(map[ulid.ULID]auth.Account),
		activations: make(map[ulid.ULID]auth.Activation),
		sessions:    make(map[ulid.ULID]auth.Session),
		roles:       make(map[string]auth.Role),
		grants:      make(map[string][]string),
		failures:    make(map[string]error),
	}
}

func (s *memStore) fail(op string, err error) { s.failures[op] = err }

type memSnapshot struct {
	accounts    map[ulid.ULID]auth.Account
	activations map[ulid.ULID]auth.Activation
	sessions    map[ulid.ULID]auth.Session
	roles       map[string]auth.Role
	grants      map[string][]string
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		accounts:    maps.Clone(s.accounts),
		activations: maps.Clone(s.activations),
		sessions:    maps.Clone(s.sessions),
		roles:       maps.Clone(s.roles),
		grants:      make(map[string][]string, len(s.grants)),
	}
	for slug, ids := range s.grants {
		snap.grants[slug] = append([]string(nil), ids...)
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.accounts = snap.accounts
	s.activations = snap.activations
	s.sessions = snap.sessions
	s.roles = snap.roles
	s.grants = snap.grants
}

func (s *memStore) Accounts() auth.AccountRepository       { return memAccounts{s} }
func (s *memStore) Activations() auth.ActivationRepository { return memActivations{s} }
func (s *memStore) Sessions() auth.SessionRepository       { return memSessions{s} }
func (s *memStore) Roles() auth.RoleRepository             { return memRoles{s} }
func (s *memStore) Permissions() auth.PermissionRepository { return memPermissions{s} }

func (s *memStore) InTx(_ context.Context, fn func(auth.Store) error) error {
	if err := s.failures["tx.begin"]; err != nil {
		return err
	}
	if s.inTx {
		return fn(s)
	}
	snap := s.snapshot()
	s.inTx = true
	err := fn(s)
	s.inTx = false
	if err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memAccounts struct{ s *memStore }

func (r memAccounts) Create(_ context.Context, account *auth.Account) error {
	if err := r.s.failures["accounts.create"]; err != nil {
		return err
	}
	for _, a := range r.s.accounts {
		if a.Email == account.Email {
			return auth.ErrConflict
		}
	}
	r.s.accounts[account.ID] = *account
	return nil
}

func (r memAccounts) GetByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	if err := r.s.failures["accounts.getByID"]; err != nil {
		return nil, err
	}
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	out := a
	return &out, nil
}

func (r memAccounts) GetByEmail(_ context.Context, email string) (*auth.Account, error) {
	if err := r.s.failures["accounts.getByEmail"]; err != nil {
		return nil, err
	}
	for _, a := range r.s.accounts {
		if a.Email == email {
			out := a
			return &out, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r memAccounts) Update(_ context.Context, account *auth.Account) error {
	if err := r.s.failures["accounts.update"]; err != nil {
		return err
	}
	if _, ok := r.s.accounts[account.ID]; !ok {
		return auth.ErrNotFound
	}
	r.s.accounts[account.ID] = *account
	return nil
}

func (r memAccounts) Delete(_ context.Context, id ulid.ULID) error {
	if err := r.s.failures["accounts.delete"]; err != nil {
		return err
	}
	if _, ok := r.s.accounts[id]; !ok {
		return auth.ErrNotFound
	}
	delete(r.s.accounts, id)
	return nil
}

type memActivations struct{ s *memStore }

func (r memActivations) Upsert(_ context.Context, activation *auth.Activation) error {
	if err := r.s.failures["activations.upsert"]; err != nil {
		return err
	}
	r.s.activations[activation.AccountID] = *activation
	return nil
}

func (r memActivations) GetByAccount(_ context.Context, accountID ulid.ULID) (*auth.Activation, error) {
	if err := r.s.failures["activations.getByAccount"]; err != nil {
		return nil, err
	}
	a, ok := r.s.activations[accountID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	out := a
	return &out, nil
}

func (r memActivations) GetByTokenHash(_ context.Context, tokenHash string) (*auth.Activation, error) {
	if err := r.s.failures["activations.getByTokenHash"]; err != nil {
		return nil, err
	}
	for _, a := range r.s.activations {
		if a.TokenHash == tokenHash {
			out := a
			return &out, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r memActivations) Delete(_ context.Context, accountID ulid.ULID) error {
	if err := r.s.failures["activations.delete"]; err != nil {
		return err
	}
	if _, ok := r.s.activations[accountID]; !ok {
		return auth.ErrNotFound
	}
	delete(r.s.activations, accountID)
	return nil
}

type memSessions struct{ s *memStore }

func (r memSessions) Upsert(_ context.Context, session *auth.Session) error {
	if err := r.s.failures["sessions.upsert"]; err != nil {
		return err
	}
	r.s.sessions[session.AccountID] = *session
	return nil
}

func (r memSessions) GetByAccount(_ context.Context, accountID ulid.ULID) (*auth.Session, error) {
	if err := r.s.failures["sessions.getByAccount"]; err != nil {
		return nil, err
	}
	sess, ok := r.s.sessions[accountID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	out := sess
	return &out, nil
}

func (r memSessions) GetByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	if err := r.s.failures["sessions.getByTokenHash"]; err != nil {
		return nil, err
	}
	for _, sess := range r.s.sessions {
		if sess.TokenHash != "" && sess.TokenHash == tokenHash {
			out := sess
			return &out, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r memSessions) Delete(_ context.Context, accountID ulid.ULID) error {
	if err := r.s.failures["sessions.delete"]; err != nil {
		return err
	}
	if _, ok := r.s.sessions[accountID]; !ok {
		return auth.ErrNotFound
	}
	delete(r.s.sessions, accountID)
	return nil
}

type memRoles struct{ s *memStore }

func (r memRoles) Get(_ context.Context, slug string) (*auth.Role, error) {
	if err := r.s.failures["roles.get"]; err != nil {
		return nil, err
	}
	role, ok := r.s.roles[slug]
	if !ok {
		return nil, auth.ErrNotFound
	}
	out := role
	return &out, nil
}

func (r memRoles) Upsert(_ context.Context, role *auth.Role) error {
	if err := r.s.failures["roles.upsert"]; err != nil {
		return err
	}
	r.s.roles[role.Slug] = *role
	return nil
}

type memPermissions struct{ s *memStore }

func (r memPermissions) ListObjectIDs(_ context.Context, roleSlug string) ([]string, error) {
	if err := r.s.failures["perms.list"]; err != nil {
		return nil, err
	}
	return append([]string(nil), r.s.grants[roleSlug]...), nil
}

func (r memPermissions) Grant(_ context.Context, perm *auth.Permission) error {
	if err := r.s.failures["perms.grant"]; err != nil {
		return err
	}
	for _, id := range r.s.grants[perm.RoleSlug] {
		if id == perm.ObjectID {
			return nil
		}
	}
	r.s.grants[perm.RoleSlug] = append(r.s.grants[perm.RoleSlug], perm.ObjectID)
	return nil
}

func findAccount(t *testing.T, s *memStore, email string) auth.Account {
	t.Helper()
	for _, a := range s.accounts {
		if a.Email == email {
			return a
		}
	}
	t.Fatalf("no account stored for %s", email)
	return auth.Account{}
}

func seedAccount(s *memStore, email, passwordHash string, status auth.AccountStatus) auth.Account {
	now := time.Now().UTC()
	a := auth.Account{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		Status:       status,
		RoleSlug:     auth.RoleStandard,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.accounts[a.ID] = a
	return a
}

// fakeHasher avoids argon2 cost in flow tests; hashes are reversible
// on purpose so expectations can name them.
type fakeHasher struct{}

func (fakeHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", auth.ErrEmptyPassword
	}
	return "hashed:" + password, nil
}

func (fakeHasher) Verify(password, hash string) (bool, error) {
	return hash == "hashed:"+password, nil
}

// stubTokens hands out a fixed sequence of token values.
type stubTokens struct {
	tokens []string
	err    error
	next   int
}

func (g *stubTokens) Generate() (string, error) {
	if g.err != nil {
		return "", g.err
	}
	token := g.tokens[g.next%len(g.tokens)]
	g.next++
	return token, nil
}

// stubNotifier records deliveries instead of sending them.
type stubNotifier struct {
	err  error
	sent []sentNote
}

type sentNote struct {
	email string
	token string
}

func (n *stubNotifier) Send(_ context.Context, email, token string) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentNote{email: email, token: token})
	return nil
}
