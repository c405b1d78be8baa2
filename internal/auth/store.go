// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import "context"

// Store bundles the repositories behind one transactional boundary.
// Each flow performs all of its reads and writes through the Store view
// handed to the InTx callback; an error return rolls the transaction
// back, nil commits it.
type Store interface {
	Accounts() AccountRepository
	Activations() ActivationRepository
	Sessions() SessionRepository
	Roles() RoleRepository
	Permissions() PermissionRepository

	// InTx runs fn inside a transaction and passes it a Store view bound
	// to that transaction. Calling InTx on a view that is already
	// transaction-bound joins the ambient transaction rather than
	// opening a nested one.
	InTx(ctx context.Context, fn func(Store) error) error
}
