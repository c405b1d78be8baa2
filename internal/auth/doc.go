// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package auth implements the credential and access-control core of
// gatehouse.
//
// # Domain Types
//
// Domain types (Account, Activation, Session, Role, Permission) map
// one-to-one onto store records. Accounts should be created through
// NewAccount, which assigns the identifier and initial status; direct
// struct initialization bypasses that and may create invalid state.
//
// # Flows
//
// Flow types coordinate domain operations, one per request kind:
//   - RegistrationFlow   - account creation and activation issuance
//   - ActivationFlow     - activation token consumption
//   - LoginFlow          - credential check, throttling, session issuance
//   - LogoutFlow         - session termination
//   - PermissionResolver - session validation plus role-permission walk
//
// SessionGuard is shared infrastructure invoked by PermissionResolver
// inside the authorize transaction. Every flow wraps its store mutations
// in a single Store.InTx scope; a returned error rolls the transaction
// back.
package auth
