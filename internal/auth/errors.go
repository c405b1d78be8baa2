// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write loses to a store uniqueness
// constraint, such as two registrations racing on one email.
var ErrConflict = errors.New("conflict")

// Domain error codes attached via oops. The dispatcher maps these onto
// stable response messages; anything without a listed code surfaces as a
// generic internal failure.
const (
	CodeDuplicateRegistration = "AUTH_DUPLICATE_REGISTRATION"
	CodePendingActivation     = "AUTH_PENDING_ACTIVATION"
	CodeActivationInvalid     = "AUTH_ACTIVATION_INVALID"
	CodeActivationExpired     = "AUTH_ACTIVATION_EXPIRED"
	CodeNotRegistered         = "AUTH_NOT_REGISTERED"
	CodeNotActivated          = "AUTH_NOT_ACTIVATED"
	CodeTemporarilyBlocked    = "AUTH_TEMPORARILY_BLOCKED"
	CodeSessionExpired        = "AUTH_SESSION_EXPIRED"
	CodeSessionInvalid        = "AUTH_SESSION_INVALID"
	CodeNotAuthenticated      = "AUTH_NOT_AUTHENTICATED"
)
