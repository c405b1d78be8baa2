// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"time"

	"github.com/samber/oops"
)

// Config holds the time windows and counters governing the auth state
// machine. A single value is constructed at process start and passed to
// every flow; there is no package-level state.
type Config struct {
	// ActivationTTL is how long an activation token stays redeemable.
	ActivationTTL time.Duration

	// RetryWindow is the span within which consecutive failed logins
	// count toward blocking.
	RetryWindow time.Duration

	// MaxAttempts is the failed-login count at which an account is
	// blocked.
	MaxAttempts int

	// BlockDuration is how long a blocked account refuses logins before
	// auto-unblocking on the next attempt.
	BlockDuration time.Duration

	// SessionTTL is the session lifetime measured from the last
	// issue/refresh timestamp.
	SessionTTL time.Duration

	// RefreshThreshold is the remaining lifetime below which a validated
	// session is rotated to a fresh id.
	RefreshThreshold time.Duration
}

// DefaultConfig returns the stock window configuration.
func DefaultConfig() Config {
	return Config{
		ActivationTTL:    24 * time.Hour,
		RetryWindow:      5 * time.Second,
		MaxAttempts:      5,
		BlockDuration:    15 * time.Minute,
		SessionTTL:       2 * time.Hour,
		RefreshThreshold: 5 * time.Minute,
	}
}

// Validate checks that the configured windows can produce a working
// state machine.
func (c Config) Validate() error {
	if c.ActivationTTL <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("activation TTL must be positive, got %s", c.ActivationTTL)
	}
	if c.RetryWindow <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("retry window must be positive, got %s", c.RetryWindow)
	}
	if c.MaxAttempts < 1 {
		return oops.Code("CONFIG_INVALID").Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.BlockDuration <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("block duration must be positive, got %s", c.BlockDuration)
	}
	if c.SessionTTL <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("session TTL must be positive, got %s", c.SessionTTL)
	}
	if c.RefreshThreshold <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("refresh threshold must be positive, got %s", c.RefreshThreshold)
	}
	if c.RefreshThreshold >= c.SessionTTL {
		return oops.Code("CONFIG_INVALID").
			With("refresh_threshold", c.RefreshThreshold).
			With("session_ttl", c.SessionTTL).
			Errorf("refresh threshold must be below the session TTL")
	}
	return nil
}
