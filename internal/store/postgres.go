// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package store bootstraps the PostgreSQL connection pool and manages
// schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectOptions configures the pool bootstrap.
type ConnectOptions struct {
	// URL is the PostgreSQL connection string (postgres:// scheme).
	URL string

	// ConnectTimeout bounds the total time spent retrying the initial
	// ping, including backoff. Zero means DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// MinServerVersion rejects servers older than this version at
	// connect time. Empty disables the check.
	MinServerVersion string

	Logger *slog.Logger
}

// DefaultConnectTimeout bounds the initial connection retry loop.
const DefaultConnectTimeout = 30 * time.Second

// connectBaseBackoff is the first retry delay; subsequent delays double.
const connectBaseBackoff = 250 * time.Millisecond

// Connect creates a pgx pool and verifies the server is reachable,
// retrying with exponential backoff until ConnectTimeout elapses. When
// MinServerVersion is set, servers below it are rejected.
func Connect(ctx context.Context, opts ConnectOptions) (*pgxpool.Pool, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_POOL_FAILED").With("operation", "create pool").Wrap(err)
	}

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	backoff := retry.WithMaxDuration(timeout, retry.NewExponential(connectBaseBackoff))
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := pool.Ping(ctx); err != nil {
			logger.Warn("database not reachable, retrying",
				"attempt", attempt,
				"error", err,
			)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}

	if opts.MinServerVersion != "" {
		version, err := serverVersion(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if err := checkMinimumVersion(version, opts.MinServerVersion); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Debug("database server version accepted",
			"version", version,
			"minimum", opts.MinServerVersion,
		)
	}

	return pool, nil
}

// serverVersion queries the server's version string, e.g. "16.3".
func serverVersion(ctx context.Context, pool *pgxpool.Pool) (string, error) {
	var version string
	if err := pool.QueryRow(ctx, `SHOW server_version`).Scan(&version); err != nil {
		return "", oops.Code("DB_VERSION_FAILED").With("operation", "query server version").Wrap(err)
	}
	return version, nil
}

// checkMinimumVersion compares a reported server version against the
// configured minimum. PostgreSQL reports versions like "16.3" or
// "16.3 (Debian 16.3-1.pgdg120+1)"; everything after the first space is
// ignored.
func checkMinimumVersion(current, minimum string) error {
	for i := 0; i < len(current); i++ {
		if current[i] == ' ' {
			current = current[:i]
			break
		}
	}

	cur, err := semver.NewVersion(current)
	if err != nil {
		return oops.Code("DB_VERSION_FAILED").
			With("version", current).
			Wrapf(err, "unparseable server version")
	}
	floor, err := semver.NewVersion(minimum)
	if err != nil {
		return oops.Code("CONFIG_INVALID").
			With("min_server_version", minimum).
			Wrapf(err, "unparseable minimum server version")
	}

	if cur.LessThan(floor) {
		return oops.Code("DB_VERSION_UNSUPPORTED").
			With("version", current).
			With("minimum", minimum).
			Errorf("database server version %s is below the required minimum %s", current, minimum)
	}
	return nil
}
