// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	cryptotls "crypto/tls"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse/gatehouse/internal/control"
	"github.com/gatehouse/gatehouse/internal/httpapi"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolFactory opens the database connection pool.
	// Default: store.Connect
	PoolFactory func(ctx context.Context, opts store.ConnectOptions) (Pool, error)

	// MigratorFactory creates a schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (SchemaMigrator, error)

	// TLSEnsurer generates or loads the server TLS configuration.
	// Default: tls.EnsureServerTLS
	TLSEnsurer func(certsDir string, hosts ...string) (*cryptotls.Config, error)

	// ControlServerFactory creates the control socket server.
	// Default: control.NewServer
	ControlServerFactory func(version string, shutdownFunc control.ShutdownFunc) ControlServer

	// ObservabilityServerFactory creates the metrics/health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// APIServerFactory creates the HTTP API server.
	// Default: httpapi.NewServer
	APIServerFactory func(addr string, dispatcher httpapi.Dispatcher, opts httpapi.Options) APIServer

	// CertsDirGetter returns the certificates directory path.
	// Default: xdg.CertsDir
	CertsDirGetter func() (string, error)
}

// Pool wraps the pgxpool.Pool methods the serve command uses.
type Pool interface {
	Ping(ctx context.Context) error
	Close()
}

// SchemaMigrator wraps the methods used from store.Migrator.
type SchemaMigrator interface {
	Up() error
	PendingMigrations() ([]uint, error)
	Close() error
}

// ControlServer wraps the methods used from control.Server.
type ControlServer interface {
	Start() error
	Stop(ctx context.Context) error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// APIServer wraps the methods used from httpapi.Server.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// poolAdapter narrows *pgxpool.Pool to the Pool interface while keeping
// the concrete pool reachable for the repository layer.
type poolAdapter struct {
	*pgxpool.Pool
}
