// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	cryptotls "crypto/tls"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/auth"
	authpg "github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/control"
	"github.com/gatehouse/gatehouse/internal/dispatch"
	"github.com/gatehouse/gatehouse/internal/httpapi"
	"github.com/gatehouse/gatehouse/internal/logging"
	"github.com/gatehouse/gatehouse/internal/notify"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/store"
	gtls "github.com/gatehouse/gatehouse/internal/tls"
	"github.com/gatehouse/gatehouse/internal/xdg"
)

// shutdownTimeout bounds graceful server stops.
const shutdownTimeout = 5 * time.Second

// serveConfig holds the flags specific to the serve command.
type serveConfig struct {
	autoMigrate bool
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cfg := &serveConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gatehouse server",
		Long: `Start the HTTP API, observability server, and control socket.
Runs until SIGINT/SIGTERM or a shutdown request on the control socket.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, cfg, nil)
		},
	}

	cmd.Flags().BoolVar(&cfg.autoMigrate, "auto-migrate", false, "apply pending schema migrations before serving")

	// Dotted flags overlay the matching config file keys.
	cmd.Flags().String("server.addr", "", "HTTP API listen address")
	cmd.Flags().Bool("server.tls.enabled", false, "serve the API over TLS")
	cmd.Flags().String("database.url", "", "PostgreSQL connection URL")
	cmd.Flags().String("metrics.addr", "", "metrics/health listen address")
	cmd.Flags().String("log.format", "", "log format (json or text)")
	cmd.Flags().String("log.level", "", "log level (debug, info, warn, error)")

	return cmd
}

// runServeWithDeps starts the server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, serveCfg *serveConfig, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}

	// Set up default factories
	if deps.PoolFactory == nil {
		deps.PoolFactory = func(ctx context.Context, opts store.ConnectOptions) (Pool, error) {
			pool, err := store.Connect(ctx, opts)
			if err != nil {
				return nil, err
			}
			return &poolAdapter{pool}, nil
		}
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(databaseURL string) (SchemaMigrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if deps.TLSEnsurer == nil {
		deps.TLSEnsurer = gtls.EnsureServerTLS
	}
	if deps.ControlServerFactory == nil {
		deps.ControlServerFactory = func(version string, shutdownFunc control.ShutdownFunc) ControlServer {
			return control.NewServer(version, shutdownFunc)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if deps.APIServerFactory == nil {
		deps.APIServerFactory = func(addr string, dispatcher httpapi.Dispatcher, opts httpapi.Options) APIServer {
			return httpapi.NewServer(addr, dispatcher, opts)
		}
	}
	if deps.CertsDirGetter == nil {
		deps.CertsDirGetter = xdg.CertsDir
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url is required")
	}

	if err := logging.SetDefault("gatehouse", version, cfg.Log.Format, cfg.Log.Level); err != nil {
		return err
	}

	slog.Info("starting gatehouse",
		"addr", cfg.Server.Addr,
		"metrics_addr", cfg.Metrics.Addr,
		"tls", cfg.Server.TLS.Enabled,
	)

	if serveCfg.autoMigrate {
		if err := autoMigrate(deps, cfg.Database.URL); err != nil {
			return err
		}
	}

	connectCtx, connectCancel := context.WithTimeout(ctx, cfg.Database.ConnectTimeout)
	pool, err := deps.PoolFactory(connectCtx, store.ConnectOptions{
		URL:              cfg.Database.URL,
		ConnectTimeout:   cfg.Database.ConnectTimeout,
		MinServerVersion: cfg.Database.MinServerVersion,
		Logger:           slog.Default(),
	})
	connectCancel()
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	slog.Info("connected to database")

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var tlsConfig *cryptotls.Config
	if cfg.Server.TLS.Enabled {
		certsDir := cfg.Server.TLS.Dir
		if certsDir == "" {
			certsDir, err = deps.CertsDirGetter()
			if err != nil {
				return oops.Code("TLS_SETUP_FAILED").With("operation", "resolve certs directory").Wrap(err)
			}
		}
		tlsConfig, err = deps.TLSEnsurer(certsDir, "localhost")
		if err != nil {
			return oops.Code("TLS_SETUP_FAILED").With("certs_dir", certsDir).Wrap(err)
		}
		slog.Info("TLS certificates ready", "certs_dir", certsDir)
	}

	// Control socket (always enabled)
	controlServer := deps.ControlServerFactory(version, func() { cancel() })
	if err := controlServer.Start(); err != nil {
		return oops.Code("CONTROL_START_FAILED").Wrap(err)
	}
	defer stopServer(controlServer.Stop, "control")

	// Observability server: ready once the pool answers pings
	obsServer := deps.ObservabilityServerFactory(cfg.Metrics.Addr, func() bool {
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer pingCancel()
		return pool.Ping(pingCtx) == nil
	})

	// Domain and HTTP metrics register on the observability registry
	// when the real server is in play.
	var dispMetrics *dispatch.Metrics
	var apiMetrics *httpapi.Metrics
	if real, ok := obsServer.(*observability.Server); ok {
		dispMetrics = dispatch.NewMetrics(real.Registry())
		apiMetrics = httpapi.NewMetrics(real.Registry())
	}

	dispatcher, err := buildDispatcher(pool, cfg, dispMetrics)
	if err != nil {
		return err
	}

	obsErrCh, err := obsServer.Start()
	if err != nil {
		return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
	}
	defer stopServer(obsServer.Stop, "observability")
	go monitorServerErrors(ctx, cancel, obsErrCh, "observability")

	// HTTP API server
	apiServer := deps.APIServerFactory(cfg.Server.Addr, dispatcher, httpapi.Options{
		TLSConfig: tlsConfig,
		Metrics:   apiMetrics,
		Logger:    slog.Default(),
	})
	apiErrCh, err := apiServer.Start()
	if err != nil {
		return oops.Code("API_START_FAILED").Wrap(err)
	}
	defer stopServer(apiServer.Stop, "api")
	go monitorServerErrors(ctx, cancel, apiErrCh, "api")

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Gatehouse started")
	slog.Info("gatehouse ready",
		"api_addr", apiServer.Addr(),
		"metrics_addr", obsServer.Addr(),
	)

	// Wait for shutdown signal or server failure
	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	slog.Info("shutting down...")
	return nil
}

// buildDispatcher wires the auth flows over the concrete pool. A mock
// pool (tests) yields a nil dispatcher; the injected API server ignores
// it.
func buildDispatcher(pool Pool, cfg *config.Config, metrics *dispatch.Metrics) (*dispatch.Dispatcher, error) {
	adapter, ok := pool.(*poolAdapter)
	if !ok {
		return nil, nil
	}

	notifier, err := notify.FromConfig(cfg.Notify, slog.Default())
	if err != nil {
		return nil, err
	}

	authStore := authpg.NewStore(adapter.Pool)
	authCfg := cfg.Auth.AuthConfig()
	tokens := auth.NewRandomTokenGenerator()
	hasher := auth.NewArgon2idHasher()
	guard := auth.NewSessionGuard(tokens, authCfg)

	return dispatch.NewDispatcher(dispatch.Deps{
		Registrar:  auth.NewRegistrationFlowWithLogger(authStore, tokens, hasher, notifier, authCfg, slog.Default()),
		Activator:  auth.NewActivationFlow(authStore, authCfg),
		Login:      auth.NewLoginFlow(authStore, tokens, hasher, authCfg),
		Authorizer: auth.NewPermissionResolver(authStore, guard),
		Logout:     auth.NewLogoutFlow(authStore),
		Metrics:    metrics,
		Logger:     slog.Default(),
	}), nil
}

// autoMigrate applies pending migrations before the server starts.
func autoMigrate(deps *ServeDeps, databaseURL string) error {
	migrator, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("error closing migrator", "error", closeErr)
		}
	}()

	pending, err := migrator.PendingMigrations()
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "list pending migrations").Wrap(err)
	}
	if len(pending) == 0 {
		slog.Info("schema up to date")
		return nil
	}

	slog.Info("applying migrations", "pending", len(pending))
	if err := migrator.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	slog.Info("migrations applied", "count", len(pending))
	return nil
}

// stopServer stops a server with a bounded timeout, logging failures.
func stopServer(stop func(context.Context) error, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		slog.Warn("error stopping server", "server", name, "error", err)
	}
}

// monitorServerErrors cancels the process context when a background
// server reports an error. It exits when the channel closes or the
// context ends.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
