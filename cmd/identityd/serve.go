// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/identityd/identityd/internal/auth"
	"github.com/identityd/identityd/internal/config"
	"github.com/identityd/identityd/internal/logging"
	"github.com/identityd/identityd/internal/observability"
	"github.com/identityd/identityd/internal/web"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// StoreOpener opens the user store.
	// Default: openStore
	StoreOpener func(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*userStore, error)

	// LogOutput receives log records.
	// Default: os.Stderr
	LogOutput io.Writer

	// Ready is called once every server is listening.
	// Default: no-op
	Ready func(apiAddr, metricsAddr string)
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the auth API",
		Long: `Start the HTTP auth API and, unless metrics.addr is empty, the
metrics and health endpoints. Stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, nil)
		},
	}
}

// runServeWithDeps runs the server until ctx ends, a signal arrives, or a
// server fails. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.StoreOpener == nil {
		deps.StoreOpener = openStore
	}
	if deps.LogOutput == nil {
		deps.LogOutput = os.Stderr
	}
	if deps.Ready == nil {
		deps.Ready = func(string, string) {}
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.SetDefault(serviceName, version, cfg.Log.Format, level, deps.LogOutput)

	logger.Info("starting identityd",
		"environment", cfg.Environment,
		"store", cfg.Store.Driver,
		"http_addr", cfg.HTTP.Addr)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	users, err := deps.StoreOpener(ctx, cfg.Store, logger)
	if err != nil {
		return oops.With("operation", "open user store").Wrap(err)
	}
	defer func() {
		if closeErr := users.Close(); closeErr != nil {
			logger.Warn("error closing user store", "error", closeErr)
		}
	}()

	var (
		obsServer *observability.Server
		opts      []auth.Option
		webCfg    = web.Config{Logger: logger}
	)
	if cfg.Metrics.Addr != "" {
		obsServer = observability.NewServer(cfg.Metrics.Addr, users.Ping, logger)
		opts = append(opts, auth.WithRecorder(obsServer.Metrics()))
		webCfg.Observer = obsServer.Metrics()
	}

	svc, tokens, err := newService(cfg, users.users, logger, opts...)
	if err != nil {
		return err
	}

	webCfg.Service = svc
	webCfg.Credentials = svc
	webCfg.Tokens = svc
	webCfg.Cookie = web.CookieConfig{
		Secure: cfg.IsProduction(),
		MaxAge: tokens.RefreshTTL(),
	}
	handler, err := web.NewHandler(webCfg)
	if err != nil {
		return err
	}

	apiServer := web.NewServer(cfg.HTTP.Addr, handler, logger)
	apiErrCh, err := apiServer.Start()
	if err != nil {
		return err
	}
	go monitorServerErrors(ctx, cancel, apiErrCh, "api", logger)

	metricsAddr := ""
	if obsServer != nil {
		obsErrCh, err := obsServer.Start()
		if err != nil {
			stopServer(cfg, apiServer, "api", logger)
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability", logger)
		metricsAddr = obsServer.Addr()
	}

	logger.Info("identityd ready", "http_addr", apiServer.Addr(), "metrics_addr", metricsAddr)
	deps.Ready(apiServer.Addr(), metricsAddr)

	<-ctx.Done()
	logger.Info("shutting down")

	stopServer(cfg, apiServer, "api", logger)
	if obsServer != nil {
		stopServer(cfg, obsServer, "observability", logger)
	}

	logger.Info("shutdown complete")

	var failure *serverFailure
	if errors.As(context.Cause(ctx), &failure) {
		return failure
	}
	return nil
}

// newService builds the auth service and its token issuer from cfg.
func newService(cfg *config.Config, users auth.UserRepository, logger *slog.Logger, opts ...auth.Option) (*auth.Service, *auth.TokenIssuer, error) {
	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
	})
	if err != nil {
		return nil, nil, err
	}
	svc, err := auth.NewServiceWithLogger(users, auth.NewBcryptHasher(), tokens, logger, opts...)
	if err != nil {
		return nil, nil, err
	}
	return svc, tokens, nil
}

// serverFailure is the cancellation cause when a server stops serving.
type serverFailure struct {
	server string
	err    error
}

func (f *serverFailure) Error() string {
	return f.server + " server failed: " + f.err.Error()
}

func (f *serverFailure) Unwrap() error {
	return f.err
}

// stoppable is a server that drains on Stop.
type stoppable interface {
	Stop(ctx context.Context) error
}

func stopServer(cfg *config.Config, s stoppable, name string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		logger.Warn("error stopping server", "server", name, "error", err)
	}
}

// monitorServerErrors cancels the process context when a server fails.
// It exits when either an error is received, the channel is closed, or the
// context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelCauseFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err)
			cancel(&serverFailure{server: serverName, err: err})
		}
	case <-ctx.Done():
	}
}
