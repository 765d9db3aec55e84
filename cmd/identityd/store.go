// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/samber/oops"

	"github.com/identityd/identityd/internal/auth"
	"github.com/identityd/identityd/internal/auth/bolt"
	"github.com/identityd/identityd/internal/auth/memory"
	"github.com/identityd/identityd/internal/auth/postgres"
	"github.com/identityd/identityd/internal/auth/sqlite"
	"github.com/identityd/identityd/internal/config"
	"github.com/identityd/identityd/internal/store"
	"github.com/identityd/identityd/internal/xdg"
)

// userStore is an opened user repository and its lifecycle hooks.
type userStore struct {
	users auth.UserRepository
	ping  func(ctx context.Context) error
	close func() error
}

// Ping reports whether the store answers.
func (s *userStore) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

// Close releases the store's connections.
func (s *userStore) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// openStore opens the configured user store, applying migrations first when
// cfg.AutoMigrate is set.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*userStore, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return openPostgresStore(ctx, cfg, logger)
	case config.DriverSQLite:
		return openSQLiteStore(ctx, cfg, logger)
	case config.DriverBolt:
		return openBoltStore(cfg, logger)
	case config.DriverMemory:
		logger.Warn("using in-memory user store, accounts are lost on restart")
		repo := memory.NewUserRepository()
		return &userStore{users: repo, ping: repo.Ping}, nil
	default:
		return nil, oops.Code("STORE_UNSUPPORTED").With("driver", cfg.Driver).Errorf("unknown store driver %q", cfg.Driver)
	}
}

func openPostgresStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*userStore, error) {
	pool, err := store.OpenPostgres(ctx, cfg.DatabaseURL, store.DefaultConnectOptions, logger)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := migrateUp(cfg, logger); err != nil {
			pool.Close()
			return nil, err
		}
	}

	repo := postgres.NewUserRepository(pool)
	logger.Info("connected to user store", "driver", cfg.Driver)
	return &userStore{
		users: repo,
		ping:  repo.Ping,
		close: func() error {
			pool.Close()
			return nil
		},
	}, nil
}

// openSQLiteStore migrates through the open handle so that ":memory:"
// databases work. The migrator then owns the handle.
func openSQLiteStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*userStore, error) {
	if err := ensureSQLiteDir(cfg.SQLitePath); err != nil {
		return nil, err
	}
	db, err := store.OpenSQLite(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	closeFn := db.Close

	if cfg.AutoMigrate {
		m, err := store.NewSQLiteMigrator(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		if err := m.Up(); err != nil {
			_ = m.Close()
			return nil, err
		}
		logMigrationVersion(m, logger)
		closeFn = m.Close
	}

	repo := sqlite.NewUserRepository(db)
	logger.Info("opened user store", "driver", cfg.Driver, "path", cfg.SQLitePath)
	return &userStore{users: repo, ping: repo.Ping, close: closeFn}, nil
}

// openBoltStore needs no migrations; Open creates the buckets.
func openBoltStore(cfg config.StoreConfig, logger *slog.Logger) (*userStore, error) {
	if err := xdg.EnsureDir(filepath.Dir(cfg.BoltPath)); err != nil {
		return nil, err
	}
	repo, err := bolt.Open(cfg.BoltPath)
	if err != nil {
		return nil, err
	}
	logger.Info("opened user store", "driver", cfg.Driver, "path", cfg.BoltPath)
	return &userStore{users: repo, ping: repo.Ping, close: repo.Close}, nil
}

// newMigrator creates a migrator for the configured SQL store.
func newMigrator(cfg config.StoreConfig) (*store.Migrator, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return store.NewMigrator(cfg.DatabaseURL)
	case config.DriverSQLite:
		if err := ensureSQLiteDir(cfg.SQLitePath); err != nil {
			return nil, err
		}
		return store.NewMigrator("sqlite://" + cfg.SQLitePath)
	default:
		return nil, oops.Code("MIGRATION_UNSUPPORTED").
			With("driver", cfg.Driver).
			Errorf("migrations need a postgres or sqlite store, got %q", cfg.Driver)
	}
}

// ensureSQLiteDir creates the directory holding a file-backed database.
func ensureSQLiteDir(path string) error {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return nil
	}
	return xdg.EnsureDir(filepath.Dir(path))
}

func migrateUp(cfg config.StoreConfig, logger *slog.Logger) error {
	m, err := newMigrator(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := m.Up(); err != nil {
		return err
	}
	logMigrationVersion(m, logger)
	return nil
}

func logMigrationVersion(m *store.Migrator, logger *slog.Logger) {
	version, dirty, err := m.Version()
	if err != nil {
		logger.Warn("could not read schema version", "error", err)
		return
	}
	logger.Info("schema up to date", "dialect", m.Dialect(), "version", version, "dirty", dirty)
}
