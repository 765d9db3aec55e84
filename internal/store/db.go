// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

// Package store opens databases and manages their schema.
package store

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	// Register the pure-Go SQLite driver as "sqlite".
	_ "modernc.org/sqlite"
)

// ConnectOptions tunes the initial connection attempt.
type ConnectOptions struct {
	// Attempts is the number of retries after the first failed ping.
	Attempts uint64
	// BaseDelay is the first backoff interval; it doubles per attempt.
	BaseDelay time.Duration
	// MaxDelay caps a single backoff interval.
	MaxDelay time.Duration
}

// DefaultConnectOptions retries for roughly half a minute, which covers a
// database container that starts alongside the service.
var DefaultConnectOptions = ConnectOptions{
	Attempts:  8,
	BaseDelay: 250 * time.Millisecond,
	MaxDelay:  5 * time.Second,
}

// pinger is the part of a pool needed to check connectivity.
type pinger interface {
	Ping(ctx context.Context) error
}

// OpenPostgres creates a pgx pool and waits until the database answers.
func OpenPostgres(ctx context.Context, databaseURL string, opts ConnectOptions, logger *slog.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := waitForPing(ctx, pool, opts, logger); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// waitForPing pings p with exponential backoff until it succeeds, the
// attempts run out, or ctx ends.
func waitForPing(ctx context.Context, p pinger, opts ConnectOptions, logger *slog.Logger) error {
	backoff := retry.NewExponential(opts.BaseDelay)
	backoff = retry.WithCappedDuration(opts.MaxDelay, backoff)
	backoff = retry.WithMaxRetries(opts.Attempts, backoff)

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := p.Ping(ctx); err != nil {
			logger.Warn("database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping").
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}

// OpenSQLite opens a SQLite database file (or ":memory:") and applies the
// pragmas the service relies on. SQLite allows one writer at a time, so the
// handle is limited to a single connection.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "open sqlite").Wrap(err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, oops.Code("DB_CONNECT_FAILED").
				With("operation", "set pragma").
				With("pragma", pragma).
				Wrap(err)
		}
	}
	return db, nil
}
