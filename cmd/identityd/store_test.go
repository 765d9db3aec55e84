// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identityd/identityd/internal/auth"
	"github.com/identityd/identityd/internal/config"
	"github.com/identityd/identityd/pkg/errutil"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func roundTrip(t *testing.T, st *userStore) {
	t.Helper()
	ctx := context.Background()

	user, err := auth.NewUser("a@x.com", "not-hashed-in-this-test", nil)
	require.NoError(t, err)
	require.NoError(t, st.users.Create(ctx, user))

	got, err := st.users.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.NoError(t, st.Ping(ctx))
}

func TestOpenStore_Memory(t *testing.T) {
	st, err := openStore(context.Background(), config.StoreConfig{Driver: config.DriverMemory}, quietLogger)
	require.NoError(t, err)
	defer st.Close()

	roundTrip(t, st)
}

func TestOpenStore_SQLiteInMemory(t *testing.T) {
	st, err := openStore(context.Background(), config.StoreConfig{
		Driver:      config.DriverSQLite,
		SQLitePath:  ":memory:",
		AutoMigrate: true,
	}, quietLogger)
	require.NoError(t, err)
	defer st.Close()

	roundTrip(t, st)
}

func TestOpenStore_SQLiteFileSurvivesReopen(t *testing.T) {
	cfg := config.StoreConfig{
		Driver:      config.DriverSQLite,
		SQLitePath:  filepath.Join(t.TempDir(), "identityd.db"),
		AutoMigrate: true,
	}

	st, err := openStore(context.Background(), cfg, quietLogger)
	require.NoError(t, err)
	roundTrip(t, st)
	require.NoError(t, st.Close())

	cfg.AutoMigrate = false
	reopened, err := openStore(context.Background(), cfg, quietLogger)
	require.NoError(t, err)
	defer reopened.Close()

	_, err = reopened.users.GetByEmail(context.Background(), "a@x.com")
	assert.NoError(t, err)
}

func TestOpenStore_SQLiteCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	st, err := openStore(context.Background(), config.StoreConfig{
		Driver:      config.DriverSQLite,
		SQLitePath:  filepath.Join(dir, "identityd.db"),
		AutoMigrate: true,
	}, quietLogger)
	require.NoError(t, err)
	defer st.Close()

	assert.DirExists(t, dir)
	roundTrip(t, st)
}

func TestOpenStore_Bolt(t *testing.T) {
	cfg := config.StoreConfig{
		Driver:   config.DriverBolt,
		BoltPath: filepath.Join(t.TempDir(), "data", "identityd.bolt"),
	}

	st, err := openStore(context.Background(), cfg, quietLogger)
	require.NoError(t, err)
	roundTrip(t, st)
	require.NoError(t, st.Close())

	reopened, err := openStore(context.Background(), cfg, quietLogger)
	require.NoError(t, err)
	defer reopened.Close()

	_, err = reopened.users.GetByEmail(context.Background(), "a@x.com")
	assert.NoError(t, err)
}

func TestNewMigrator_BoltUnsupported(t *testing.T) {
	_, err := newMigrator(config.StoreConfig{Driver: config.DriverBolt})
	errutil.AssertErrorCode(t, err, "MIGRATION_UNSUPPORTED")
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, err := openStore(context.Background(), config.StoreConfig{Driver: "mongo"}, quietLogger)
	errutil.AssertErrorCode(t, err, "STORE_UNSUPPORTED")
}

func TestNewMigrator_MemoryUnsupported(t *testing.T) {
	_, err := newMigrator(config.StoreConfig{Driver: config.DriverMemory})
	errutil.AssertErrorCode(t, err, "MIGRATION_UNSUPPORTED")
}
