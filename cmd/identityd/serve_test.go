// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identityd/identityd/internal/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Metrics.Addr = "127.0.0.1:0"
	cfg.HTTP.ShutdownTimeout = 5 * time.Second
	return &cfg
}

type addrs struct {
	api     string
	metrics string
}

// startServe runs serve in the background and waits until it listens.
func startServe(t *testing.T, cfg *config.Config) (addrs, context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan addrs, 1)
	done := make(chan error, 1)

	go func() {
		done <- runServeWithDeps(ctx, cfg, &ServeDeps{
			LogOutput: io.Discard,
			Ready:     func(api, metrics string) { ready <- addrs{api, metrics} },
		})
	}()

	select {
	case a := <-ready:
		return a, cancel, done
	case err := <-done:
		cancel()
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(10 * time.Second):
		cancel()
		t.Fatal("serve did not become ready")
	}
	return addrs{}, cancel, done
}

func getBody(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServe_RegisterMetricsAndShutdown(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	a, cancel, done := startServe(t, testConfig())
	defer cancel()

	resp, err := http.Post("http://"+a.api+"/auth/register", "application/json",
		strings.NewReader(`{"email":"a@x.com","password":"Test1234@","username":"alice"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	status, _ := getBody(t, "http://"+a.metrics+"/healthz/readiness")
	assert.Equal(t, http.StatusOK, status)

	status, metrics := getBody(t, "http://"+a.metrics+"/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, metrics, `identityd_auth_operations_total{operation="register",outcome="success"} 1`)
	assert.Contains(t, metrics, `identityd_http_requests_total{method="POST",route="POST /auth/register",status="201"} 1`)
	assert.Contains(t, metrics, "identityd_store_ready 1")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestServe_MetricsDisabled(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	cfg := testConfig()
	cfg.Metrics.Addr = ""
	a, cancel, done := startServe(t, cfg)

	assert.Empty(t, a.metrics)
	status, _ := getBody(t, "http://"+a.api+"/auth/me")
	assert.Equal(t, http.StatusUnauthorized, status)

	cancel()
	assert.NoError(t, <-done)
}

func TestServe_StoreOpenFailure(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	err := runServeWithDeps(context.Background(), testConfig(), &ServeDeps{
		LogOutput: io.Discard,
		StoreOpener: func(context.Context, config.StoreConfig, *slog.Logger) (*userStore, error) {
			return nil, errors.New("database unreachable")
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database unreachable")
}

func TestServe_ListenFailure(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	cfg := testConfig()
	cfg.HTTP.Addr = taken.Addr().String()

	err = runServeWithDeps(context.Background(), cfg, &ServeDeps{LogOutput: io.Discard})
	assert.Error(t, err)
}

func TestServe_InvalidLogLevel(t *testing.T) {
	cfg := testConfig()
	cfg.Log.Level = "loud"

	err := runServeWithDeps(context.Background(), cfg, &ServeDeps{LogOutput: io.Discard})
	assert.Error(t, err)
}
