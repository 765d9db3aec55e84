// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

// Package xdg provides XDG Base Directory paths for identityd.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "identityd"

// ConfigDir returns the XDG config directory for identityd.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() (string, error) {
	return appDir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns the XDG data directory for identityd.
// Checks XDG_DATA_HOME first, falls back to ~/.local/share.
func DataDir() (string, error) {
	return appDir("XDG_DATA_HOME", ".local", "share")
}

func appDir(envVar string, homeFallback ...string) (string, error) {
	if base := os.Getenv(envVar); base != "" {
		return filepath.Join(base, appName), nil
	}
	home := os.Getenv("HOME")
	if home == "" {
		return "", oops.Code("XDG_NO_HOME").
			With("env", envVar).
			Errorf("neither %s nor HOME is set", envVar)
	}
	parts := append([]string{home}, homeFallback...)
	return filepath.Join(append(parts, appName)...), nil
}

// ConfigFile returns the default config file path, or "" when no file
// exists there.
func ConfigFile() string {
	dir, err := ConfigDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(dir, "config.yaml")
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return ""
	}
	return path
}

// EnsureDir creates a directory and all parent directories if they don't exist.
// Directories are created with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.Code("XDG_MKDIR_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
