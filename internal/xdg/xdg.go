// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package xdg provides XDG Base Directory paths for gatehouse.
package xdg

import (
	"fmt"
	"os"
	"path/filepath"
)

const appName = "gatehouse"

// ConfigDir returns the XDG config directory for gatehouse.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := homeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appName), nil
}

// DataDir returns the XDG data directory for gatehouse.
// Checks XDG_DATA_HOME first, falls back to ~/.local/share.
func DataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := homeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, appName), nil
}

// StateDir returns the XDG state directory for gatehouse.
// Checks XDG_STATE_HOME first, falls back to ~/.local/state.
func StateDir() (string, error) {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := homeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(base, appName), nil
}

// RuntimeDir returns the XDG runtime directory for gatehouse.
// Checks XDG_RUNTIME_DIR first, falls back to StateDir()/run.
func RuntimeDir() (string, error) {
	base := os.Getenv("XDG_RUNTIME_DIR")
	if base == "" {
		state, err := StateDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(state, "run"), nil
	}
	return filepath.Join(base, appName), nil
}

// CertsDir returns the TLS certificates directory.
func CertsDir() (string, error) {
	config, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(config, "certs"), nil
}

// EnsureDir creates a directory and all parent directories if they don't exist.
// Directories are created with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

func homeDir() (string, error) {
	home := os.Getenv("HOME")
	if home == "" {
		return "", fmt.Errorf("neither an XDG base directory variable nor HOME is set")
	}
	return home, nil
}
