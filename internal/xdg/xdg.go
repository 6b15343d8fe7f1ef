// Package xdg provides XDG Base Directory paths for the tool host.
package xdg

import (
	"fmt"
	"os"
	"path/filepath"
)

const appName = "toolhost"

func homeDir() (string, error) {
	home := os.Getenv("HOME")
	if home == "" {
		return "", fmt.Errorf("HOME is not set")
	}
	return home, nil
}

// ConfigDir returns the XDG config directory for toolhost.
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

// DataDir returns the XDG data directory for toolhost.
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

// StateDir returns the XDG state directory for toolhost.
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

// RuntimeDir returns the XDG runtime directory for toolhost.
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

// PluginsDir returns the directory external plugins are installed into.
func PluginsDir() (string, error) {
	data, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(data, "plugins"), nil
}

// SecretsFile returns the path of the sealed secrets file.
func SecretsFile() (string, error) {
	config, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(config, "secrets.json"), nil
}

// EnsureDir creates a directory and all parent directories if they don't exist.
// Directories are created with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}
