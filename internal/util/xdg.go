package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// AppName names the per-user data directory.
const AppName = "abacus"

// GetXDGDataDir returns the XDG data directory for abacus.
// It respects XDG_DATA_HOME if set, otherwise falls back to ~/.local/share/abacus
func GetXDGDataDir() (string, error) {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, AppName), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(homeDir, ".local", "share", AppName), nil
}

// DefaultDatabaseURL returns a local libsql file URL inside the data directory,
// creating the directory when needed.
func DefaultDatabaseURL() (string, error) {
	dir, err := GetXDGDataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return "file:" + filepath.Join(dir, AppName+".db"), nil
}
