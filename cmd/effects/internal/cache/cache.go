// Package cache provides centralized cache directory resolution for the
// effects CLI.
//
// Priority order: --cache-dir flag > configured fetch.cache_dir (or
// EFFECTS_CACHE_DIR) > ~/.effects default.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
)

var global struct {
	cacheDir string
}

// SetCacheDir sets an override for the cache directory.
// This is typically called when parsing the --cache-dir flag.
func SetCacheDir(dir string) {
	global.cacheDir = dir
}

// Root returns the cache root directory. configured is the value from the
// loaded configuration and may be empty.
func Root(configured string) (string, error) {
	if global.cacheDir != "" {
		return global.cacheDir, nil
	}
	if configured != "" {
		return configured, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".effects"), nil
}

// FilesDir returns the download cache directory.
// Returns: <cache_root>/files
func FilesDir(root string) string {
	return filepath.Join(root, "files")
}

// LedgerPath returns the default crash ledger database.
// Returns: <cache_root>/ledger.db
func LedgerPath(root string) string {
	return filepath.Join(root, "ledger.db")
}
