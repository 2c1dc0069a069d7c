package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// ResolveStatePath returns the state store path, falling back to the network
// store when no separate state store was given.
func ResolveStatePath(networkPath, statePath string) string {
	if statePath == "" {
		return networkPath
	}
	return statePath
}

// SamePath reports whether two store paths name the same file.
func SamePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

// JournalDir returns the directory that holds the run journal for a
// results store: the directory containing the database file.
func JournalDir(resultsPath string) (string, error) {
	abs, err := filepath.Abs(resultsPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", resultsPath, err)
	}
	return filepath.Dir(abs), nil
}

// RequireFile returns an error unless path names an existing regular file.
// SQLite would otherwise create an empty database on open.
func RequireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("store not found: %s", path)
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("store path is a directory: %s", path)
	}
	return nil
}
