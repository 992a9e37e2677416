//go:build !unix

package gridfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// Acquire creates dir/.lock. Platforms without flock get no mutual exclusion.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, LockFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}
	return &Lock{file: f}, nil
}

func unlockFile(*os.File) error { return nil }
