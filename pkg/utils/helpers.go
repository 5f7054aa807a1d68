package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultRootDir returns $HOME/tftp, creating it when missing.
func DefaultRootDir() string {
	p, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("error while getting user home dir: %w", err))
	}

	root := filepath.Join(p, "tftp")

	if err := EnsureDir(root); err != nil {
		panic(err)
	}

	return root
}

// EnsureDir creates dir if it does not exist and fails if dir is a regular file.
func EnsureDir(dir string) error {
	stats, err := os.Stat(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error while checking %s exists: %w", dir, err)
		}

		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("error while creating tftp root dir: %w", err)
		}

		return nil
	}

	if !stats.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	return nil
}
