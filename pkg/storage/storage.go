package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// File is an open file handed to sessions and notification hooks.
type File interface {
	io.ReadWriteCloser
	Name() string
	Stat() (fs.FileInfo, error)
}

type FileSystem interface {
	// Resolve maps a requested filename to a path inside the store.
	Resolve(name string) string
	Exists(path string) bool
	Open(path string) (File, error)
	// Create fails with fs.ErrExist when path already exists.
	Create(path string) (File, error)
	Remove(path string) error
}

// Dir is a FileSystem rooted at a local directory.
type Dir struct {
	Root string
	Perm fs.FileMode
}

func NewDir(root string) *Dir {
	return &Dir{Root: root, Perm: 0o644}
}

// Resolve never escapes Root: the name is cleaned as an absolute path
// before it is joined.
func (d *Dir) Resolve(name string) string {
	return filepath.Join(d.Root, filepath.Clean(string(filepath.Separator)+name))
}

func (d *Dir) Exists(path string) bool {
	_, err := os.Stat(path)

	return !errors.Is(err, fs.ErrNotExist)
}

func (d *Dir) Open(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error while opening file: %w", err)
	}

	stats, err := f.Stat()
	if err != nil {
		_ = f.Close()

		return nil, fmt.Errorf("error while reading file stats: %w", err)
	}

	if stats.IsDir() {
		_ = f.Close()

		return nil, fmt.Errorf("%s is a directory: %w", path, fs.ErrPermission)
	}

	return f, nil
}

func (d *Dir) Create(path string) (File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, d.Perm)
	if err != nil {
		return nil, fmt.Errorf("error while creating file: %w", err)
	}

	return f, nil
}

func (d *Dir) Remove(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("error while removing file: %w", err)
	}

	return nil
}
