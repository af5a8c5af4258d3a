// Package local implements engine.BlobStore on the local filesystem.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Store writes each key as a file under a base directory. Writes are atomic:
// a temp file is written, synced and renamed over the target.
type Store struct {
	dir string
}

// New creates the base directory if needed and returns a Store.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating state directory %q: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Put replaces the blob at key.
func (s *Store) Put(_ context.Context, key string, data []byte) error {
	target := filepath.Join(s.dir, key)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("creating directory for %q: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file for %q: %w", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %q: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %q: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("replacing %q: %w", key, err)
	}
	return nil
}

// Get reads the blob at key. A missing key returns os.ErrNotExist.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, key))
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", key, err)
	}
	return data, nil
}
