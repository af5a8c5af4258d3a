// Package memory implements engine.BlobStore in process memory, for tests.
package memory

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// Store holds blobs in a map. Safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{blobs: make(map[string][]byte)}
}

// Put stores a copy of data under key.
func (s *Store) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = append([]byte(nil), data...)
	return nil
}

// Get returns a copy of the blob at key, or os.ErrNotExist.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, fmt.Errorf("blob %q: %w", key, os.ErrNotExist)
	}
	return append([]byte(nil), data...), nil
}
