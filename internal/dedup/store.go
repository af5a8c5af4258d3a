// Package dedup keeps a bounded, persisted window of recently emitted record
// ids per source. Anything inside a window is never emitted again.
package dedup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultWindowSize bounds each per-source window.
const DefaultWindowSize = 200

// Store maps sourceID to its sliding window of record ids, newest last.
type Store struct {
	path string
	size int

	mu      sync.Mutex
	windows map[string][]string
}

// Open loads the windows from path, starting empty when the file does not
// exist. size <= 0 selects DefaultWindowSize.
func Open(path string, size int) (*Store, error) {
	if size <= 0 {
		size = DefaultWindowSize
	}
	s := &Store{path: path, size: size, windows: make(map[string][]string)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read dedup windows: %w", err)
	}
	if err := json.Unmarshal(data, &s.windows); err != nil {
		return nil, fmt.Errorf("decode dedup windows: %w", err)
	}
	s.truncateAll()
	return s, nil
}

// Contains reports whether the id was already emitted for the source.
func (s *Store) Contains(sourceID, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seen := range s.windows[sourceID] {
		if seen == id {
			return true
		}
	}
	return false
}

// Seen returns a membership func bound to one source, for handing to the
// extraction engine without exposing the whole store.
func (s *Store) Seen(sourceID string) func(string) bool {
	return func(id string) bool { return s.Contains(sourceID, id) }
}

// Append records emitted ids for a source, truncating the window from the
// front once it exceeds the bound. Call only after the downstream handoff
// succeeded.
func (s *Store) Append(sourceID string, ids []string) {
	if len(ids) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	w := append(s.windows[sourceID], ids...)
	if len(w) > s.size {
		w = append([]string(nil), w[len(w)-s.size:]...)
	}
	s.windows[sourceID] = w
}

// Flush writes all windows to disk via atomic replace.
func (s *Store) Flush() error {
	s.mu.Lock()
	data, err := json.Marshal(s.windows)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode dedup windows: %w", err)
	}
	return atomicWrite(s.path, data)
}

func (s *Store) truncateAll() {
	for k, w := range s.windows {
		if len(w) > s.size {
			s.windows[k] = append([]string(nil), w[len(w)-s.size:]...)
		}
	}
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
