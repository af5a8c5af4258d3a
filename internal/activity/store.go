// Package activity persists per-source harvest counters consumed by the
// scheduler. The store is read once at startup and flushed after each unit of
// work; writes go through an atomic temp-file replace so a crash never leaves
// a torn file.
package activity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dropwatch/dropwatch/internal/engine"
)

// Store holds the {sourceID: metric} mapping backed by a JSON file.
type Store struct {
	path string

	mu      sync.Mutex
	metrics map[string]engine.ActivityMetric
}

// Open loads the store from path, starting empty when the file does not
// exist yet. A corrupt file is an error; the operator decides whether to
// delete it.
func Open(path string) (*Store, error) {
	s := &Store{path: path, metrics: make(map[string]engine.ActivityMetric)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read activity metrics: %w", err)
	}
	if err := json.Unmarshal(data, &s.metrics); err != nil {
		return nil, fmt.Errorf("decode activity metrics: %w", err)
	}
	return s, nil
}

// EnsureKnown lazily creates a zero metric for every listed source so the
// scheduler always sees a complete mapping.
func (s *Store) EnsureKnown(sources []engine.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, src := range sources {
		if _, ok := s.metrics[src.ID]; !ok {
			s.metrics[src.ID] = engine.ActivityMetric{}
		}
	}
}

// Snapshot returns a copy of the current mapping.
func (s *Store) Snapshot() map[string]engine.ActivityMetric {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]engine.ActivityMetric, len(s.metrics))
	for k, v := range s.metrics {
		out[k] = v
	}
	return out
}

// Record adds found records to a source's counter and stamps the check time.
// The counter is monotonically non-decreasing; negative deltas are ignored.
func (s *Store) Record(sourceID string, found int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.metrics[sourceID]
	if found > 0 {
		m.RecordCount += found
	}
	m.LastCheckedAt = at
	s.metrics[sourceID] = m
}

// Flush writes the mapping to disk. The in-memory state stays authoritative
// even when the write fails; the next successful flush self-heals.
func (s *Store) Flush() error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.metrics, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode activity metrics: %w", err)
	}
	return atomicWrite(s.path, data)
}

// atomicWrite replaces path with data via a temp file and rename so readers
// never observe a partial write.
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
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("sync temp state file: %w", err)
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
