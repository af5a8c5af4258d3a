// Package memory contains an in-memory record sink for tests and local runs.
package memory

import (
	"context"
	"sync"

	"github.com/dropwatch/dropwatch/internal/engine"
)

// Sink stores emitted records for inspection.
type Sink struct {
	mu      sync.RWMutex
	records []engine.ExtractedRecord
	failErr error
}

// New returns an empty Sink.
func New() *Sink {
	return &Sink{}
}

// Emit appends the batch, or returns the injected failure.
func (s *Sink) Emit(_ context.Context, records []engine.ExtractedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.records = append(s.records, records...)
	return nil
}

// Records returns a copy of everything emitted so far.
func (s *Sink) Records() []engine.ExtractedRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]engine.ExtractedRecord, len(s.records))
	copy(out, s.records)
	return out
}

// FailWith makes subsequent Emit calls return err. Pass nil to recover.
func (s *Sink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}
