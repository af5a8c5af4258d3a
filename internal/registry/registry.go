// Package registry supplies the set of sources the engine watches.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/dropwatch/dropwatch/internal/engine"
)

// Static serves a fixed list of sources. Used when the list comes straight
// from configuration.
type Static struct {
	sources []engine.Source
}

// NewStatic copies the given sources into a Static provider.
func NewStatic(sources []engine.Source) *Static {
	return &Static{sources: append([]engine.Source(nil), sources...)}
}

// Refresh returns the enabled sources.
func (s *Static) Refresh(_ context.Context) ([]engine.Source, error) {
	return filterEnabled(s.sources), nil
}

// File re-reads a JSON source list from disk on every Refresh, so edits to
// the file take effect at the next cycle without a restart. A read or parse
// failure returns the last good list alongside the error, letting the caller
// keep running.
type File struct {
	path   string
	logger *zap.Logger

	mu   sync.Mutex
	last []engine.Source
}

// NewFile builds a File provider. The file must exist and parse on first
// Refresh; later failures fall back to the last good read.
func NewFile(path string, logger *zap.Logger) *File {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &File{path: path, logger: logger}
}

// Refresh reads the source file. On failure it returns the previous list and
// a non-nil error so the engine can log and continue.
func (f *File) Refresh(_ context.Context) ([]engine.Source, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return f.fallback(), fmt.Errorf("reading source file %q: %w", f.path, err)
	}

	var sources []engine.Source
	if err := json.Unmarshal(data, &sources); err != nil {
		return f.fallback(), fmt.Errorf("parsing source file %q: %w", f.path, err)
	}

	enabled := filterEnabled(sources)
	f.mu.Lock()
	f.last = enabled
	f.mu.Unlock()
	return enabled, nil
}

func (f *File) fallback() []engine.Source {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.Source(nil), f.last...)
}

func filterEnabled(in []engine.Source) []engine.Source {
	out := make([]engine.Source, 0, len(in))
	for _, s := range in {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}
