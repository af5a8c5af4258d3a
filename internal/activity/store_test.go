package activity

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropwatch/dropwatch/internal/engine"
)

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "metrics.json"))
	require.NoError(t, err)
	require.Empty(t, s.Snapshot())
}

func TestRecordAndPersistRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")
	s, err := Open(path)
	require.NoError(t, err)

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.Record("A", 3, now)
	s.Record("A", 2, now.Add(time.Minute))
	require.NoError(t, s.Flush())

	reopened, err := Open(path)
	require.NoError(t, err)
	m := reopened.Snapshot()["A"]
	require.Equal(t, 5, m.RecordCount)
	require.Equal(t, now.Add(time.Minute), m.LastCheckedAt)
}

func TestRecordCountMonotonic(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "metrics.json"))
	require.NoError(t, err)
	s.Record("A", 4, time.Now())
	s.Record("A", -10, time.Now())
	s.Record("A", 0, time.Now())
	require.Equal(t, 4, s.Snapshot()["A"].RecordCount)
}

func TestEnsureKnownInitializesLazily(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "metrics.json"))
	require.NoError(t, err)
	s.EnsureKnown([]engine.Source{{ID: "A", Enabled: true}, {ID: "B", Enabled: true}})
	snap := s.Snapshot()
	require.Contains(t, snap, "A")
	require.Contains(t, snap, "B")
	require.Zero(t, snap["A"].RecordCount)

	s.Record("A", 7, time.Now())
	s.EnsureKnown([]engine.Source{{ID: "A", Enabled: true}})
	require.Equal(t, 7, s.Snapshot()["A"].RecordCount, "EnsureKnown must not reset existing metrics")
}

func TestOpenRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := Open(path)
	require.Error(t, err)
}
