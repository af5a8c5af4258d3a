package dedup

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendAndContains(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "dedup.json"), 0)
	require.NoError(t, err)

	require.False(t, s.Contains("src", "100"))
	s.Append("src", []string{"100", "101"})
	require.True(t, s.Contains("src", "100"))
	require.True(t, s.Contains("src", "101"))
	require.False(t, s.Contains("other", "100"), "windows are per source")
}

func TestWindowTruncatesFromFront(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "dedup.json"), 5)
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		s.Append("src", []string{fmt.Sprintf("id-%d", i)})
	}
	require.False(t, s.Contains("src", "id-0"))
	require.False(t, s.Contains("src", "id-2"))
	require.True(t, s.Contains("src", "id-3"))
	require.True(t, s.Contains("src", "id-7"))
}

func TestPersistRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dedup.json")
	s, err := Open(path, 10)
	require.NoError(t, err)
	s.Append("src", []string{"a", "b", "c"})
	require.NoError(t, s.Flush())

	reopened, err := Open(path, 10)
	require.NoError(t, err)
	require.True(t, reopened.Contains("src", "b"))
}

func TestReopenWithSmallerWindowTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dedup.json")
	s, err := Open(path, 100)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		s.Append("src", []string{fmt.Sprintf("id-%d", i)})
	}
	require.NoError(t, s.Flush())

	reopened, err := Open(path, 10)
	require.NoError(t, err)
	require.False(t, reopened.Contains("src", "id-5"))
	require.True(t, reopened.Contains("src", "id-19"))
}

func TestSeenClosure(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "dedup.json"), 10)
	require.NoError(t, err)
	s.Append("src", []string{"known"})
	seen := s.Seen("src")
	require.True(t, seen("known"))
	require.False(t, seen("new"))
}
