package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "session_state.json", []byte(`{"state":"ready"}`)))

	got, err := store.Get(ctx, "session_state.json")
	require.NoError(t, err)
	require.JSONEq(t, `{"state":"ready"}`, string(got))
}

func TestPutReplaces(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", []byte("v1")))
	require.NoError(t, store.Put(ctx, "k", []byte("v2")))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v2", string(got))
}

func TestGetMissing(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "absent")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestPutCreatesNestedDirs(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, filepath.Join("sessions", "primary", "cookies.json"), []byte("[]")))

	got, err := store.Get(ctx, filepath.Join("sessions", "primary", "cookies.json"))
	require.NoError(t, err)
	require.Equal(t, "[]", string(got))
}

func TestPutLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, store.Put(context.Background(), "k", []byte("v")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "k", entries[0].Name())
}
