package statestore

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dropwatch/dropwatch/internal/statestore/memory"
)

type failingStore struct {
	err error
}

func (f *failingStore) Put(context.Context, string, []byte) error { return f.err }

func (f *failingStore) Get(context.Context, string) ([]byte, error) { return nil, f.err }

func TestMirroredPutWritesBoth(t *testing.T) {
	primary := memory.New()
	mirror := memory.New()
	store := NewMirrored(primary, mirror, nil)

	require.NoError(t, store.Put(context.Background(), "session_state.json", []byte("cookies")))

	got, err := primary.Get(context.Background(), "session_state.json")
	require.NoError(t, err)
	require.Equal(t, []byte("cookies"), got)

	got, err = mirror.Get(context.Background(), "session_state.json")
	require.NoError(t, err)
	require.Equal(t, []byte("cookies"), got)
}

func TestMirroredGetFallsBackAndRestores(t *testing.T) {
	primary := memory.New()
	mirror := memory.New()
	require.NoError(t, mirror.Put(context.Background(), "k", []byte("remote")))

	store := NewMirrored(primary, mirror, nil)

	got, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	require.Equal(t, []byte("remote"), got)

	// The fallback read seeds the primary.
	got, err = primary.Get(context.Background(), "k")
	require.NoError(t, err)
	require.Equal(t, []byte("remote"), got)
}

func TestMirroredGetMissingEverywhere(t *testing.T) {
	store := NewMirrored(memory.New(), memory.New(), nil)

	_, err := store.Get(context.Background(), "absent")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestMirroredPutSurvivesMirrorFailure(t *testing.T) {
	primary := memory.New()
	store := NewMirrored(primary, &failingStore{err: errors.New("bucket gone")}, nil)

	require.NoError(t, store.Put(context.Background(), "k", []byte("v")))

	got, err := primary.Get(context.Background(), "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
}

func TestMirroredPutPropagatesPrimaryFailure(t *testing.T) {
	store := NewMirrored(&failingStore{err: errors.New("disk full")}, memory.New(), nil)

	require.Error(t, store.Put(context.Background(), "k", []byte("v")))
}
