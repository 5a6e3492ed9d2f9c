package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func Test_StateStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s := NewStateStore(path, testLogger())
	require.NoError(t, s.Put("/docs/a.txt", Fingerprint{Hash: "h1", Mtime: 100}))
	require.NoError(t, s.Put("/docs/b.txt", Fingerprint{Hash: "h2", Mtime: 200}))
	require.NoError(t, s.Remove("/docs/b.txt"))

	// A fresh store reads back what the first one persisted.
	s2 := NewStateStore(path, testLogger())
	fp, ok := s2.Get("/docs/a.txt")
	require.True(t, ok)
	assert.Equal(t, Fingerprint{Hash: "h1", Mtime: 100}, fp)

	_, ok = s2.Get("/docs/b.txt")
	assert.False(t, ok)
}

func Test_StateStore_MissingFileStartsEmpty(t *testing.T) {
	s := NewStateStore(filepath.Join(t.TempDir(), "nope", "state.json"), testLogger())
	assert.Empty(t, s.Snapshot())
}

func Test_StateStore_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := NewStateStore(path, testLogger())
	assert.Empty(t, s.Snapshot())

	// The store stays usable after recovering from corruption.
	require.NoError(t, s.Put("/docs/a.txt", Fingerprint{Hash: "h1"}))
	fp, ok := s.Get("/docs/a.txt")
	require.True(t, ok)
	assert.Equal(t, "h1", fp.Hash)
}

func Test_StateStore_IgnoresUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"/docs/a.txt": {"hash": "h1", "mtime": 5, "extra": true}}`), 0o644))

	s := NewStateStore(path, testLogger())
	fp, ok := s.Get("/docs/a.txt")
	require.True(t, ok)
	assert.Equal(t, Fingerprint{Hash: "h1", Mtime: 5}, fp)
}

func Test_StateStore_Clear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s := NewStateStore(path, testLogger())
	require.NoError(t, s.Put("/docs/a.txt", Fingerprint{Hash: "h1"}))
	require.NoError(t, s.Put("/docs/b.txt", Fingerprint{Hash: "h2"}))

	require.NoError(t, s.Clear())
	assert.Empty(t, s.Snapshot())

	// The cleared state is persisted, not just dropped in memory.
	s2 := NewStateStore(path, testLogger())
	assert.Empty(t, s2.Snapshot())
}

func Test_StateStore_SaveSwapsAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	s := NewStateStore(path, testLogger())
	require.NoError(t, s.Put("/docs/a.txt", Fingerprint{Hash: "h1"}))

	// The temp file from the write-then-rename swap never lingers.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}

func Test_StateStore_SnapshotIsACopy(t *testing.T) {
	s := NewStateStore(filepath.Join(t.TempDir(), "state.json"), testLogger())
	require.NoError(t, s.Put("/docs/a.txt", Fingerprint{Hash: "h1"}))

	snap := s.Snapshot()
	delete(snap, "/docs/a.txt")

	_, ok := s.Get("/docs/a.txt")
	assert.True(t, ok)
}
