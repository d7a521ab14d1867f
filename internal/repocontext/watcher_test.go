package repocontext

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 5 * time.Second
	tick    = 20 * time.Millisecond
)

func TestWatcher_MarksStale(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"main.go":             "package main",
		"node_modules/a.js":   "x",
		".planify-session/.k": "x",
	})

	w, err := NewWatcher(t.Context(), root, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	assert.False(t, w.Stale())

	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0644))
	require.Eventually(t, w.Stale, waitFor, tick)
	select {
	case <-w.Changes():
	case <-time.After(waitFor):
		t.Fatal("no change notification")
	}

	w.Reset()
	assert.False(t, w.Stale())

	require.NoError(t, os.WriteFile(filepath.Join(root, ".planify-session", "s.json"), []byte("{}"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "b.js"), []byte("x"), 0644))
	assert.Never(t, w.Stale, 300*time.Millisecond, tick, "skipped directories are not watched")
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(t.Context(), root, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	sub := filepath.Join(root, "internal")
	require.NoError(t, os.Mkdir(sub, 0755))
	require.Eventually(t, w.Stale, waitFor, tick)

	// The directory is watched before the flag flips.
	w.Reset()

	require.NoError(t, os.WriteFile(filepath.Join(sub, "x.go"), []byte("package x"), 0644))
	require.Eventually(t, w.Stale, waitFor, tick)
}

func TestWatcher_CloseIdempotent(t *testing.T) {
	w, err := NewWatcher(t.Context(), t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}

func TestNewWatcher_MissingRoot(t *testing.T) {
	_, err := NewWatcher(t.Context(), filepath.Join(t.TempDir(), "missing"), nil)
	assert.ErrorIs(t, err, ErrWatcherFailed)
}
