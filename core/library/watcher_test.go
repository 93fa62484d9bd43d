package library

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	mu      sync.Mutex
	removed []string
}

func (r *fakeRegistry) RemoveByLocation(ctx context.Context, location string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, location)
	return true, nil
}

func (r *fakeRegistry) removals() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.removed...)
}

func TestWatcherSyncsRegistryOnFileRemoval(t *testing.T) {
	dir := t.TempDir()
	registry := &fakeRegistry{}
	w := NewWatcher(dir, registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	path := filepath.Join(dir, "Artist - Song.flac")
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0644))
	require.NoError(t, os.Remove(path))

	require.Eventually(t, func() bool {
		for _, got := range registry.removals() {
			if got == path {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond, "removal never reached the registry")
}

func TestWatcherCreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "downloads")
	w := NewWatcher(dir, &fakeRegistry{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	w.Stop()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestWatcherStopIsIdempotentBeforeStart(t *testing.T) {
	w := NewWatcher(t.TempDir(), &fakeRegistry{})
	w.Stop()
}
