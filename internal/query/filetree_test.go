package query

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestFileTree(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b.parquet"))
	touch(t, filepath.Join(dir, "a.csv"))
	touch(t, filepath.Join(dir, "readme.md"))
	touch(t, filepath.Join(dir, ".hidden.csv"))
	touch(t, filepath.Join(dir, "ohlcv", "1min", "NIFTY", "2024-08-01.parquet"))
	touch(t, filepath.Join(dir, ".cache", "x.parquet"))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0o755))

	nodes, err := FileTree(dir)
	require.NoError(t, err)
	require.Len(t, nodes, 3)

	assert.Equal(t, NodeFolder, nodes[0].Type)
	assert.Equal(t, "ohlcv", nodes[0].Name)
	assert.Equal(t, "a.csv", nodes[1].Name)
	assert.Equal(t, "b.parquet", nodes[2].Name)
	assert.Equal(t, int64(1), nodes[1].Size)

	leaf := nodes[0].Children[0].Children[0].Children[0]
	assert.Equal(t, NodeFile, leaf.Type)
	assert.Equal(t, "ohlcv/1min/NIFTY/2024-08-01.parquet", leaf.Path)
}

func TestFileTreeEmptyAndMissing(t *testing.T) {
	nodes, err := FileTree(t.TempDir())
	require.NoError(t, err)
	assert.NotNil(t, nodes)
	assert.Empty(t, nodes)

	_, err = FileTree(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestTreeCacheInvalidate(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.csv"))
	c := NewTreeCache(dir)

	nodes, err := c.Get()
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	touch(t, filepath.Join(dir, "b.csv"))
	nodes, _ = c.Get()
	assert.Len(t, nodes, 1, "cached until invalidated")

	c.Invalidate()
	nodes, err = c.Get()
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
}

func TestTreeCacheTTL(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.csv"))
	now := time.Date(2024, 8, 1, 9, 15, 0, 0, time.UTC)
	c := NewTreeCache(dir)
	c.now = func() time.Time { return now }
	c.SetTTL(time.Minute)

	nodes, err := c.Get()
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	touch(t, filepath.Join(dir, "b.csv"))
	now = now.Add(30 * time.Second)
	nodes, _ = c.Get()
	assert.Len(t, nodes, 1, "fresh within the TTL")

	now = now.Add(31 * time.Second)
	nodes, err = c.Get()
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
}

func TestWatchTreeFallsBackWhenWatcherFails(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.csv"))
	tree := NewTreeCache(dir)
	_, err := tree.Get()
	require.NoError(t, err)

	// A root that cannot be watched makes Run fail immediately.
	w := NewWatcher(filepath.Join(dir, "missing"), nil, nil)
	done := make(chan struct{})
	go func() {
		WatchTree(context.Background(), w, tree, time.Minute)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("WatchTree did not return after the watcher failed")
	}

	tree.mu.Lock()
	ttl, valid := tree.ttl, tree.valid
	tree.mu.Unlock()
	assert.Equal(t, time.Minute, ttl)
	assert.False(t, valid, "cache invalidated on fallback")
}

func TestWatchTreeInvalidatesOnChange(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.csv"))
	tree := NewTreeCache(dir)
	_, err := tree.Get()
	require.NoError(t, err)

	w := NewWatcher(dir, nil, nil)
	w.Debounce = 20 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go WatchTree(ctx, w, tree, time.Minute)

	// Give the watcher time to register the root.
	time.Sleep(100 * time.Millisecond)
	touch(t, filepath.Join(dir, "b.csv"))

	require.Eventually(t, func() bool {
		nodes, err := tree.Get()
		return err == nil && len(nodes) == 2
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatcherDebouncesChanges(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	w := NewWatcher(dir, func() { calls.Add(1) }, nil)
	w.Debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register the root.
	time.Sleep(100 * time.Millisecond)
	touch(t, filepath.Join(dir, "a.csv"))
	touch(t, filepath.Join(dir, "b.csv"))
	touch(t, filepath.Join(dir, "c.parquet"))

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.LessOrEqual(t, calls.Load(), int32(2))
}
