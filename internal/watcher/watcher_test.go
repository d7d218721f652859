package watcher

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

func TestWatcherFiresOnceForBurst(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, 100*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fired atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx, func(context.Context) error {
			fired.Add(1)
			return nil
		})
	}()

	// A burst of writes within the debounce window.
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte{byte(i)}, 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return fired.Load() >= 1 },
		2*time.Second, 20*time.Millisecond)
	// The burst coalesced into one trigger.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())

	cancel()
	<-done
}

func TestWatcherIgnoresStateDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".ping-mem"), 0o755))

	w, err := New(dir, 50*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fired atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx, func(context.Context) error {
			fired.Add(1)
			return nil
		})
	}()

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".ping-mem", "manifest.json"), []byte("{}"), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, fired.Load())

	cancel()
	<-done
}

func TestWatcherRelevant(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, time.Second, nil)
	require.NoError(t, err)
	defer w.Close()

	assert.True(t, w.relevant(filepath.Join(dir, "main.go")))
	assert.True(t, w.relevant(filepath.Join(dir, "internal", "a.go")))
	assert.False(t, w.relevant(filepath.Join(dir, ".git", "HEAD")))
	assert.False(t, w.relevant(filepath.Join(dir, "node_modules", "x", "index.js")))
	assert.False(t, w.relevant(filepath.Join(dir, ".ping-mem", "manifest.json")))
}
