package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isPDF(path string) bool { return strings.HasSuffix(path, ".pdf") }

func startWatcher(t *testing.T, root string, calls *atomic.Int32) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	w := New(root, isPDF, func(context.Context) error {
		calls.Add(1)
		return nil
	}, 50*time.Millisecond)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	// give the watcher time to register the tree
	time.Sleep(100 * time.Millisecond)
}

func TestWatcher_DebouncesBurst(t *testing.T) {
	root := t.TempDir()
	var calls atomic.Int32
	startWatcher(t, root, &calls)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "a.pdf"), []byte{byte(i)}, 0o644))
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWatcher_IgnoresUnmatched(t *testing.T) {
	root := t.TempDir()
	var calls atomic.Int32
	startWatcher(t, root, &calls)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestWatcher_FollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	var calls atomic.Int32
	startWatcher(t, root, &calls)

	sub := filepath.Join(root, "manuals")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 20*time.Millisecond)

	before := calls.Load()
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "b.pdf"), []byte("x"), 0o644))
	require.Eventually(t, func() bool { return calls.Load() > before }, 2*time.Second, 20*time.Millisecond)
}
