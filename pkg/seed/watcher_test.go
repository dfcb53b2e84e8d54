package seed

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_CoalescesBursts(t *testing.T) {
	t.Parallel()

	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	var calls atomic.Int32
	for range 10 {
		d.Trigger(func() { calls.Add(1) })
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	t.Parallel()

	d := NewDebouncer(20 * time.Millisecond)
	var calls atomic.Int32
	d.Trigger(func() { calls.Add(1) })
	d.Stop()
	d.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestWatcher_Relevant(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := NewWatcher(WatcherConfig{
		Patterns: []string{"seeds/**/*.yaml", "extra.yml"},
		BaseDir:  dir,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	tests := []struct {
		name string
		op   fsnotify.Op
		want bool
	}{
		{filepath.Join(dir, "seeds", "a.yaml"), fsnotify.Write, true},
		{filepath.Join(dir, "seeds", "x", "y", "b.yaml"), fsnotify.Create, true},
		{filepath.Join(dir, "seeds", "a.yaml"), fsnotify.Remove, true},
		{filepath.Join(dir, "seeds", "a.yaml"), fsnotify.Chmod, false},
		{filepath.Join(dir, "seeds", "a.txt"), fsnotify.Write, false},
		{filepath.Join(dir, "seeds", ".a.yaml"), fsnotify.Write, false},
		{filepath.Join(dir, "other", "a.yaml"), fsnotify.Write, false},
		{filepath.Join(dir, "extra.yml"), fsnotify.Write, true},
	}
	for _, tt := range tests {
		got := w.relevant(fsnotify.Event{Name: tt.name, Op: tt.op})
		assert.Equal(t, tt.want, got, "%s %s", tt.op, tt.name)
	}

	assert.ElementsMatch(t, []string{filepath.Join(dir, "seeds"), dir}, w.roots())
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "seeds/a.yaml", "collections:\n  - id: a\n    port: 4001\n")

	w, err := NewWatcher(WatcherConfig{
		Patterns:         []string{"seeds/**/*.yaml"},
		BaseDir:          dir,
		DebounceInterval: 20 * time.Millisecond,
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reloads atomic.Int32
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Watch(ctx, func() error {
			reloads.Add(1)
			return nil
		})
	}()

	// The watch is registered asynchronously; keep touching the file until
	// a reload is observed.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("collections:\n  - id: a\n    port: 4002\n"), 0o644)
		return reloads.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, w.Stop())
	require.NoError(t, <-errCh)
	assert.ErrorIs(t, w.Watch(ctx, func() error { return nil }), ErrWatcherStopped)
}

func TestWatcher_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewWatcher(WatcherConfig{}, nil)
	assert.Error(t, err)
}
