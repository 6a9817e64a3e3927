package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type eventSink struct {
	mu     sync.Mutex
	events []FileEvent
}

func (s *eventSink) add(e FileEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *eventSink) ops() []FileOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FileOp, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Op)
	}
	return out
}

func TestFileOp_String(t *testing.T) {
	assert.Equal(t, "CREATE", FileOpCreate.String())
	assert.Equal(t, "WRITE", FileOpWrite.String())
	assert.Equal(t, "REMOVE", FileOpRemove.String())
	assert.Equal(t, "UNKNOWN", FileOp(42).String())
}

func TestFileWatcher_CheckFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	w, err := NewFileWatcher([]string{path})
	require.NoError(t, err)

	assert.Empty(t, w.checkFiles())

	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o644))
	events := w.checkFiles()
	require.Len(t, events, 1)
	assert.Equal(t, FileOpCreate, events[0].Op)
	assert.Empty(t, w.checkFiles())

	// 大小变化即使 mtime 精度不足也能检测到
	require.NoError(t, os.WriteFile(path, []byte("a: 12\n"), 0o644))
	events = w.checkFiles()
	require.Len(t, events, 1)
	assert.Equal(t, FileOpWrite, events[0].Op)

	require.NoError(t, os.Remove(path))
	events = w.checkFiles()
	require.Len(t, events, 1)
	assert.Equal(t, FileOpRemove, events[0].Op)
}

func TestFileWatcher_DispatchesDebounced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o644))

	w, err := NewFileWatcher([]string{path},
		WithPollInterval(10*time.Millisecond),
		WithDebounceDelay(30*time.Millisecond),
		WithWatcherLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	sink := &eventSink{}
	w.OnChange(sink.add)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	assert.True(t, w.IsRunning())
	assert.Error(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(path, []byte("a: 123\n"), 0o644))

	assert.Eventually(t, func() bool {
		ops := sink.ops()
		return len(ops) == 1 && ops[0] == FileOpWrite
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
}

func TestFileWatcher_PathsAreAbsolute(t *testing.T) {
	w, err := NewFileWatcher([]string{"relative.yaml"})
	require.NoError(t, err)
	require.Len(t, w.Paths(), 1)
	assert.True(t, filepath.IsAbs(w.Paths()[0]))
}
