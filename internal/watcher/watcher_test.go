package watcher

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingChannel struct {
	mu   sync.Mutex
	sent []Notification
}

func (c *recordingChannel) Name() string { return "recording" }

func (c *recordingChannel) Send(n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return nil
}

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func TestWatcherDebouncesRapidEditsIntoOneNotification(t *testing.T) {
	dir := t.TempDir()
	var handlerCalls int32
	handler := func(ctx context.Context, path string) (int, bool, string, error) {
		atomic.AddInt32(&handlerCalls, 1)
		return 3, false, "indexed", nil
	}
	rec := &recordingChannel{}

	w, err := New(dir, 100*time.Millisecond, handler, rec)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	path := filepath.Join(dir, "a.go")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("package a\n"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return rec.count() >= 1 }, 2*time.Second, 20*time.Millisecond)
	require.Equal(t, 1, rec.count(), "rapid edits within the debounce window should coalesce into one notification")
}

func TestLogFileChannelAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watcher.log")
	ch := &LogFileChannel{Path: path}

	require.NoError(t, ch.Send(Notification{Path: "a.go", MemoryCount: 1}))
	require.NoError(t, ch.Send(Notification{Path: "b.go", MemoryCount: 2}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := splitLines(string(content))
	require.Len(t, lines, 2)

	var n Notification
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &n))
	require.Equal(t, "b.go", n.Path)
}

func TestPollFileChannelAtomicallyReplacesSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "editor-poll.json")
	ch := &PollFileChannel{Path: path}

	require.NoError(t, ch.Send(Notification{Path: "a.go", MemoryCount: 1}))
	require.NoError(t, ch.Send(Notification{Path: "b.go", MemoryCount: 2}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	var snapshot map[string]Notification
	require.NoError(t, json.Unmarshal(content, &snapshot))
	require.Len(t, snapshot, 2)
	require.Equal(t, 1, snapshot["a.go"].MemoryCount)
}

func TestDesktopChannelFailureIsNonFatal(t *testing.T) {
	ch := &DesktopChannel{}
	require.NoError(t, ch.Send(Notification{Path: "a.go"}))
}

func splitLines(s string) []string {
	var lines []string
	var cur []byte
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			if len(cur) > 0 {
				lines = append(lines, string(cur))
			}
			cur = nil
			continue
		}
		cur = append(cur, s[i])
	}
	if len(cur) > 0 {
		lines = append(lines, string(cur))
	}
	return lines
}
