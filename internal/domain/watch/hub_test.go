package watch

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftbench/livebuild/internal/domain/event"
	"github.com/draftbench/livebuild/internal/infrastructure/logging"
)

type recordingScheduler struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingScheduler) OnRelevantChange(sessionID, filePath string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, sessionID+":"+filePath)
}

func (r *recordingScheduler) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestHubRoutesRelevantChanges(t *testing.T) {
	root := t.TempDir()
	sched := &recordingScheduler{}
	notifier := event.NewNotifier(logging.NewNop())
	events, unsub := notifier.Subscribe(16)
	defer unsub()

	h := NewHub(sched, notifier, nil, logging.NewNop())
	require.NoError(t, h.Start("sess_a", root))
	defer h.StopAll()

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.tsx"), []byte("x"), 0o644))

	waitFor(t, func() bool { return len(sched.snapshot()) > 0 }, "scheduler never saw the change")
	assert.Contains(t, sched.snapshot(), "sess_a:app.tsx")
	for _, call := range sched.snapshot() {
		assert.NotContains(t, call, "notes.md", "irrelevant change reached the scheduler")
	}

	select {
	case evt := <-events:
		assert.Equal(t, event.TypeFileChanged, evt.Type)
		assert.Equal(t, "sess_a", evt.SessionID)
		assert.Equal(t, "app.tsx", evt.FilePath)
	case <-time.After(2 * time.Second):
		t.Fatal("no file-changed event published")
	}
}

func TestHubRestartReplacesWatcher(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	sched := &recordingScheduler{}
	notifier := event.NewNotifier(logging.NewNop())

	h := NewHub(sched, notifier, nil, logging.NewNop())
	require.NoError(t, h.Start("sess_a", rootA))
	require.NoError(t, h.Start("sess_a", rootB))
	defer h.StopAll()

	assert.True(t, h.Watching("sess_a"))

	// Changes in the superseded workspace must not surface.
	require.NoError(t, os.WriteFile(filepath.Join(rootA, "stale.tsx"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(rootB, "fresh.tsx"), []byte("x"), 0o644))

	waitFor(t, func() bool { return len(sched.snapshot()) > 0 }, "no change observed")
	for _, call := range sched.snapshot() {
		assert.NotContains(t, call, "stale.tsx")
	}
	assert.Contains(t, sched.snapshot(), "sess_a:fresh.tsx")
}

func TestHubStopDiscardsBufferedEvents(t *testing.T) {
	root := t.TempDir()
	sched := &recordingScheduler{}
	h := NewHub(sched, event.NewNotifier(logging.NewNop()), nil, logging.NewNop())
	require.NoError(t, h.Start("sess_a", root))

	// Queue a burst, then tear down immediately: whatever is still buffered
	// in the watcher must never reach the scheduler once Stop returns.
	for i := 0; i < 20; i++ {
		require.NoError(t, os.WriteFile(
			filepath.Join(root, "burst.tsx"),
			[]byte{byte(i)}, 0o644,
		))
	}
	h.Stop("sess_a")

	after := len(sched.snapshot())
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, after, len(sched.snapshot()),
		"change delivered after Stop returned")
}

func TestHubStop(t *testing.T) {
	root := t.TempDir()
	sched := &recordingScheduler{}
	h := NewHub(sched, event.NewNotifier(logging.NewNop()), nil, logging.NewNop())

	require.NoError(t, h.Start("sess_a", root))
	h.Stop("sess_a")
	assert.False(t, h.Watching("sess_a"))

	// Stopping an unknown session is a no-op.
	h.Stop("sess_unknown")
}

func TestHubProjectConfigIgnores(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "livebuild.yaml"),
		[]byte("ignore:\n  - \"generated/**\"\n"),
		0o644,
	))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "generated"), 0o755))

	sched := &recordingScheduler{}
	h := NewHub(sched, event.NewNotifier(logging.NewNop()), nil, logging.NewNop())
	require.NoError(t, h.Start("sess_a", root))
	defer h.StopAll()

	require.NoError(t, os.WriteFile(filepath.Join(root, "generated", "api.ts"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.ts"), []byte("x"), 0o644))

	waitFor(t, func() bool { return len(sched.snapshot()) > 0 }, "no change observed")
	assert.Contains(t, sched.snapshot(), "sess_a:app.ts")
	for _, call := range sched.snapshot() {
		assert.NotContains(t, call, "generated")
	}
}
