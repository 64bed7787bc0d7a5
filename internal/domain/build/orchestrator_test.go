package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftbench/livebuild/internal/compiler"
	"github.com/draftbench/livebuild/internal/domain/event"
	"github.com/draftbench/livebuild/internal/domain/session"
	"github.com/draftbench/livebuild/internal/infrastructure/logging"
	"github.com/draftbench/livebuild/internal/shared/types"
)

type fakeCompiler struct {
	mu    sync.Mutex
	calls []compiler.Request

	delay     time.Duration
	failFor   map[string]error // keyed by platform; "" is web
	failEntry string           // fail any request for this entry file
	panicOn   string
}

func (f *fakeCompiler) Compile(ctx context.Context, req compiler.Request) (*compiler.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.panicOn == req.Options.Platform && f.panicOn != "" || (f.panicOn == "web" && req.Options.Platform == "") {
		panic("bundler exploded")
	}
	if err := f.failFor[req.Options.Platform]; err != nil {
		return nil, err
	}
	if f.failEntry != "" && req.Entry == f.failEntry {
		return nil, errors.New("cannot resolve entry " + req.Entry)
	}
	return &compiler.Result{
		Code:        []byte("bundle-code"),
		SourceMap:   []byte("bundle-map"),
		Duration:    time.Millisecond,
		OutputBytes: 11,
	}, nil
}

func (f *fakeCompiler) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type orchFixture struct {
	orch     *Orchestrator
	sessions *session.Manager
	events   <-chan event.Event
	web      *fakeCompiler
	mobile   *fakeCompiler
}

func newOrchFixture(t *testing.T, web, mobile *fakeCompiler) *orchFixture {
	t.Helper()
	template := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(template, "index.tsx"), []byte("app"), 0o644))

	sessions := session.NewManager(t.TempDir(), template, logging.NewNop())
	notifier := event.NewNotifier(logging.NewNop())
	events, unsub := notifier.Subscribe(32)
	t.Cleanup(unsub)

	orch := NewOrchestrator(sessions, web, mobile, notifier, Options{
		Platforms: []string{"android", "ios"},
		Entry:     "index.tsx",
	}, logging.NewNop())

	return &orchFixture{orch: orch, sessions: sessions, events: events, web: web, mobile: mobile}
}

func (fx *orchFixture) awaitEvent(t *testing.T, typ event.Type) event.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt := <-fx.events:
			if evt.Type == typ {
				return evt
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", typ)
		}
	}
}

func resultsByTarget(summary *types.BuildSummary) map[string]types.BuildResult {
	out := make(map[string]types.BuildResult)
	for _, r := range summary.Results {
		out[r.Target] = r
	}
	return out
}

func TestRebuildSuccess(t *testing.T) {
	fx := newOrchFixture(t, &fakeCompiler{}, &fakeCompiler{})
	sess, err := fx.sessions.Create(context.Background())
	require.NoError(t, err)

	require.NoError(t, fx.orch.ExecuteRebuild(context.Background(), sess.ID, "index.tsx"))

	started := fx.awaitEvent(t, event.TypeRebuildStarted)
	assert.Equal(t, sess.ID, started.SessionID)
	assert.Equal(t, "index.tsx", started.TriggerFile)

	completed := fx.awaitEvent(t, event.TypeRebuildCompleted)
	require.NotNil(t, completed.Success)
	assert.True(t, *completed.Success)
	require.NotNil(t, completed.BuildResult)
	require.Len(t, completed.BuildResult.Results, 3)

	byTarget := resultsByTarget(completed.BuildResult)
	for _, target := range []string{"web", "mobile:android", "mobile:ios"} {
		require.Contains(t, byTarget, target)
		assert.True(t, byTarget[target].Success, target)
	}

	// Outputs land in the session's layout.
	assert.FileExists(t, filepath.Join(sess.Dist(), "bundle.js"))
	assert.FileExists(t, filepath.Join(sess.Dist(), "bundle.js.map"))
	assert.FileExists(t, filepath.Join(sess.MobileDist(), sess.ID+".android.bundle"))
	assert.FileExists(t, filepath.Join(sess.MobileDist(), sess.ID+".ios.bundle"))

	// History recorded the attempt.
	history := fx.orch.History(sess.ID)
	require.Len(t, history, 1)
	assert.True(t, history[0].Success)
}

func TestDuplicateRequestDropped(t *testing.T) {
	web := &fakeCompiler{delay: 300 * time.Millisecond}
	fx := newOrchFixture(t, web, &fakeCompiler{})
	sess, err := fx.sessions.Create(context.Background())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		fx.orch.ExecuteRebuild(context.Background(), sess.ID, "first.ts")
	}()

	for !fx.orch.InFlight(sess.ID) {
		time.Sleep(time.Millisecond)
	}

	// Second request while building: dropped, returns immediately.
	start := time.Now()
	require.NoError(t, fx.orch.ExecuteRebuild(context.Background(), sess.ID, "second.ts"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	active := fx.orch.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "first.ts", active[sess.ID].TriggerFile)

	<-done
	assert.False(t, fx.orch.InFlight(sess.ID))
	assert.Equal(t, 1, web.callCount(), "dropped request must not reach the compiler")
}

func TestMobileFailureIsolated(t *testing.T) {
	mobile := &fakeCompiler{failFor: map[string]error{"ios": errors.New("missing native config")}}
	fx := newOrchFixture(t, &fakeCompiler{}, mobile)
	sess, err := fx.sessions.Create(context.Background())
	require.NoError(t, err)

	require.NoError(t, fx.orch.ExecuteRebuild(context.Background(), sess.ID, "app.tsx"))

	completed := fx.awaitEvent(t, event.TypeRebuildCompleted)
	require.NotNil(t, completed.Success)
	assert.True(t, *completed.Success, "iOS failure must not fail the attempt")

	byTarget := resultsByTarget(completed.BuildResult)
	assert.True(t, byTarget["web"].Success)
	assert.True(t, byTarget["mobile:android"].Success)
	assert.False(t, byTarget["mobile:ios"].Success)
	assert.Contains(t, byTarget["mobile:ios"].Error, "missing native config")
}

func TestWebFailureFailsAttempt(t *testing.T) {
	web := &fakeCompiler{failFor: map[string]error{"": errors.New("syntax error in index.tsx")}}
	fx := newOrchFixture(t, web, &fakeCompiler{})
	sess, err := fx.sessions.Create(context.Background())
	require.NoError(t, err)

	require.NoError(t, fx.orch.ExecuteRebuild(context.Background(), sess.ID, "index.tsx"))

	completed := fx.awaitEvent(t, event.TypeRebuildCompleted)
	require.NotNil(t, completed.Success)
	assert.False(t, *completed.Success)

	// Mobile targets were still attempted and reported.
	byTarget := resultsByTarget(completed.BuildResult)
	require.Len(t, byTarget, 3)
	assert.True(t, byTarget["mobile:android"].Success)
	assert.True(t, byTarget["mobile:ios"].Success)
}

func TestUnknownSession(t *testing.T) {
	fx := newOrchFixture(t, &fakeCompiler{}, &fakeCompiler{})

	err := fx.orch.ExecuteRebuild(context.Background(), "sess_01JMISSING00000000000000000", "x.ts")
	assert.ErrorIs(t, err, session.ErrNotFound)

	completed := fx.awaitEvent(t, event.TypeRebuildCompleted)
	require.NotNil(t, completed.Success)
	assert.False(t, *completed.Success)
	assert.Contains(t, completed.Error, "not found")
	assert.False(t, fx.orch.InFlight("sess_01JMISSING00000000000000000"))
}

func TestCompilerPanicContained(t *testing.T) {
	web := &fakeCompiler{panicOn: "web"}
	fx := newOrchFixture(t, web, &fakeCompiler{})
	sess, err := fx.sessions.Create(context.Background())
	require.NoError(t, err)

	require.NoError(t, fx.orch.ExecuteRebuild(context.Background(), sess.ID, "index.tsx"))

	completed := fx.awaitEvent(t, event.TypeRebuildCompleted)
	require.NotNil(t, completed.Success)
	assert.False(t, *completed.Success)

	byTarget := resultsByTarget(completed.BuildResult)
	assert.Contains(t, byTarget["web"].Error, "panic")
	assert.True(t, byTarget["mobile:android"].Success)

	// ActiveBuild entry must be gone either way.
	assert.False(t, fx.orch.InFlight(sess.ID))
}

func TestConcurrentSessionsIndependent(t *testing.T) {
	web := &fakeCompiler{delay: 50 * time.Millisecond, failEntry: "broken.tsx"}
	fx := newOrchFixture(t, web, &fakeCompiler{})

	s1, err := fx.sessions.Create(context.Background())
	require.NoError(t, err)
	s2, err := fx.sessions.Create(context.Background())
	require.NoError(t, err)

	// Make s2's web build fail; s1 must be unaffected.
	require.NoError(t, os.WriteFile(
		filepath.Join(s2.WorkspacePath, "livebuild.yaml"),
		[]byte("entry: broken.tsx\n"), 0o644,
	))

	var wg sync.WaitGroup
	for _, sess := range []session.Session{s1, s2} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			fx.orch.ExecuteRebuild(context.Background(), id, "app.ts")
		}(sess.ID)
	}
	wg.Wait()

	completedFor := map[string]bool{}
	deadline := time.After(2 * time.Second)
	for len(completedFor) < 2 {
		select {
		case evt := <-fx.events:
			if evt.Type == event.TypeRebuildCompleted {
				completedFor[evt.SessionID] = true
			}
		case <-deadline:
			t.Fatal("both sessions should reach rebuild-completed")
		}
	}
	assert.True(t, completedFor[s1.ID])
	assert.True(t, completedFor[s2.ID])
}

func TestProjectConfigOverridesPlatforms(t *testing.T) {
	mobile := &fakeCompiler{}
	fx := newOrchFixture(t, &fakeCompiler{}, mobile)
	sess, err := fx.sessions.Create(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(
		filepath.Join(sess.WorkspacePath, "livebuild.yaml"),
		[]byte("platforms:\n  - ios\n"), 0o644,
	))

	require.NoError(t, fx.orch.ExecuteRebuild(context.Background(), sess.ID, "index.tsx"))

	completed := fx.awaitEvent(t, event.TypeRebuildCompleted)
	require.Len(t, completed.BuildResult.Results, 2)
	byTarget := resultsByTarget(completed.BuildResult)
	assert.Contains(t, byTarget, "mobile:ios")
	assert.NotContains(t, byTarget, "mobile:android")
}
