package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftbench/livebuild/internal/domain/session"
	"github.com/draftbench/livebuild/internal/domain/workspace"
	"github.com/draftbench/livebuild/internal/infrastructure/logging"
)

type stubWatchers struct {
	startErr error
	started  []string
	stopped  []string
}

func (s *stubWatchers) Start(sessionID, workspaceRoot string) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.started = append(s.started, sessionID)
	return nil
}

func (s *stubWatchers) Stop(sessionID string) {
	s.stopped = append(s.stopped, sessionID)
}

func newSessionRouter(t *testing.T, hub Watchers) (*gin.Engine, *session.Manager) {
	t.Helper()
	template := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(template, "index.tsx"), []byte("export default 1"), 0o644))
	sessions := session.NewManager(t.TempDir(), template, logging.NewNop())

	h := NewHandlers(sessions, nil, nil, hub, workspace.NewMutex(time.Second, logging.NewNop()), logging.NewNop())
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/sessions", h.CreateSession)
	return r, sessions
}

func TestCreateSession(t *testing.T) {
	hub := &stubWatchers{}
	r, sessions := newSessionRouter(t, hub)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions", nil))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, sessions.Count())
	assert.Len(t, hub.started, 1)
}

func TestCreateSessionRollsBackWhenWatcherFails(t *testing.T) {
	hub := &stubWatchers{startErr: errors.New("inotify watch limit reached")}
	r, sessions := newSessionRouter(t, hub)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Zero(t, sessions.Count(), "unwatched session must not stay registered")
	assert.Empty(t, sessions.List())
}
