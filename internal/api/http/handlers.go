package http

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/draftbench/livebuild/internal/domain/build"
	"github.com/draftbench/livebuild/internal/domain/session"
	"github.com/draftbench/livebuild/internal/domain/workspace"
	"github.com/draftbench/livebuild/internal/infrastructure/logging"
)

// Watchers manages per-session workspace watchers. Implemented by the watch
// hub; declared here so handlers stay decoupled from watcher internals.
type Watchers interface {
	Start(sessionID, workspaceRoot string) error
	Stop(sessionID string)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	sessions  *session.Manager
	orch      *build.Orchestrator
	scheduler *build.Scheduler
	hub       Watchers
	wsMutex   *workspace.Mutex
	log       *logging.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(
	sessions *session.Manager,
	orch *build.Orchestrator,
	scheduler *build.Scheduler,
	hub Watchers,
	wsMutex *workspace.Mutex,
	log *logging.Logger,
) *Handlers {
	return &Handlers{
		sessions:  sessions,
		orch:      orch,
		scheduler: scheduler,
		hub:       hub,
		wsMutex:   wsMutex,
		log:       log,
	}
}

// Root handles basic service identification
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "livebuild",
		"version": "0.3.0",
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"sessions":       h.sessions.Count(),
		"activeBuilds":   len(h.orch.Active()),
		"pendingBuilds":  len(h.scheduler.Pending()),
		"workspaceMutex": gin.H{"held": h.wsMutex.Held(), "waiters": h.wsMutex.Waiters()},
	})
}

// CreateSession allocates a new editing session from the template tree and
// starts watching its workspace.
func (h *Handlers) CreateSession(c *gin.Context) {
	release, err := h.wsMutex.Acquire(c.Request.Context())
	if err != nil {
		h.lockError(c, err)
		return
	}
	defer release()

	sess, err := h.sessions.Create(c.Request.Context())
	if err != nil {
		h.log.Error("Session creation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.hub.Start(sess.ID, sess.WorkspacePath); err != nil {
		h.log.Error("Watcher start failed", zap.String("session_id", sess.ID), zap.Error(err))
		// A session without a watcher would never auto-rebuild; roll it back
		// rather than hand out a half-alive session.
		if rmErr := h.sessions.Remove(c.Request.Context(), sess.ID); rmErr != nil {
			h.log.Error("Rollback of unwatched session failed",
				zap.String("session_id", sess.ID),
				zap.Error(rmErr),
			)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"session": sess})
}

// ListSessions returns all known sessions, pruning stale records.
func (h *Handlers) ListSessions(c *gin.Context) {
	sessions := h.sessions.List()
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// GetSession looks up one session, falling back to disk on a memory miss.
func (h *Handlers) GetSession(c *gin.Context) {
	sess, ok := h.sessions.Resolve(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

// DeleteSession stops watching and removes a session's directory and state.
func (h *Handlers) DeleteSession(c *gin.Context) {
	sessionID := c.Param("id")

	release, err := h.wsMutex.Acquire(c.Request.Context())
	if err != nil {
		h.lockError(c, err)
		return
	}
	defer release()

	if err := h.sessions.Remove(c.Request.Context(), sessionID); err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		case errors.Is(err, session.ErrBuildActive):
			c.JSON(http.StatusConflict, gin.H{"error": "build in flight, retry after it completes"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	h.hub.Stop(sessionID)
	h.scheduler.Cancel(sessionID)
	h.orch.ForgetHistory(sessionID)

	c.JSON(http.StatusOK, gin.H{"removed": sessionID})
}

// TriggerRebuild starts a manual rebuild, bypassing the debounce window.
func (h *Handlers) TriggerRebuild(c *gin.Context) {
	sessionID := c.Param("id")
	if _, ok := h.sessions.Resolve(sessionID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	// Detached context: the build outlives this request.
	go func() {
		if err := h.orch.ExecuteRebuild(context.Background(), sessionID, "manual"); err != nil {
			h.log.Warn("Manual rebuild failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"sessionId": sessionID,
		"status":    "rebuild requested",
	})
}

// RebuildStatus reports the auto-rebuild pipeline state.
func (h *Handlers) RebuildStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"pending": h.scheduler.Pending(),
		"active":  h.orch.Active(),
	})
}

// SessionBuilds returns the in-memory build history for a session.
func (h *Handlers) SessionBuilds(c *gin.Context) {
	sessionID := c.Param("id")
	if _, ok := h.sessions.Resolve(sessionID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	builds := h.orch.History(sessionID)
	c.JSON(http.StatusOK, gin.H{
		"sessionId": sessionID,
		"builds":    builds,
		"count":     len(builds),
	})
}

// ServeDist serves a session's web build output for preview.
func (h *Handlers) ServeDist(c *gin.Context) {
	sess, ok := h.sessions.Resolve(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	rel := strings.TrimPrefix(c.Param("filepath"), "/")
	if rel == "" {
		rel = "bundle.js"
	}
	clean := filepath.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, "../") || filepath.IsAbs(clean) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid path"})
		return
	}
	c.File(filepath.Join(sess.Dist(), clean))
}

func (h *Handlers) lockError(c *gin.Context, err error) {
	if errors.Is(err, workspace.ErrWaitTimeout) {
		h.log.Error("Workspace lock wait timed out", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "workspace busy, try again"})
		return
	}
	c.JSON(http.StatusRequestTimeout, gin.H{"error": err.Error()})
}
