package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/draftbench/livebuild/internal/infrastructure/logging"
	"github.com/draftbench/livebuild/internal/infrastructure/monitoring"
	"github.com/draftbench/livebuild/internal/shared/fsx"
	"github.com/draftbench/livebuild/internal/shared/id"
)

var (
	// ErrNotFound means the session exists neither in memory nor on disk.
	ErrNotFound = errors.New("session: not found")

	// ErrBuildActive means removal was refused because a build is in flight.
	ErrBuildActive = errors.New("session: build in flight")
)

// Per-session directory layout.
const (
	WorkspaceDir  = "workspace"
	DistDir       = "dist"
	MobileDistDir = "mobile-dist"
)

// Session is an isolated, uniquely-identified copy of a source workspace
// undergoing live editing.
type Session struct {
	ID            string    `json:"sessionId"`
	Path          string    `json:"sessionPath"`
	WorkspacePath string    `json:"workspacePath"`
	StartTime     time.Time `json:"startTime"`
	LastModified  time.Time `json:"lastModified"`
}

// Dist returns the session's web build output directory.
func (s Session) Dist() string { return filepath.Join(s.Path, DistDir) }

// MobileDist returns the session's mobile build output directory.
func (s Session) MobileDist() string { return filepath.Join(s.Path, MobileDistDir) }

// BuildTracker reports whether a build is currently executing for a session.
// Implemented by the build orchestrator; injected to guard removal.
type BuildTracker interface {
	InFlight(sessionID string) bool
}

// Manager owns the authoritative in-memory table of active sessions and
// reconciles it with the sessions root on disk.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	root     string
	template string
	builds   BuildTracker
	log      *logging.Logger
	metrics  *monitoring.Metrics
}

// NewManager creates a session manager rooted at root, creating sessions
// from the template source tree at template.
func NewManager(root, template string, log *logging.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		root:     root,
		template: template,
		log:      log,
	}
}

// WithBuildTracker injects the in-flight build check used to guard Remove.
func (m *Manager) WithBuildTracker(bt BuildTracker) *Manager {
	m.builds = bt
	return m
}

// WithMetrics enables session lifecycle metrics.
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// Create allocates a new session: a fresh unique ID, an isolated workspace
// directory populated from the template tree, plus empty build output
// directories. The caller must hold the workspace mutex.
func (m *Manager) Create(ctx context.Context) (Session, error) {
	sid := id.NewSessionID().String()
	now := time.Now()

	sess := &Session{
		ID:            sid,
		Path:          filepath.Join(m.root, sid),
		WorkspacePath: filepath.Join(m.root, sid, WorkspaceDir),
		StartTime:     now,
		LastModified:  now,
	}

	for _, dir := range []string{sess.WorkspacePath, sess.Dist(), sess.MobileDist()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Session{}, fmt.Errorf("create session dirs: %w", err)
		}
	}

	if err := fsx.CopyTree(m.template, sess.WorkspacePath); err != nil {
		// Half-created directories must not linger as phantom sessions.
		os.RemoveAll(sess.Path)
		return Session{}, fmt.Errorf("copy template into workspace: %w", err)
	}

	if err := ctx.Err(); err != nil {
		os.RemoveAll(sess.Path)
		return Session{}, err
	}

	m.mu.Lock()
	m.sessions[sid] = sess
	total := len(m.sessions)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SessionsCreated.Inc()
		m.metrics.SessionsActive.Set(float64(total))
	}
	m.log.Info("Created session",
		zap.String("session_id", sid),
		zap.String("workspace", sess.WorkspacePath),
	)
	return *sess, nil
}

// Get looks a session up in memory only. The returned record is a copy;
// live pointers never leave the manager, so callers may read it without
// racing Touch.
func (m *Manager) Get(sessionID string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// Resolve looks a session up in memory, falling back to filesystem
// rehydration on a miss. A successful fallback re-registers the session.
func (m *Manager) Resolve(sessionID string) (Session, bool) {
	if sess, ok := m.Get(sessionID); ok {
		return sess, true
	}
	return m.LoadFromFilesystem(sessionID)
}

// LoadFromFilesystem reconstructs a Session from its on-disk directory when
// the in-memory table misses (process restart, out-of-band creation).
// Reports false if the directory is absent or malformed.
func (m *Manager) LoadFromFilesystem(sessionID string) (Session, bool) {
	if !id.IsValid(sessionID, id.SessionPrefix) {
		return Session{}, false
	}

	path := filepath.Join(m.root, sessionID)
	workspace := filepath.Join(path, WorkspaceDir)
	info, err := os.Stat(workspace)
	if err != nil || !info.IsDir() {
		return Session{}, false
	}

	start, err := id.Timestamp(sessionID)
	if err != nil {
		start = info.ModTime()
	}
	sess := &Session{
		ID:            sessionID,
		Path:          path,
		WorkspacePath: workspace,
		StartTime:     start,
		LastModified:  info.ModTime(),
	}

	m.mu.Lock()
	// Another caller may have rehydrated concurrently; first one wins.
	if existing, ok := m.sessions[sessionID]; ok {
		m.mu.Unlock()
		return *existing, true
	}
	m.sessions[sessionID] = sess
	total := len(m.sessions)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SessionsActive.Set(float64(total))
	}
	m.log.Info("Rehydrated session from filesystem", zap.String("session_id", sessionID))
	return *sess, true
}

// List returns copies of all known sessions, pruning any whose directory no
// longer exists on disk. This self-heals drift caused by out-of-band deletion.
func (m *Manager) List() []Session {
	m.mu.Lock()
	var out []Session
	var pruned []string
	for sid, sess := range m.sessions {
		if _, err := os.Stat(sess.Path); os.IsNotExist(err) {
			delete(m.sessions, sid)
			pruned = append(pruned, sid)
			continue
		}
		out = append(out, *sess)
	}
	total := len(m.sessions)
	m.mu.Unlock()

	for _, sid := range pruned {
		m.log.Warn("Pruned stale session missing from disk", zap.String("session_id", sid))
		if m.metrics != nil {
			m.metrics.SessionsPruned.Inc()
		}
	}
	if m.metrics != nil {
		m.metrics.SessionsActive.Set(float64(total))
	}
	return out
}

// Remove deletes the session directory and its in-memory record. Removal is
// refused while a build is in flight for the session. The caller must hold
// the workspace mutex.
func (m *Manager) Remove(ctx context.Context, sessionID string) error {
	sess, ok := m.Resolve(sessionID)
	if !ok {
		return ErrNotFound
	}
	if m.builds != nil && m.builds.InFlight(sessionID) {
		return fmt.Errorf("%w: refusing to remove %s", ErrBuildActive, sessionID)
	}

	if err := os.RemoveAll(sess.Path); err != nil {
		return fmt.Errorf("delete session directory: %w", err)
	}

	m.mu.Lock()
	delete(m.sessions, sessionID)
	total := len(m.sessions)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SessionsRemoved.Inc()
		m.metrics.SessionsActive.Set(float64(total))
	}
	m.log.Info("Removed session", zap.String("session_id", sessionID))
	return nil
}

// Touch records editing activity on a session.
func (m *Manager) Touch(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[sessionID]; ok {
		sess.LastModified = time.Now()
	}
}

// Sweep removes sessions idle longer than ttl. The caller must hold the
// workspace mutex. Returns the IDs removed.
func (m *Manager) Sweep(ctx context.Context, ttl time.Duration) []string {
	if ttl <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-ttl)

	m.mu.RLock()
	var expired []string
	for sid, sess := range m.sessions {
		if sess.LastModified.Before(cutoff) {
			expired = append(expired, sid)
		}
	}
	m.mu.RUnlock()

	var removed []string
	for _, sid := range expired {
		if err := m.Remove(ctx, sid); err != nil {
			m.log.Warn("Sweep skipped session", zap.String("session_id", sid), zap.Error(err))
			continue
		}
		removed = append(removed, sid)
	}
	return removed
}

// Count returns the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
