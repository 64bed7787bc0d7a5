package build

import (
	"sync"

	"github.com/draftbench/livebuild/internal/shared/types"
)

// History keeps the most recent build summaries per session in memory.
// Nothing here is persisted; it backs the build-history API only.
type History struct {
	mu        sync.RWMutex
	size      int
	bySession map[string][]types.BuildSummary
}

// NewHistory creates a history ring keeping up to size entries per session.
func NewHistory(size int) *History {
	if size <= 0 {
		size = 20
	}
	return &History{
		size:      size,
		bySession: make(map[string][]types.BuildSummary),
	}
}

// Record appends a summary, evicting the oldest entry beyond capacity.
func (h *History) Record(sessionID string, summary types.BuildSummary) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries := append(h.bySession[sessionID], summary)
	if len(entries) > h.size {
		entries = entries[len(entries)-h.size:]
	}
	h.bySession[sessionID] = entries
}

// For returns the recorded summaries for a session, oldest first.
func (h *History) For(sessionID string) []types.BuildSummary {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]types.BuildSummary(nil), h.bySession[sessionID]...)
}

// Forget drops a session's history after removal.
func (h *History) Forget(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.bySession, sessionID)
}
