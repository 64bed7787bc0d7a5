package watch

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/draftbench/livebuild/internal/domain/event"
	"github.com/draftbench/livebuild/internal/domain/project"
	"github.com/draftbench/livebuild/internal/infrastructure/logging"
	"github.com/draftbench/livebuild/internal/infrastructure/monitoring"
)

// Scheduler receives build-relevant changes. Implemented by the rebuild
// scheduler; declared here so the hub stays decoupled from build internals.
type Scheduler interface {
	OnRelevantChange(sessionID, filePath string)
}

// Toucher records editing activity on a session. Implemented by the session
// registry.
type Toucher interface {
	Touch(sessionID string)
}

type watched struct {
	watcher *Watcher
	filter  *Filter
	stop    chan struct{} // closed first, so the consumer discards buffered events
	done    chan struct{} // closed when the consumer has exited
}

// Hub manages one workspace watcher per active session and routes their
// change streams through the relevance filter into the rebuild scheduler.
type Hub struct {
	mu       sync.Mutex
	watchers map[string]*watched

	scheduler Scheduler
	notifier  *event.Notifier
	toucher   Toucher
	log       *logging.Logger
	metrics   *monitoring.Metrics
	wg        sync.WaitGroup
}

// NewHub creates a watcher hub.
func NewHub(scheduler Scheduler, notifier *event.Notifier, toucher Toucher, log *logging.Logger) *Hub {
	return &Hub{
		watchers:  make(map[string]*watched),
		scheduler: scheduler,
		notifier:  notifier,
		toucher:   toucher,
		log:       log,
	}
}

// WithMetrics enables watcher throughput metrics.
func (h *Hub) WithMetrics(metrics *monitoring.Metrics) *Hub {
	h.metrics = metrics
	return h
}

// Start begins watching a session's workspace. If the session is already
// watched, the old watcher is fully closed before the new one starts so no
// stale events leak across the swap. Extra ignore globs come from the
// workspace's optional project config.
func (h *Hub) Start(sessionID, workspaceRoot string) error {
	h.stop(sessionID)

	cfg, err := project.Load(workspaceRoot)
	if err != nil {
		h.log.Warn("Ignoring malformed project config",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
	var ignores []string
	if cfg != nil {
		ignores = cfg.Ignore
	}

	w, err := New(sessionID, workspaceRoot, h.log)
	if err != nil {
		return fmt.Errorf("start watcher for %s: %w", sessionID, err)
	}

	entry := &watched{
		watcher: w,
		filter:  NewFilter(ignores),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	h.mu.Lock()
	h.watchers[sessionID] = entry
	h.mu.Unlock()

	h.wg.Add(1)
	go h.consume(entry)

	h.log.Info("Watching workspace",
		zap.String("session_id", sessionID),
		zap.String("root", workspaceRoot),
	)
	return nil
}

// Stop fully tears down the watcher for a session, if any.
func (h *Hub) Stop(sessionID string) {
	h.stop(sessionID)
}

// stop tears a watcher down and waits for its consumer to exit. No event
// from the old watcher generation, buffered ones included, is delivered
// after return.
func (h *Hub) stop(sessionID string) {
	h.mu.Lock()
	entry, ok := h.watchers[sessionID]
	if ok {
		delete(h.watchers, sessionID)
	}
	h.mu.Unlock()

	if ok {
		close(entry.stop)
		entry.watcher.Close()
		<-entry.done
		h.log.Info("Stopped watching workspace", zap.String("session_id", sessionID))
	}
}

// StopAll closes every watcher and waits for their consumers to drain.
func (h *Hub) StopAll() {
	h.mu.Lock()
	entries := make([]*watched, 0, len(h.watchers))
	for sid, entry := range h.watchers {
		entries = append(entries, entry)
		delete(h.watchers, sid)
	}
	h.mu.Unlock()

	for _, entry := range entries {
		close(entry.stop)
		entry.watcher.Close()
	}
	h.wg.Wait()
}

// Watching reports whether a session currently has an active watcher.
func (h *Hub) Watching(sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.watchers[sessionID]
	return ok
}

func (h *Hub) consume(entry *watched) {
	defer h.wg.Done()
	defer close(entry.done)

	for ev := range entry.watcher.Events() {
		select {
		case <-entry.stop:
			continue // Torn down; drain the buffer without acting on it.
		default:
		}
		if !entry.filter.Relevant(ev.RelativePath) {
			if h.metrics != nil {
				h.metrics.ChangeEvents.WithLabelValues("ignored").Inc()
			}
			continue
		}
		if h.metrics != nil {
			h.metrics.ChangeEvents.WithLabelValues("relevant").Inc()
		}

		h.log.Debug("Relevant change",
			zap.String("session_id", ev.SessionID),
			zap.String("path", ev.RelativePath),
		)

		if h.toucher != nil {
			h.toucher.Touch(ev.SessionID)
		}
		h.notifier.Publish(event.Event{
			Type:      event.TypeFileChanged,
			SessionID: ev.SessionID,
			FilePath:  ev.RelativePath,
			Timestamp: ev.Timestamp,
		})
		h.scheduler.OnRelevantChange(ev.SessionID, ev.RelativePath)
	}
}
