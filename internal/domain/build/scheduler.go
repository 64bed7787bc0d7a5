package build

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/draftbench/livebuild/internal/infrastructure/logging"
	"github.com/draftbench/livebuild/internal/infrastructure/monitoring"
)

// PendingRebuild describes a scheduled, not-yet-fired rebuild.
type PendingRebuild struct {
	TriggerFile string    `json:"triggerFile"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

type pendingEntry struct {
	timer       *time.Timer
	triggerFile string
	scheduledAt time.Time
}

// Scheduler debounces bursts of relevant changes into a single rebuild per
// session. A new change for a session cancels and replaces its pending
// timer, so N changes inside one debounce window collapse into exactly one
// rebuild carrying the last observed file path. Sessions are independent.
type Scheduler struct {
	mu      sync.Mutex
	pending map[string]*pendingEntry

	delay   time.Duration
	run     func(sessionID, triggerFile string)
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// NewScheduler creates a rebuild scheduler. run is invoked on the timer
// goroutine once a session's debounce window closes without a newer change.
func NewScheduler(delay time.Duration, run func(sessionID, triggerFile string), log *logging.Logger) *Scheduler {
	return &Scheduler{
		pending: make(map[string]*pendingEntry),
		delay:   delay,
		run:     run,
		log:     log,
	}
}

// WithMetrics enables scheduling metrics.
func (s *Scheduler) WithMetrics(metrics *monitoring.Metrics) *Scheduler {
	s.metrics = metrics
	return s
}

// OnRelevantChange schedules a rebuild for sessionID, superseding any
// pending one.
func (s *Scheduler) OnRelevantChange(sessionID, filePath string) {
	s.mu.Lock()
	if prev, ok := s.pending[sessionID]; ok {
		prev.timer.Stop()
		if s.metrics != nil {
			s.metrics.RebuildsCoalesced.Inc()
		}
	}

	entry := &pendingEntry{
		triggerFile: filePath,
		scheduledAt: time.Now(),
	}
	entry.timer = time.AfterFunc(s.delay, func() {
		s.fire(sessionID, entry)
	})
	s.pending[sessionID] = entry
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RebuildsScheduled.Inc()
	}
	s.log.Debug("Scheduled rebuild",
		zap.String("session_id", sessionID),
		zap.String("trigger", filePath),
		zap.Duration("debounce", s.delay),
	)
}

// fire runs the rebuild if entry is still the session's current pending
// rebuild. A stopped timer can still race its own Stop; identity-checking
// the map entry makes superseded timers no-ops.
func (s *Scheduler) fire(sessionID string, entry *pendingEntry) {
	s.mu.Lock()
	current, ok := s.pending[sessionID]
	if !ok || current != entry {
		s.mu.Unlock()
		return
	}
	delete(s.pending, sessionID)
	s.mu.Unlock()

	s.run(sessionID, entry.triggerFile)
}

// Cancel drops any pending rebuild for sessionID. Returns whether one was
// pending.
func (s *Scheduler) Cancel(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.pending[sessionID]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(s.pending, sessionID)
	return true
}

// Pending returns a snapshot of all scheduled rebuilds keyed by session.
func (s *Scheduler) Pending() map[string]PendingRebuild {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]PendingRebuild, len(s.pending))
	for sid, entry := range s.pending {
		out[sid] = PendingRebuild{
			TriggerFile: entry.triggerFile,
			ScheduledAt: entry.scheduledAt,
		}
	}
	return out
}

// Stop cancels every pending rebuild. Used during shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sid, entry := range s.pending {
		entry.timer.Stop()
		delete(s.pending, sid)
	}
}
