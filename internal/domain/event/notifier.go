package event

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/draftbench/livebuild/internal/infrastructure/logging"
	"github.com/draftbench/livebuild/internal/shared/types"
)

// Type identifies a lifecycle event.
type Type string

const (
	TypeFileChanged      Type = "file-changed"
	TypeRebuildStarted   Type = "rebuild-started"
	TypeRebuildCompleted Type = "rebuild-completed"
)

// Event is a structured build-lifecycle notification pushed to UI clients.
type Event struct {
	Type        Type                `json:"type"`
	SessionID   string              `json:"sessionId"`
	FilePath    string              `json:"filePath,omitempty"`
	TriggerFile string              `json:"triggerFile,omitempty"`
	DurationMs  int64               `json:"duration,omitempty"`
	Success     *bool               `json:"success,omitempty"`
	BuildResult *types.BuildSummary `json:"buildResult,omitempty"`
	Error       string              `json:"error,omitempty"`
	Timestamp   time.Time           `json:"timestamp"`
}

type subscriber struct {
	ch chan Event
}

// Notifier fans lifecycle events out to all subscribers. Publishing never
// blocks: a subscriber that cannot keep up loses events rather than stalling
// the build pipeline.
type Notifier struct {
	mu      sync.RWMutex
	subs    map[int]*subscriber
	nextID  int
	dropped func() // optional drop counter hook
	log     *logging.Logger
}

// NewNotifier creates an event notifier.
func NewNotifier(log *logging.Logger) *Notifier {
	return &Notifier{
		subs: make(map[int]*subscriber),
		log:  log,
	}
}

// OnDrop registers a callback invoked whenever an event is dropped for a
// slow subscriber. Used to feed the metrics counter.
func (n *Notifier) OnDrop(fn func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dropped = fn
}

// Subscribe registers a listener and returns its event channel plus an
// unsubscribe function. The channel is closed on unsubscribe.
func (n *Notifier) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	sub := &subscriber{ch: make(chan Event, buffer)}
	n.subs[id] = sub
	n.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, unsubscribe
}

// Publish delivers evt to every subscriber without blocking.
func (n *Notifier) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, sub := range n.subs {
		select {
		case sub.ch <- evt:
		default:
			if n.dropped != nil {
				n.dropped()
			}
			n.log.Debug("Dropped event for slow subscriber",
				zap.String("type", string(evt.Type)),
				zap.String("session_id", evt.SessionID),
			)
		}
	}
}

// Subscribers returns the current subscriber count.
func (n *Notifier) Subscribers() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}
