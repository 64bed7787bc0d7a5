package watch

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/draftbench/livebuild/internal/infrastructure/logging"
)

// ChangeEvent is a raw file-change notification tagged with its owning
// session. Ephemeral: produced here, consumed by the filter/scheduler,
// never persisted.
type ChangeEvent struct {
	SessionID    string
	RelativePath string
	AbsolutePath string
	Timestamp    time.Time
}

// Watcher observes one session's workspace tree recursively and emits a
// ChangeEvent per affected path. fsnotify watches are per-directory, so
// subdirectories are added on creation.
type Watcher struct {
	sessionID string
	root      string
	fsw       *fsnotify.Watcher
	events    chan ChangeEvent
	log       *logging.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// New starts watching the workspace tree rooted at root for sessionID.
func New(sessionID, root string, log *logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		sessionID: sessionID,
		root:      root,
		fsw:       fsw,
		events:    make(chan ChangeEvent, 64),
		log:       log,
		done:      make(chan struct{}),
	}

	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.run()
	return w, nil
}

// Events returns the change stream. The channel is closed after Close.
func (w *Watcher) Events() <-chan ChangeEvent {
	return w.events
}

// SessionID returns the owning session.
func (w *Watcher) SessionID() string {
	return w.sessionID
}

// Close stops watching and releases all fsnotify resources. It blocks until
// the event loop has exited and the events channel is closed; events already
// buffered remain for the consumer to drain. The Hub is responsible for
// discarding that tail on teardown.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsw.Close()
		<-w.done
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.done)
	defer close(w.events)

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("Watcher error",
				zap.String("session_id", w.sessionID),
				zap.Error(err),
			)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".") {
		return
	}

	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}

	// New directories need their own watches before files land in them.
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil {
				w.log.Warn("Failed to watch new directory",
					zap.String("path", ev.Name),
					zap.Error(err),
				)
			}
			return
		}
	}

	w.events <- ChangeEvent{
		SessionID:    w.sessionID,
		RelativePath: rel,
		AbsolutePath: ev.Name,
		Timestamp:    time.Now(),
	}
}

// addRecursive adds watches for root and every non-ignored subdirectory.
func (w *Watcher) addRecursive(root string) error {
	return filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Directory may have vanished mid-walk; keep going.
		}
		if !info.IsDir() {
			return nil
		}
		base := filepath.Base(p)
		if p != root && (strings.HasPrefix(base, ".") || ignoredSegments[base]) {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
}
