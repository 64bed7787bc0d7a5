package workspace

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/draftbench/livebuild/internal/infrastructure/logging"
)

// ErrWaitTimeout is returned to a waiter that queued longer than the
// configured threshold. The lock is NOT granted on timeout: a holder that
// overruns is a visible failure, not a license to corrupt shared state.
var ErrWaitTimeout = errors.New("workspace: lock wait timed out")

type waiter struct {
	ready chan struct{}
}

// Mutex is a cooperative single-holder lock over structural session
// operations (create, remove). Waiters are granted the lock in FIFO order.
// Per-build work does not use this lock; builds rely on the orchestrator's
// finer-grained in-flight dedup instead.
type Mutex struct {
	mu      sync.Mutex
	held    bool
	queue   []*waiter
	timeout time.Duration
	log     *logging.Logger
}

// NewMutex creates a workspace mutex. waitTimeout bounds how long a caller
// may queue before Acquire fails with ErrWaitTimeout; zero means wait forever.
func NewMutex(waitTimeout time.Duration, log *logging.Logger) *Mutex {
	return &Mutex{
		timeout: waitTimeout,
		log:     log,
	}
}

// Acquire takes the lock, queueing FIFO behind the current holder. It returns
// a release function that must be called exactly once. Acquire fails if ctx
// is cancelled or the wait timeout elapses first.
func (m *Mutex) Acquire(ctx context.Context) (func(), error) {
	m.mu.Lock()
	if !m.held {
		m.held = true
		m.mu.Unlock()
		return m.releaseFunc(), nil
	}

	w := &waiter{ready: make(chan struct{})}
	m.queue = append(m.queue, w)
	depth := len(m.queue)
	m.mu.Unlock()

	m.log.Debug("Queued for workspace lock", zap.Int("queue_depth", depth))

	var timeout <-chan time.Time
	if m.timeout > 0 {
		t := time.NewTimer(m.timeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case <-w.ready:
		// Ownership was transferred by the releasing holder.
		return m.releaseFunc(), nil
	case <-ctx.Done():
		if m.abandon(w) {
			return nil, ctx.Err()
		}
		// Granted concurrently with cancellation; hand it back.
		<-w.ready
		m.releaseFunc()()
		return nil, ctx.Err()
	case <-timeout:
		if m.abandon(w) {
			m.log.Error("Workspace lock wait timed out; holder may be stuck",
				zap.Duration("timeout", m.timeout),
			)
			return nil, ErrWaitTimeout
		}
		<-w.ready
		return m.releaseFunc(), nil
	}
}

// abandon removes w from the queue. It returns false if w was already
// granted the lock, in which case the caller owns it.
func (m *Mutex) abandon(w *waiter) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, q := range m.queue {
		if q == w {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return true
		}
	}
	return false
}

func (m *Mutex) releaseFunc() func() {
	var once sync.Once
	return func() {
		once.Do(m.release)
	}
}

func (m *Mutex) release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		m.held = false
		return
	}
	// Transfer ownership to the head waiter; held stays true.
	next := m.queue[0]
	m.queue = m.queue[1:]
	close(next.ready)
}

// Held reports whether the lock is currently taken.
func (m *Mutex) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held
}

// Waiters returns the current queue depth.
func (m *Mutex) Waiters() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
