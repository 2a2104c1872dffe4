// Package lock provides per-key mutual exclusion within one process.
//
// Each key owns a FIFO queue of waiters. The first caller for a key is
// admitted immediately; later callers block until every earlier caller has
// released. Empty queues are removed, so an idle Manager holds no state.
package lock

import "sync"

// Manager hands out exclusive, FIFO-fair critical sections keyed by an
// arbitrary string (typically a username). The zero value is not usable;
// construct with NewManager.
type Manager struct {
	mu     sync.Mutex
	queues map[string][]chan struct{}
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{queues: make(map[string][]chan struct{})}
}

// Acquire blocks until the caller holds key's critical section and returns
// the release function. Release is idempotent; the first call admits the
// next waiter or removes the now-empty queue.
func (m *Manager) Acquire(key string) (release func()) {
	ch := make(chan struct{})

	m.mu.Lock()
	q := append(m.queues[key], ch)
	m.queues[key] = q
	head := len(q) == 1
	m.mu.Unlock()

	if !head {
		<-ch
	}

	var once sync.Once
	return func() {
		once.Do(func() { m.release(key) })
	}
}

func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queues[key][1:]
	if len(q) == 0 {
		delete(m.queues, key)
		return
	}
	m.queues[key] = q
	close(q[0])
}
