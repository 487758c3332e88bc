package session

import (
	"context"
	"sync"
	"time"

	"pennylogs/internal/core"
)

const DefaultInterval = time.Hour

// Manager starts a Watcher when a user signs in and stops it when their
// last session ends. It implements auth.StateListener.
type Manager struct {
	sub      Subscriber
	rec      Reconciler
	interval time.Duration
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	watchers map[string]*Watcher
	closed   bool
}

func NewManager(sub Subscriber, rec Reconciler, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		sub:      sub,
		rec:      rec,
		interval: interval,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		watchers: make(map[string]*Watcher),
	}
}

// WithClock replaces the clock handed to roll-forward.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) AuthStateChanged(_ context.Context, uid string, user *core.User) {
	if user != nil {
		m.Start(uid)
		return
	}
	m.Stop(uid)
}

// Start begins watching uid. A running watcher is kept; one that has exited,
// for example because its subscription failed, is replaced.
func (m *Manager) Start(uid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if w, ok := m.watchers[uid]; ok && !w.exited() {
		return
	}
	m.watchers[uid] = startWatcher(m.ctx, uid, m.sub, m.rec, m.interval, m.now)
}

// Stop tears down uid's watcher, if any.
func (m *Manager) Stop(uid string) {
	m.mu.Lock()
	w, ok := m.watchers[uid]
	delete(m.watchers, uid)
	m.mu.Unlock()
	if ok {
		w.Stop()
	}
}

// Active reports whether uid has a running watcher.
func (m *Manager) Active(uid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.watchers[uid]
	return ok && !w.exited()
}

// Close stops every watcher and refuses new ones.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	ws := m.watchers
	m.watchers = make(map[string]*Watcher)
	m.mu.Unlock()

	m.cancel()
	for _, w := range ws {
		w.Stop()
	}
}
