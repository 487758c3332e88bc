// Package events fans out per-user expense snapshots to subscribers.
package events

import (
	"sync"
	"time"

	"pennylogs/internal/core"
)

// Snapshot is the full expense list of one user at a point in time.
type Snapshot struct {
	UserID   string         `json:"userId"`
	Expenses []core.Expense `json:"expenses"`
	At       time.Time      `json:"at"`
}

type subscriber struct {
	ch     chan Snapshot
	closed bool
}

// Hub delivers snapshots per user. Each subscriber holds at most one pending
// snapshot; a newer one replaces it, so slow readers never block publishers.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{})}
}

// Subscribe registers for uid's snapshots. The returned function unsubscribes
// and closes the channel; calling it again is a no-op.
func (h *Hub) Subscribe(uid string) (<-chan Snapshot, func()) {
	sub := &subscriber{ch: make(chan Snapshot, 1)}

	h.mu.Lock()
	set, ok := h.subs[uid]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[uid] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	return sub.ch, func() { h.unsubscribe(uid, sub) }
}

func (h *Hub) unsubscribe(uid string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
	if set, ok := h.subs[uid]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, uid)
		}
	}
}

// Publish hands snap to every subscriber of uid without blocking.
func (h *Hub) Publish(uid string, snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[uid] {
		offer(sub.ch, snap)
	}
}

// offer replaces any pending snapshot with snap. Callers hold h.mu, so no
// other sender can refill the buffer between the drain and the send.
func offer(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

// Subscribers reports how many subscriptions uid has.
func (h *Hub) Subscribers(uid string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[uid])
}

// Close unsubscribes everyone.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for uid, set := range h.subs {
		for sub := range set {
			sub.closed = true
			close(sub.ch)
		}
		delete(h.subs, uid)
	}
}
