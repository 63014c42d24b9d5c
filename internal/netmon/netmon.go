// Package netmon observes network reachability and reports transitions.
//
// Subscriptions are edge-triggered: a callback fires only when the
// online/offline state actually flips, never on every poll. The signal is
// best-effort, it eventually reflects the true network state but makes no
// real-time guarantee.
package netmon

import (
	"sync"
)

// Monitor exposes the current reachability state plus an edge-triggered
// subscription.
type Monitor interface {
	// IsOnline reports the last observed reachability state.
	IsOnline() bool

	// Subscribe registers a callback fired on each state flip. The
	// returned cancel func unregisters it.
	Subscribe(fn func(online bool)) (cancel func())
}

// notifier implements the shared subscription bookkeeping for monitor
// implementations. The zero value starts offline with no subscribers.
type notifier struct {
	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(bool)
}

func (n *notifier) isOnline() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online
}

func (n *notifier) subscribe(fn func(bool)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.subs == nil {
		n.subs = make(map[int]func(bool))
	}

	id := n.nextID
	n.nextID++
	n.subs[id] = fn

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

// set records a new observation and notifies subscribers only on a true
// transition.
func (n *notifier) set(online bool) {
	n.mu.Lock()
	if n.online == online {
		n.mu.Unlock()
		return
	}
	n.online = online

	fns := make([]func(bool), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	// Callbacks run outside the lock so a subscriber may re-enter the
	// monitor (e.g. call IsOnline) without deadlocking.
	for _, fn := range fns {
		fn(online)
	}
}

// Manual is a monitor driven entirely by SetOnline calls. Used by tests
// and by CLI commands that force a known state.
type Manual struct {
	notifier
}

// NewManual creates a manual monitor with the given initial state.
func NewManual(online bool) *Manual {
	m := &Manual{}
	m.online = online
	return m
}

// IsOnline implements Monitor.
func (m *Manual) IsOnline() bool { return m.isOnline() }

// Subscribe implements Monitor.
func (m *Manual) Subscribe(fn func(online bool)) func() { return m.subscribe(fn) }

// SetOnline records a reachability observation. Subscribers fire only if
// the state changed.
func (m *Manual) SetOnline(online bool) { m.set(online) }
