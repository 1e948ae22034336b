// Package session tracks multi-turn conversation handles with idle-time
// expiry. The handle type is opaque to the table; it is only stored, handed
// back and evicted.
package session

import (
	"sync"
	"time"

	"server/internal/infra"
)

type entry[H any] struct {
	handle     H
	lastActive time.Time
}

// Table maps session ids to conversation handles. Lookups run a lazy TTL
// sweep first, so an idle session past its deadline is gone before it can be
// used again.
type Table[H any] struct {
	mu      sync.Mutex
	entries map[string]*entry[H]
	ttl     time.Duration
	now     func() time.Time
	logger  infra.Logger
}

// New constructs a table whose sessions expire after ttl of inactivity.
func New[H any](ttl time.Duration, logger infra.Logger) *Table[H] {
	return &Table[H]{
		entries: make(map[string]*entry[H]),
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
	}
}

// Put registers a handle and stamps it active now.
func (t *Table[H]) Put(id string, handle H) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[id] = &entry[H]{handle: handle, lastActive: t.now()}
}

// Get returns the handle for id if it is still resident. Expired sessions
// are evicted before the lookup; using one is a client-visible
// "session not found", never a silent re-create.
func (t *Table[H]) Get(id string) (H, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sweepLocked()

	e, ok := t.entries[id]
	if !ok {
		var zero H
		return zero, false
	}
	return e.handle, true
}

// Touch refreshes the idle deadline after a successful use.
func (t *Table[H]) Touch(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[id]; ok {
		e.lastActive = t.now()
	}
}

// Close removes a session explicitly and reports whether it existed.
func (t *Table[H]) Close(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[id]; !ok {
		return false
	}
	delete(t.entries, id)
	return true
}

// Len reports the number of resident sessions.
func (t *Table[H]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Table[H]) sweepLocked() {
	if t.ttl <= 0 {
		return
	}
	now := t.now()
	for id, e := range t.entries {
		if now.Sub(e.lastActive) > t.ttl {
			delete(t.entries, id)
			t.logger.Debug().Str("session_id", id).Msg("session: evicted idle session")
		}
	}
}
