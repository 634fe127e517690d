package supervisor

import (
	"sync"
	"time"
)

// CompletedIDMax and CompletedIDTTL bound the window the supervisor
// remembers finished command ids in, so a cmd frame retransmitted after
// the dispatcher gave up waiting on it (but the extension already ran
// it) is recognized and not executed twice.
const (
	CompletedIDMax = 2000
	CompletedIDTTL = 2 * time.Minute
)

type completedEntry struct {
	id       string
	expireAt time.Time
}

// idTracker implements the supervisor's duplicate-request-id guard: an
// id currently being worked is "active"; once finished it moves to a
// bounded, TTL-expiring "recently completed" ring so a late duplicate
// delivery is rejected instead of re-executed.
type idTracker struct {
	mu        sync.Mutex
	active    map[string]bool
	completed []completedEntry
	seen      map[string]bool
}

func newIDTracker() *idTracker {
	return &idTracker{
		active:    make(map[string]bool),
		completed: make([]completedEntry, 0, CompletedIDMax),
		seen:      make(map[string]bool),
	}
}

// Admit reports whether id is new (neither active nor recently
// completed) and, if so, marks it active. A false return means the
// caller must reject the command as a duplicate. Equivalent to
// IsDuplicate followed by MarkActive, for callers that don't need the
// two admission checks split apart.
func (t *idTracker) Admit(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictExpiredLocked()

	if t.active[id] || t.seen[id] {
		return false
	}
	t.active[id] = true
	return true
}

// IsDuplicate reports whether id is currently active or was recently
// completed, without marking it active. The supervisor's admission
// order runs the duplicate check before the queue-capacity check, so
// marking active has to wait until both have passed.
func (t *idTracker) IsDuplicate(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictExpiredLocked()
	return t.active[id] || t.seen[id]
}

// MarkActive records id as in-flight. Call only once both admission
// checks (IsDuplicate, then queue capacity) have passed.
func (t *idTracker) MarkActive(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active[id] = true
}

// Complete moves id from active to the recently-completed set.
func (t *idTracker) Complete(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, id)
	if t.seen[id] {
		return
	}
	t.seen[id] = true
	t.completed = append(t.completed, completedEntry{id: id, expireAt: time.Now().Add(CompletedIDTTL)})
	if len(t.completed) > CompletedIDMax {
		oldest := t.completed[0]
		t.completed = t.completed[1:]
		delete(t.seen, oldest.id)
	}
}

func (t *idTracker) evictExpiredLocked() {
	now := time.Now()
	i := 0
	for i < len(t.completed) && now.After(t.completed[i].expireAt) {
		delete(t.seen, t.completed[i].id)
		i++
	}
	if i > 0 {
		t.completed = t.completed[i:]
	}
}
