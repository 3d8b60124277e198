package fetchz

import "sync"

// Guard suppresses state dispatches once its owner has been torn down.
// It does not abort in-flight work; it only drops the transitions that work
// would have delivered.
type Guard struct {
	mu        sync.RWMutex
	cancelled bool
}

// NewGuard creates an uncancelled Guard.
func NewGuard() *Guard {
	return &Guard{}
}

// Cancel marks the guard as cancelled. Subsequent calls are no-ops.
// Cancel waits for any dispatch currently running under the guard.
func (g *Guard) Cancel() {
	g.mu.Lock()
	g.cancelled = true
	g.mu.Unlock()
}

// Cancelled reports whether Cancel has been called.
func (g *Guard) Cancelled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cancelled
}

// Dispatch runs fn unless the guard is cancelled, and reports whether fn ran.
// Cancel cannot complete while fn is running, so a dispatch is either fully
// applied before cancellation or not applied at all.
//
// fn must not call Cancel.
func (g *Guard) Dispatch(fn func()) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.cancelled {
		return false
	}
	fn()
	return true
}
