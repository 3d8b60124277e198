package fetchz

import (
	"sync"
	"time"
)

// Failure records one failed request.
type Failure struct {
	Key     string
	Kind    ErrorKind
	Message string
	At      time.Time
}

// failureRing is a thread-safe ring buffer of recent failures.
type failureRing struct {
	mu      sync.RWMutex
	entries []Failure
	head    int
	count   int
}

// newFailureRing creates a ring with the given capacity.
// A non-positive size disables the history and returns nil.
func newFailureRing(size int) *failureRing {
	if size <= 0 {
		return nil
	}
	return &failureRing{entries: make([]Failure, size)}
}

func (r *failureRing) push(f Failure) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.head] = f
	r.head = (r.head + 1) % len(r.entries)
	if r.count < len(r.entries) {
		r.count++
	}
}

func (r *failureRing) reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.entries)
	r.head = 0
	r.count = 0
}

// snapshot returns the recorded failures, oldest first.
func (r *failureRing) snapshot() []Failure {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return nil
	}

	size := len(r.entries)
	out := make([]Failure, r.count)
	start := (r.head - r.count + size) % size
	for i := range out {
		out[i] = r.entries[(start+i)%size]
	}
	return out
}
