package fetchz

import "sync"

// RequestState is a snapshot of one logical request, suitable for rendering.
// Data is only meaningful when Status is StatusFetched and Error only when
// Status is StatusErrored. Idle and Fetching carry zero values for both.
type RequestState[T any] struct {
	Status Status
	Data   T
	Error  string
}

// Value returns the payload and true if the request resolved successfully.
func (s RequestState[T]) Value() (T, bool) {
	if s.Status != StatusFetched {
		var zero T
		return zero, false
	}
	return s.Data, true
}

// Failure returns the failure message and true if the request failed.
func (s RequestState[T]) Failure() (string, bool) {
	if s.Status != StatusErrored {
		return "", false
	}
	return s.Error, true
}

// Machine tracks the lifecycle of a request: Idle, Fetching, then Fetched or
// Errored. Every Begin issues a new sequence number, and only the resolution
// carrying the latest one is applied. Earlier calls that resolve late are
// dropped, so the most recent call always wins.
type Machine[T any] struct {
	mu    sync.RWMutex
	state RequestState[T]
	seq   uint64
}

// NewMachine creates a Machine in the Idle state.
func NewMachine[T any]() *Machine[T] {
	return &Machine[T]{}
}

// State returns the current snapshot.
func (m *Machine[T]) State() RequestState[T] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Latest returns the sequence number of the most recent Begin, or zero if
// no request has started.
func (m *Machine[T]) Latest() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.seq
}

// Begin moves the machine to Fetching, discarding any previous payload or
// error, and returns the sequence number for the new call together with the
// state it replaced.
func (m *Machine[T]) Begin() (uint64, RequestState[T]) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state
	m.seq++
	m.state = RequestState[T]{Status: StatusFetching}
	return m.seq, from
}

// Succeed moves the machine to Fetched with data if seq is still the latest
// call. It reports the replaced state and whether the transition was applied.
func (m *Machine[T]) Succeed(seq uint64, data T) (RequestState[T], bool) {
	return m.resolve(seq, RequestState[T]{Status: StatusFetched, Data: data})
}

// Fail moves the machine to Errored with message if seq is still the latest
// call. It reports the replaced state and whether the transition was applied.
func (m *Machine[T]) Fail(seq uint64, message string) (RequestState[T], bool) {
	return m.resolve(seq, RequestState[T]{Status: StatusErrored, Error: message})
}

func (m *Machine[T]) resolve(seq uint64, next RequestState[T]) (RequestState[T], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state
	if seq != m.seq || from.Status != StatusFetching {
		return from, false
	}
	m.state = next
	return from, true
}
