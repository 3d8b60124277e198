package activity

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
)

var (
	// ErrNotFound is returned for an unknown activity id.
	ErrNotFound = errors.New("activity not found")

	// ErrEmptyDescription is returned when creating an activity without a description.
	ErrEmptyDescription = errors.New("description is required")
)

// Store holds activities in memory, newest first.
type Store struct {
	mu    sync.RWMutex
	items []Activity
	clock clockz.Clock
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{clock: clockz.RealClock}
}

// WithClock sets the clock used to stamp new activities.
func (s *Store) WithClock(clock clockz.Clock) *Store {
	s.clock = clock
	return s
}

// List returns a copy of all activities.
func (s *Store) List() Activities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(Activities, len(s.items))
	copy(out, s.items)
	return out
}

// Get returns the activity with the given id.
func (s *Store) Get(id string) (Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.index(id); i >= 0 {
		return s.items[i], nil
	}
	return Activity{}, ErrNotFound
}

// Add creates an activity and places it at the top of the list.
func (s *Store) Add(description string) (Activity, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return Activity{}, ErrEmptyDescription
	}

	a := Activity{
		ID:          uuid.New().String(),
		Description: description,
		Created:     s.clock.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]Activity{a}, s.items...)
	return a, nil
}

// SetChecked updates the checked flag of an activity.
func (s *Store) SetChecked(id string, checked bool) (Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return Activity{}, ErrNotFound
	}
	s.items[i].Checked = checked
	return s.items[i], nil
}

// Delete removes an activity and returns it.
func (s *Store) Delete(id string) (Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return Activity{}, ErrNotFound
	}
	removed := s.items[i]
	s.items = append(s.items[:i], s.items[i+1:]...)
	return removed, nil
}

// index must be called with the lock held.
func (s *Store) index(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}
