// Package testing provides test utilities and helpers for fetchz executor testing.
package testing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/fetchz"
)

// TestItem is a standard payload type for testing fetchz executors.
// It implements fetchz.Validator.
type TestItem struct {
	ID      string `yaml:"id" json:"id"`
	Title   string `yaml:"title" json:"title"`
	Checked bool   `yaml:"checked" json:"checked"`
}

// Validate implements fetchz.Validator.
func (i TestItem) Validate() error {
	if i.ID == "" {
		return errors.New("id is required")
	}
	return nil
}

// WaitFor polls a condition until it returns true or timeout is reached.
// Returns true if the condition was met, false if timeout occurred.
func WaitFor(t *testing.T, timeout time.Duration, condition func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// WaitForStatus waits until the executor reaches the expected status or timeout occurs.
func WaitForStatus[T any](t *testing.T, e *fetchz.Executor[T], expected fetchz.Status, timeout time.Duration) bool {
	t.Helper()
	return WaitFor(t, timeout, func() bool {
		return e.State().Status == expected
	})
}

// RequireStatus fails the test immediately if the executor is not in the expected status.
func RequireStatus[T any](t *testing.T, e *fetchz.Executor[T], expected fetchz.Status) {
	t.Helper()
	if got := e.State().Status; got != expected {
		t.Fatalf("expected status %s, got %s (error %q)", expected, got, e.State().Error)
	}
}

// RequireData fails the test if the executor holds no fetched data or the data doesn't match.
func RequireData[T any](t *testing.T, e *fetchz.Executor[T], check func(T) bool) {
	t.Helper()
	data, ok := e.State().Value()
	if !ok {
		t.Fatalf("expected fetched data, got status %s", e.State().Status)
	}
	if !check(data) {
		t.Fatalf("data check failed: %+v", data)
	}
}

// Call is a transport call captured by RecordingTransport.
type Call struct {
	Key     string
	Options fetchz.CallOptions
}

// RecordingTransport is an in-memory fetchz.Transport that serves configured
// payloads and records every call it receives. Keys without a payload or
// error fail with status 404.
type RecordingTransport struct {
	mu       sync.Mutex
	payloads map[string][]byte
	errs     map[string]error
	calls    []Call
}

// NewRecordingTransport creates an empty RecordingTransport.
func NewRecordingTransport() *RecordingTransport {
	return &RecordingTransport{
		payloads: make(map[string][]byte),
		errs:     make(map[string]error),
	}
}

// Serve makes key return payload, clearing any configured error.
func (r *RecordingTransport) Serve(key string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads[key] = payload
	delete(r.errs, key)
}

// Fail makes key return err.
func (r *RecordingTransport) Fail(key string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[key] = err
}

// Send implements fetchz.Transport.
func (r *RecordingTransport) Send(_ context.Context, key string, opts fetchz.CallOptions) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, Call{Key: key, Options: opts})
	if err, ok := r.errs[key]; ok {
		return nil, err
	}
	payload, ok := r.payloads[key]
	if !ok {
		return nil, fetchz.StatusError(404)
	}
	return payload, nil
}

// Calls returns a copy of the recorded calls, oldest first.
func (r *RecordingTransport) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallCount returns the number of recorded calls.
func (r *RecordingTransport) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// NewTestExecutor creates a manual executor over a RecordingTransport for
// testing. The executor is closed when the test ends.
func NewTestExecutor[T any](t *testing.T) (*fetchz.Executor[T], *RecordingTransport) {
	t.Helper()
	transport := NewRecordingTransport()
	e := fetchz.New[T](transport).Manual()
	t.Cleanup(func() {
		e.Close()
	})
	return e, transport
}
