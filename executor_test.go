package fetchz

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

// TestActivity mirrors the payload served by the activities endpoint.
type TestActivity struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Checked     bool   `json:"checked"`
	Created     string `json:"created"`
}

const activitiesJSON = `[{"id":"1","description":"buy milk","checked":false,"created":"2024-01-01T00:00:00Z"}]`

// stubTransport serves fixed payloads per key and records every call.
type stubTransport struct {
	mu       sync.Mutex
	payloads map[string][]byte
	errs     map[string]error
	gates    map[string]chan struct{}
	entered  chan string
	calls    []recordedCall
}

type recordedCall struct {
	Key     string
	Options CallOptions
}

func newStubTransport() *stubTransport {
	return &stubTransport{
		payloads: make(map[string][]byte),
		errs:     make(map[string]error),
		gates:    make(map[string]chan struct{}),
		entered:  make(chan string, 16),
	}
}

func (s *stubTransport) serve(key, payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads[key] = []byte(payload)
	delete(s.errs, key)
}

func (s *stubTransport) fail(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[key] = err
}

// hold makes calls for key block until the returned function is called.
func (s *stubTransport) hold(key string) func() {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gates[key] = gate
	s.mu.Unlock()
	return func() { close(gate) }
}

func (s *stubTransport) Send(ctx context.Context, key string, opts CallOptions) ([]byte, error) {
	s.mu.Lock()
	s.calls = append(s.calls, recordedCall{Key: key, Options: opts})
	gate := s.gates[key]
	s.mu.Unlock()

	s.entered <- key
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errs[key]; ok {
		return nil, err
	}
	payload, ok := s.payloads[key]
	if !ok {
		return nil, StatusError(404)
	}
	return payload, nil
}

func (s *stubTransport) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubTransport) lastCall() recordedCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

func (s *stubTransport) waitEntered(t *testing.T, key string) {
	t.Helper()
	select {
	case got := <-s.entered:
		if got != key {
			t.Fatalf("expected transport call for %q, got %q", key, got)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for transport call for %q", key)
	}
}

// transitionLog records every transition an executor applies.
type transitionLog[T any] struct {
	mu      sync.Mutex
	entries []RequestState[T]
}

func (l *transitionLog[T]) record(_, to RequestState[T]) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, to)
}

func (l *transitionLog[T]) statuses() []Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Status, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Status
	}
	return out
}

func equalStatuses(a, b []Status) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestExecutor_ColdFetch(t *testing.T) {
	ctx := context.Background()
	transport := newStubTransport()
	transport.serve("activities", activitiesJSON)

	log := &transitionLog[[]TestActivity]{}
	exec := New[[]TestActivity](transport).OnChange(log.record)
	defer exec.Close()

	if exec.State().Status != StatusIdle {
		t.Fatalf("expected idle before execute, got %s", exec.State().Status)
	}

	if err := exec.Execute(ctx, "activities"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	want := []Status{StatusFetching, StatusFetched}
	if got := log.statuses(); !equalStatuses(got, want) {
		t.Errorf("expected transitions %v, got %v", want, got)
	}

	data, ok := exec.State().Value()
	if !ok {
		t.Fatal("expected fetched data")
	}
	if len(data) != 1 || data[0].Description != "buy milk" || data[0].Checked {
		t.Errorf("unexpected data %+v", data)
	}
	if exec.State().Error != "" {
		t.Errorf("expected no error, got %q", exec.State().Error)
	}

	cached, ok := exec.Cached("activities")
	if !ok || len(cached) != 1 {
		t.Errorf("expected cache to hold the payload, got %+v (ok=%v)", cached, ok)
	}
}

func TestExecutor_CacheHitShortCircuits(t *testing.T) {
	ctx := context.Background()
	transport := newStubTransport()
	transport.serve("activities", activitiesJSON)

	exec := New[[]TestActivity](transport)
	defer exec.Close()

	if err := exec.Execute(ctx, "activities"); err != nil {
		t.Fatalf("first Execute failed: %v", err)
	}
	first, _ := exec.State().Value()

	// Upstream changes are not visible until the entry is invalidated.
	transport.serve("activities", `[]`)

	log := &transitionLog[[]TestActivity]{}
	exec.OnChange(log.record)

	if err := exec.Execute(ctx, "activities"); err != nil {
		t.Fatalf("second Execute failed: %v", err)
	}

	if n := transport.callCount(); n != 1 {
		t.Errorf("expected 1 transport call, got %d", n)
	}
	want := []Status{StatusFetching, StatusFetched}
	if got := log.statuses(); !equalStatuses(got, want) {
		t.Errorf("expected transitions %v, got %v", want, got)
	}

	second, _ := exec.State().Value()
	if len(second) != 1 || &second[0] != &first[0] {
		t.Error("expected the identical cached instance")
	}
}

func TestExecutor_Failure(t *testing.T) {
	ctx := context.Background()
	transport := newStubTransport()
	transport.fail("activities", errors.New("network timeout"))

	log := &transitionLog[[]TestActivity]{}
	exec := New[[]TestActivity](transport).OnChange(log.record)
	defer exec.Close()

	err := exec.Execute(ctx, "activities")
	if err == nil {
		t.Fatal("expected error")
	}

	var re *RequestError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RequestError, got %T", err)
	}
	if re.Kind != KindNetwork || re.Key != "activities" {
		t.Errorf("expected network failure for activities, got %s/%q", re.Kind, re.Key)
	}

	state := exec.State()
	if state.Status != StatusErrored || state.Error != "network timeout" {
		t.Errorf("expected Errored{network timeout}, got %+v", state)
	}
	if _, ok := exec.Cached("activities"); ok {
		t.Error("expected no cache entry after failure")
	}
	want := []Status{StatusFetching, StatusErrored}
	if got := log.statuses(); !equalStatuses(got, want) {
		t.Errorf("expected transitions %v, got %v", want, got)
	}
	if exec.LastError() == nil {
		t.Error("expected LastError to be set")
	}
}

func TestExecutor_StatusFailure(t *testing.T) {
	exec := New[[]TestActivity](newStubTransport())
	defer exec.Close()

	err := exec.Execute(context.Background(), "missing")

	var re *RequestError
	if !errors.As(err, &re) || re.Kind != KindStatus || re.Code != 404 {
		t.Fatalf("expected status 404, got %v", err)
	}
	if exec.State().Error != "request failed with status code 404" {
		t.Errorf("unexpected message %q", exec.State().Error)
	}
}

func TestExecutor_DecodeFailure(t *testing.T) {
	transport := newStubTransport()
	transport.serve("activities", `{not json`)

	exec := New[[]TestActivity](transport)
	defer exec.Close()

	err := exec.Execute(context.Background(), "activities")

	var re *RequestError
	if !errors.As(err, &re) || re.Kind != KindDecode {
		t.Fatalf("expected decode failure, got %v", err)
	}
	if exec.State().Status != StatusErrored {
		t.Errorf("expected errored, got %s", exec.State().Status)
	}
	if _, ok := exec.Cached("activities"); ok {
		t.Error("expected undecodable payload not to be cached")
	}
}

func TestExecutor_TeardownRace(t *testing.T) {
	ctx := context.Background()
	transport := newStubTransport()
	transport.serve("activities", activitiesJSON)
	release := transport.hold("activities")

	log := &transitionLog[[]TestActivity]{}
	exec := New[[]TestActivity](transport).OnChange(log.record)

	done := make(chan error, 1)
	go func() {
		done <- exec.Execute(ctx, "activities")
	}()

	transport.waitEntered(t, "activities")
	exec.Close()
	release()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected suppressed resolution to return nil, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for Execute")
	}

	if exec.State().Status != StatusFetching {
		t.Errorf("expected state to remain fetching, got %s", exec.State().Status)
	}
	want := []Status{StatusFetching}
	if got := log.statuses(); !equalStatuses(got, want) {
		t.Errorf("expected only the fetching transition, got %v", got)
	}
	if _, ok := exec.Cached("activities"); !ok {
		t.Error("expected the payload to be cached even though dispatch was suppressed")
	}
}

func TestExecutor_TeardownRaceFailure(t *testing.T) {
	transport := newStubTransport()
	transport.fail("activities", errors.New("network timeout"))
	release := transport.hold("activities")

	exec := New[[]TestActivity](transport)

	done := make(chan error, 1)
	go func() {
		done <- exec.Execute(context.Background(), "activities")
	}()

	transport.waitEntered(t, "activities")
	exec.Close()
	release()
	<-done

	if exec.State().Status != StatusFetching {
		t.Errorf("expected state to remain fetching, got %s", exec.State().Status)
	}
}

func TestExecutor_ExecuteAfterClose(t *testing.T) {
	transport := newStubTransport()
	exec := New[[]TestActivity](transport)

	exec.Close()
	exec.Close()

	if err := exec.Execute(context.Background(), "activities"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if exec.State().Status != StatusIdle {
		t.Errorf("expected idle, got %s", exec.State().Status)
	}
	if transport.callCount() != 0 {
		t.Error("expected no transport call after close")
	}
	if !exec.Closed() {
		t.Error("expected Closed to report true")
	}
}

func TestExecutor_ResetOnRequest(t *testing.T) {
	ctx := context.Background()
	transport := newStubTransport()
	transport.serve("activities", activitiesJSON)
	transport.fail("broken", errors.New("boom"))

	exec := New[[]TestActivity](transport)
	defer exec.Close()

	_ = exec.Execute(ctx, "activities")
	release := transport.hold("slow")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = exec.Execute(ctx, "slow")
	}()
	transport.waitEntered(t, "activities")
	transport.waitEntered(t, "slow")

	state := exec.State()
	if state.Status != StatusFetching || state.Data != nil || state.Error != "" {
		t.Errorf("expected cleared fetching state, got %+v", state)
	}
	release()
	<-done

	_ = exec.Execute(ctx, "broken")
	release = transport.hold("slow-again")
	done = make(chan struct{})
	go func() {
		defer close(done)
		_ = exec.Execute(ctx, "slow-again")
	}()
	transport.waitEntered(t, "broken")
	transport.waitEntered(t, "slow-again")

	state = exec.State()
	if state.Status != StatusFetching || state.Error != "" {
		t.Errorf("expected error cleared while fetching, got %+v", state)
	}
	release()
	<-done
}

func TestExecutor_LastCallWins(t *testing.T) {
	ctx := context.Background()
	transport := newStubTransport()
	transport.serve("slow", `[{"id":"slow"}]`)
	transport.serve("fast", `[{"id":"fast"}]`)
	release := transport.hold("slow")

	exec := New[[]TestActivity](transport)
	defer exec.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = exec.Execute(ctx, "slow")
	}()
	transport.waitEntered(t, "slow")

	if err := exec.Execute(ctx, "fast"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	release()
	<-done

	data, ok := exec.State().Value()
	if !ok || data[0].ID != "fast" {
		t.Errorf("expected the later call to win, got %+v", exec.State())
	}
	if _, ok := exec.Cached("slow"); !ok {
		t.Error("expected the superseded payload to still be cached")
	}
}

func TestExecutor_StaleFailureLeavesErrorsUntouched(t *testing.T) {
	ctx := context.Background()
	transport := newStubTransport()
	transport.fail("slow", errors.New("slow failed"))
	transport.serve("fast", `[{"id":"fast"}]`)
	release := transport.hold("slow")

	exec := New[[]TestActivity](transport).ErrorHistorySize(2)
	defer exec.Close()

	done := make(chan error, 1)
	go func() {
		done <- exec.Execute(ctx, "slow")
	}()
	transport.waitEntered(t, "slow")

	if err := exec.Execute(ctx, "fast"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	release()
	if err := <-done; err == nil {
		t.Error("expected the superseded call to still report its failure")
	}

	if exec.State().Status != StatusFetched {
		t.Errorf("expected fetched, got %s", exec.State().Status)
	}
	if err := exec.LastError(); err != nil {
		t.Errorf("expected no last error after a stale failure, got %v", err)
	}
	if history := exec.ErrorHistory(); len(history) != 0 {
		t.Errorf("expected empty error history, got %+v", history)
	}
}

func TestExecutor_SuppressedFailureLeavesErrorsUntouched(t *testing.T) {
	transport := newStubTransport()
	transport.fail("activities", errors.New("network timeout"))
	release := transport.hold("activities")

	exec := New[[]TestActivity](transport).ErrorHistorySize(2)

	done := make(chan error, 1)
	go func() {
		done <- exec.Execute(context.Background(), "activities")
	}()
	transport.waitEntered(t, "activities")

	exec.Close()
	release()
	<-done

	if err := exec.LastError(); err != nil {
		t.Errorf("expected no last error after close, got %v", err)
	}
	if history := exec.ErrorHistory(); len(history) != 0 {
		t.Errorf("expected empty error history, got %+v", history)
	}
}

func TestExecutor_InvalidateForcesTransport(t *testing.T) {
	ctx := context.Background()
	transport := newStubTransport()
	transport.serve("activities", activitiesJSON)

	exec := New[[]TestActivity](transport)
	defer exec.Close()

	_ = exec.Execute(ctx, "activities")
	transport.serve("activities", `[]`)

	if !exec.Invalidate("activities") {
		t.Fatal("expected entry to be invalidated")
	}
	if exec.Invalidate("activities") {
		t.Error("expected second invalidate to report nothing removed")
	}

	_ = exec.Execute(ctx, "activities")

	if transport.callCount() != 2 {
		t.Errorf("expected 2 transport calls, got %d", transport.callCount())
	}
	data, _ := exec.State().Value()
	if len(data) != 0 {
		t.Errorf("expected refreshed empty list, got %+v", data)
	}
}

func TestExecutor_InvalidateAll(t *testing.T) {
	ctx := context.Background()
	transport := newStubTransport()
	transport.serve("a", `[]`)
	transport.serve("b", `[]`)

	exec := New[[]TestActivity](transport)
	defer exec.Close()

	_ = exec.Execute(ctx, "a")
	_ = exec.Execute(ctx, "b")
	exec.InvalidateAll()

	if _, ok := exec.Cached("a"); ok {
		t.Error("expected a to be invalidated")
	}
	if _, ok := exec.Cached("b"); ok {
		t.Error("expected b to be invalidated")
	}
}

func TestExecutor_OptionMerge(t *testing.T) {
	transport := newStubTransport()
	transport.serve("activities/1", `[]`)

	exec := New[[]TestActivity](transport).
		Manual().
		BaseOptions(CallOptions{
			Method:  "PUT",
			Headers: map[string]string{"Content-Type": "application/json"},
		})
	defer exec.Close()

	_ = exec.Execute(context.Background(), "activities/1", CallOptions{Method: "DELETE"})

	call := transport.lastCall()
	if call.Options.Method != "DELETE" {
		t.Errorf("expected override method DELETE, got %q", call.Options.Method)
	}
	if call.Options.Headers["Content-Type"] != "application/json" {
		t.Errorf("expected base headers retained, got %v", call.Options.Headers)
	}
}

func TestExecutor_ManualDoesNotFire(t *testing.T) {
	transport := newStubTransport()
	transport.serve("activities", activitiesJSON)

	log := &transitionLog[[]TestActivity]{}
	exec := New[[]TestActivity](transport).
		Key("activities").
		Manual().
		OnChange(log.record)
	defer exec.Close()

	if err := exec.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := exec.Bind(context.Background(), "activities/2", CallOptions{Method: "PUT"}); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}

	if transport.callCount() != 0 {
		t.Errorf("expected no transport calls, got %d", transport.callCount())
	}
	if exec.State().Status != StatusIdle {
		t.Errorf("expected idle, got %s", exec.State().Status)
	}
	if len(log.statuses()) != 0 {
		t.Errorf("expected no transitions, got %v", log.statuses())
	}
}

func TestExecutor_AutoFiresOnStart(t *testing.T) {
	transport := newStubTransport()
	transport.serve("activities", activitiesJSON)

	exec := New[[]TestActivity](transport).Key("activities")
	defer exec.Close()

	if err := exec.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if transport.callCount() != 1 {
		t.Errorf("expected 1 transport call, got %d", transport.callCount())
	}
	if exec.State().Status != StatusFetched {
		t.Errorf("expected fetched, got %s", exec.State().Status)
	}
}

func TestExecutor_AutoWithoutKeyDoesNotFire(t *testing.T) {
	transport := newStubTransport()

	exec := New[[]TestActivity](transport)
	defer exec.Close()

	if err := exec.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if transport.callCount() != 0 {
		t.Errorf("expected no transport calls, got %d", transport.callCount())
	}
}

func TestExecutor_StartTwice(t *testing.T) {
	exec := New[[]TestActivity](newStubTransport())
	defer exec.Close()

	if err := exec.Start(context.Background()); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	if err := exec.Start(context.Background()); err == nil {
		t.Error("expected error on second Start")
	}
}

func TestExecutor_BindFiresOncePerChange(t *testing.T) {
	ctx := context.Background()
	transport := newStubTransport()
	transport.serve("activities", activitiesJSON)
	transport.serve("archive", `[]`)

	exec := New[[]TestActivity](transport).Key("activities")
	defer exec.Close()

	_ = exec.Start(ctx)

	// Same binding: nothing fires.
	_ = exec.Bind(ctx, "activities", CallOptions{})
	if transport.callCount() != 1 {
		t.Fatalf("expected 1 call after unchanged bind, got %d", transport.callCount())
	}

	_ = exec.Bind(ctx, "archive", CallOptions{})
	if transport.callCount() != 2 {
		t.Fatalf("expected 2 calls after key change, got %d", transport.callCount())
	}

	exec.Invalidate("archive")
	_ = exec.Bind(ctx, "archive", CallOptions{Headers: map[string]string{"X-Page": "2"}})
	if transport.callCount() != 3 {
		t.Fatalf("expected 3 calls after options change, got %d", transport.callCount())
	}
	if got := transport.lastCall().Options.Headers["X-Page"]; got != "2" {
		t.Errorf("expected new base options on the call, got %q", got)
	}
}

func TestExecutor_BindBeforeStartDoesNotFire(t *testing.T) {
	transport := newStubTransport()
	transport.serve("activities", activitiesJSON)

	exec := New[[]TestActivity](transport)
	defer exec.Close()

	_ = exec.Bind(context.Background(), "activities", CallOptions{})
	if transport.callCount() != 0 {
		t.Errorf("expected no calls before Start, got %d", transport.callCount())
	}

	_ = exec.Start(context.Background())
	if transport.callCount() != 1 {
		t.Errorf("expected Start to fire the bound key, got %d calls", transport.callCount())
	}
}

func TestExecutor_FollowInvalidatesAndRefetches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport := newStubTransport()
	transport.serve("activities", activitiesJSON)

	exec := New[[]TestActivity](transport).Key("activities")
	defer exec.Close()

	_ = exec.Start(ctx)

	changes := make(chan string, 1)
	if err := exec.Follow(ctx, NewChannelNotifier(changes)); err != nil {
		t.Fatalf("Follow failed: %v", err)
	}

	transport.serve("activities", `[]`)
	changes <- "activities"

	waitFor(t, time.Second, func() bool {
		data, ok := exec.State().Value()
		return ok && len(data) == 0
	})
	if transport.callCount() != 2 {
		t.Errorf("expected 2 transport calls, got %d", transport.callCount())
	}
}

func TestExecutor_FollowOtherKeyOnlyInvalidates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport := newStubTransport()
	transport.serve("activities", activitiesJSON)
	transport.serve("other", `[]`)

	exec := New[[]TestActivity](transport).Key("activities")
	defer exec.Close()

	_ = exec.Start(ctx)
	_ = exec.Execute(ctx, "other")

	changes := make(chan string, 1)
	_ = exec.Follow(ctx, NewChannelNotifier(changes))
	changes <- "other"

	waitFor(t, time.Second, func() bool {
		_, ok := exec.Cached("other")
		return !ok
	})
	if transport.callCount() != 2 {
		t.Errorf("expected no refetch for an unbound key, got %d calls", transport.callCount())
	}
}

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context) (<-chan string, error) {
	return nil, errors.New("unavailable")
}

func TestExecutor_FollowNotifierError(t *testing.T) {
	exec := New[[]TestActivity](newStubTransport())
	defer exec.Close()

	if err := exec.Follow(context.Background(), failingNotifier{}); err == nil {
		t.Error("expected error from failing notifier")
	}
}

// quietNotifier never emits and reports when its context ends.
type quietNotifier struct {
	stopped chan struct{}
}

func (n quietNotifier) Notify(ctx context.Context) (<-chan string, error) {
	keys := make(chan string)
	go func() {
		<-ctx.Done()
		close(keys)
		close(n.stopped)
	}()
	return keys, nil
}

func TestExecutor_FollowStopsOnClose(t *testing.T) {
	exec := New[[]TestActivity](newStubTransport())
	notifier := quietNotifier{stopped: make(chan struct{})}

	if err := exec.Follow(context.Background(), notifier); err != nil {
		t.Fatalf("Follow failed: %v", err)
	}

	exec.Close()

	select {
	case <-notifier.stopped:
	case <-time.After(time.Second):
		t.Fatal("expected Close to stop the notifier")
	}
}

type countingMetrics struct {
	NoOpMetricsProvider
	hits, misses, successes, failures, suppressed, changes atomic.Int32
}

func (m *countingMetrics) OnCacheHit(string)                               { m.hits.Add(1) }
func (m *countingMetrics) OnCacheMiss(string)                              { m.misses.Add(1) }
func (m *countingMetrics) OnFetchSuccess(string, time.Duration)            { m.successes.Add(1) }
func (m *countingMetrics) OnFetchFailure(string, ErrorKind, time.Duration) { m.failures.Add(1) }
func (m *countingMetrics) OnSuppressed(string)                             { m.suppressed.Add(1) }
func (m *countingMetrics) OnStateChange(Status, Status)                    { m.changes.Add(1) }

func TestExecutor_Metrics(t *testing.T) {
	ctx := context.Background()
	transport := newStubTransport()
	transport.serve("activities", activitiesJSON)
	transport.fail("broken", errors.New("boom"))

	metrics := &countingMetrics{}
	exec := New[[]TestActivity](transport).Metrics(metrics)
	defer exec.Close()

	_ = exec.Execute(ctx, "activities")
	_ = exec.Execute(ctx, "activities")
	_ = exec.Execute(ctx, "broken")

	if metrics.misses.Load() != 2 {
		t.Errorf("expected 2 misses, got %d", metrics.misses.Load())
	}
	if metrics.hits.Load() != 1 {
		t.Errorf("expected 1 hit, got %d", metrics.hits.Load())
	}
	if metrics.successes.Load() != 1 {
		t.Errorf("expected 1 success, got %d", metrics.successes.Load())
	}
	if metrics.failures.Load() != 1 {
		t.Errorf("expected 1 failure, got %d", metrics.failures.Load())
	}
	// idle→fetching, fetching→fetched, fetched→fetching, fetching→fetched,
	// fetched→fetching, fetching→errored
	if metrics.changes.Load() != 6 {
		t.Errorf("expected 6 state changes, got %d", metrics.changes.Load())
	}
}

func TestExecutor_MetricsSuppressed(t *testing.T) {
	transport := newStubTransport()
	transport.serve("activities", activitiesJSON)
	release := transport.hold("activities")

	metrics := &countingMetrics{}
	exec := New[[]TestActivity](transport).Metrics(metrics)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = exec.Execute(context.Background(), "activities")
	}()
	transport.waitEntered(t, "activities")
	exec.Close()
	release()
	<-done

	if metrics.suppressed.Load() != 1 {
		t.Errorf("expected 1 suppressed dispatch, got %d", metrics.suppressed.Load())
	}
}

func TestExecutor_FailureHistory(t *testing.T) {
	ctx := context.Background()
	clock := clockz.NewFakeClock()
	transport := newStubTransport()
	transport.fail("activities", errors.New("first"))

	exec := New[[]TestActivity](transport).Clock(clock).ErrorHistorySize(2)
	defer exec.Close()

	_ = exec.Execute(ctx, "activities")
	transport.fail("activities", errors.New("second"))
	_ = exec.Execute(ctx, "activities")
	transport.fail("activities", errors.New("third"))
	_ = exec.Execute(ctx, "activities")

	history := exec.ErrorHistory()
	if len(history) != 2 {
		t.Fatalf("expected 2 failures, got %d", len(history))
	}
	if history[0].Message != "second" || history[1].Message != "third" {
		t.Errorf("unexpected history %+v", history)
	}
	if !history[1].At.Equal(clock.Now()) {
		t.Errorf("expected failure time from the injected clock, got %v", history[1].At)
	}
	if history[1].Key != "activities" || history[1].Kind != KindNetwork {
		t.Errorf("unexpected failure record %+v", history[1])
	}

	transport.serve("activities", `[]`)
	_ = exec.Execute(ctx, "activities")

	if exec.ErrorHistory() != nil {
		t.Error("expected history cleared after success")
	}
	if exec.LastError() != nil {
		t.Error("expected LastError cleared after success")
	}
}

func TestExecutor_FailureHistoryDisabledByDefault(t *testing.T) {
	transport := newStubTransport()
	transport.fail("activities", errors.New("boom"))

	exec := New[[]TestActivity](transport)
	defer exec.Close()

	_ = exec.Execute(context.Background(), "activities")

	if exec.ErrorHistory() != nil {
		t.Error("expected no history without ErrorHistorySize")
	}
}

func TestExecutor_YAMLCodec(t *testing.T) {
	transport := newStubTransport()
	transport.serve("activities", "- id: \"1\"\n  description: buy milk\n")

	exec := New[[]TestActivity](transport).Codec(YAMLCodec{})
	defer exec.Close()

	if err := exec.Execute(context.Background(), "activities"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	data, _ := exec.State().Value()
	if len(data) != 1 || data[0].ID != "1" {
		t.Errorf("unexpected data %+v", data)
	}
}

func TestExecutor_ConcurrentExecute(t *testing.T) {
	ctx := context.Background()
	transport := newStubTransport()
	transport.serve("activities", activitiesJSON)

	exec := New[[]TestActivity](transport)
	defer exec.Close()

	// Drain entered notifications so Send never blocks on the buffer.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-transport.entered:
			case <-stop:
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = exec.Execute(ctx, "activities")
		}()
	}
	wg.Wait()

	if exec.State().Status != StatusFetched {
		t.Errorf("expected fetched after concurrent calls, got %s", exec.State().Status)
	}
	if transport.callCount() < 1 {
		t.Error("expected at least one transport call")
	}
}
