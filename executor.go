package fetchz

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/pipz"
)

// Executor fetches resources through a Transport, caches successful payloads
// per key, and tracks the latest request in a Machine.
//
// An executor is owned by exactly one consumer. The consumer renders State()
// and calls Execute for explicit actions. When the consumer goes away it must
// call Close; resolutions arriving afterwards are dropped without touching
// the state.
//
// In auto mode (the default) Start fires a request for the bound key, and
// Bind fires again whenever the key or base options change. In manual mode
// nothing is fired until Execute is called.
type Executor[T any] struct {
	pipeline  pipz.Chainable[*Call]
	clock     clockz.Clock
	codec     Codec
	metrics   MetricsProvider
	onChange  []func(from, to RequestState[T])

	machine   *Machine[T]
	cache     *Cache[T]
	guard     *Guard
	failures  *failureRing
	lastError atomic.Pointer[error]
	closeOnce sync.Once
	done      chan struct{}

	mu      sync.Mutex
	key     string
	base    CallOptions
	manual  bool
	started bool
}

// New creates an Executor that fetches through transport.
//
// Pipeline options (With*) wrap the transport call with retries, timeouts and
// other resilience patterns. Instance configuration uses chainable methods
// before calling Start.
//
// Example:
//
//	list := fetchz.New[[]Activity](
//	    fetchz.NewHTTPTransport("http://localhost:8080"),
//	    fetchz.WithTimeout(5*time.Second),
//	).Key("activities")
//	defer list.Close()
//
//	if err := list.Start(ctx); err != nil {
//	    log.Printf("initial fetch failed: %v", err)
//	}
func New[T any](transport Transport, opts ...Option) *Executor[T] {
	return &Executor[T]{
		pipeline: buildPipeline(transportStage(transport), opts),
		clock:    clockz.RealClock,
		codec:    JSONCodec{},
		machine:  NewMachine[T](),
		cache:    NewCache[T](),
		guard:    NewGuard(),
		done:     make(chan struct{}),
	}
}

// -----------------------------------------------------------------------------
// Chainable Instance Configuration
// -----------------------------------------------------------------------------

// Key binds the resource key fetched by Start. Must be called before Start;
// use Bind afterwards.
func (e *Executor[T]) Key(key string) *Executor[T] {
	e.mu.Lock()
	e.key = key
	e.mu.Unlock()
	return e
}

// BaseOptions sets the options every call starts from. Overrides passed to
// Execute replace individual fields. Must be called before Start; use Bind
// afterwards.
func (e *Executor[T]) BaseOptions(opts CallOptions) *Executor[T] {
	e.mu.Lock()
	e.base = opts
	e.mu.Unlock()
	return e
}

// Manual switches the executor to manual mode: Start and Bind never fire a
// request, only explicit Execute calls do.
func (e *Executor[T]) Manual() *Executor[T] {
	e.mu.Lock()
	e.manual = true
	e.mu.Unlock()
	return e
}

// Codec sets the codec used to decode payloads. Default: JSONCodec.
func (e *Executor[T]) Codec(codec Codec) *Executor[T] {
	e.codec = codec
	return e
}

// Clock sets a custom clock for duration measurements.
// Use this with clockz.FakeClock for deterministic tests.
func (e *Executor[T]) Clock(clock clockz.Clock) *Executor[T] {
	e.clock = clock
	return e
}

// Metrics sets a metrics provider for observability integration.
func (e *Executor[T]) Metrics(provider MetricsProvider) *Executor[T] {
	e.metrics = provider
	return e
}

// OnChange registers a callback invoked after every applied transition.
// Callbacks run on the goroutine that applied the transition and must not
// block.
func (e *Executor[T]) OnChange(fn func(from, to RequestState[T])) *Executor[T] {
	e.onChange = append(e.onChange, fn)
	return e
}

// ErrorHistorySize sets the number of recent failures to retain.
// Use 0 (default) to only retain the most recent error via LastError().
func (e *Executor[T]) ErrorHistorySize(n int) *Executor[T] {
	e.failures = newFailureRing(n)
	return e
}

// -----------------------------------------------------------------------------
// Accessors
// -----------------------------------------------------------------------------

// State returns the current request state.
func (e *Executor[T]) State() RequestState[T] {
	return e.machine.State()
}

// Cached returns the cached payload for key without issuing a request.
func (e *Executor[T]) Cached(key string) (T, bool) {
	return e.cache.Get(key)
}

// LastError returns the last request failure, or nil if the latest fetch
// succeeded or none has failed.
func (e *Executor[T]) LastError() error {
	ptr := e.lastError.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// ErrorHistory returns the recent failure history, oldest first.
// Returns nil if history is not enabled (see ErrorHistorySize).
func (e *Executor[T]) ErrorHistory() []Failure {
	return e.failures.snapshot()
}

// Closed reports whether Close has been called.
func (e *Executor[T]) Closed() bool {
	return e.guard.Cancelled()
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Start marks the executor as created. In auto mode with a bound key it fires
// exactly one Execute for that key and returns its error. In manual mode it
// fires nothing.
//
// Start can only be called once. Subsequent calls return an error.
func (e *Executor[T]) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return fmt.Errorf("executor already started")
	}
	e.started = true
	key, manual := e.key, e.manual
	e.mu.Unlock()

	capitan.Emit(ctx, ExecutorStarted,
		KeyResource.Field(key),
	)

	if manual || key == "" {
		return nil
	}
	return e.Execute(ctx, key)
}

// Bind changes the bound key and base options. In auto mode, once started,
// a change fires exactly one Execute for the new key; binding the same key
// and options again fires nothing.
func (e *Executor[T]) Bind(ctx context.Context, key string, base CallOptions) error {
	e.mu.Lock()
	changed := key != e.key || !base.Equal(e.base)
	e.key = key
	e.base = base
	fire := changed && e.started && !e.manual && key != ""
	e.mu.Unlock()

	if !changed {
		return nil
	}
	capitan.Emit(ctx, ExecutorBound,
		KeyResource.Field(key),
		KeyMethod.Field(base.Method),
	)
	if !fire {
		return nil
	}
	return e.Execute(ctx, key)
}

// Close tears the executor down. Any transition that has not been applied yet
// is suppressed, including those of requests still in flight; the requests
// themselves are not aborted. Close is idempotent and always returns nil, so
// it can be deferred directly.
func (e *Executor[T]) Close() error {
	e.closeOnce.Do(func() {
		e.guard.Cancel()
		close(e.done)
		capitan.Emit(context.Background(), ExecutorClosed,
			KeyResource.Field(e.boundKey()),
			KeyNewStatus.Field(e.State().Status.String()),
		)
	})
	return nil
}

// Invalidate removes key from the cache so the next Execute reaches the
// transport. Mutating calls should invalidate the resources they affect.
func (e *Executor[T]) Invalidate(key string) bool {
	removed := e.cache.Invalidate(key)
	if removed {
		capitan.Emit(context.Background(), CacheInvalidated,
			KeyResource.Field(key),
		)
	}
	return removed
}

// InvalidateAll empties the cache.
func (e *Executor[T]) InvalidateAll() {
	for _, key := range e.cache.Keys() {
		e.Invalidate(key)
	}
}

// Follow consumes change notifications from n until ctx is done or the
// executor is closed, whichever comes first; either one also stops the
// notifier. Each changed key is invalidated; in auto mode a change to the
// bound key also fires Execute for it.
func (e *Executor[T]) Follow(ctx context.Context, n Notifier) error {
	ctx, cancel := context.WithCancel(ctx)
	keys, err := n.Notify(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to start notifier: %w", err)
	}
	go e.follow(ctx, cancel, keys)
	return nil
}

func (e *Executor[T]) follow(ctx context.Context, cancel context.CancelFunc, keys <-chan string) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case key, ok := <-keys:
			if !ok || e.guard.Cancelled() {
				return
			}
			e.Invalidate(key)

			e.mu.Lock()
			refetch := e.started && !e.manual && key == e.key
			e.mu.Unlock()

			if refetch {
				_ = e.Execute(ctx, key) //nolint:errcheck // Failures are surfaced through State
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Execution
// -----------------------------------------------------------------------------

// Execute requests key and drives the state machine through the request.
//
// The Fetching transition is applied before Execute does any I/O. A cached
// payload for key resolves the request immediately without calling the
// transport. Otherwise the transport is called with the base options merged
// with overrides; a successful payload is decoded, written to the cache and
// dispatched as Fetched, and a failure is dispatched as Errored.
//
// Execute blocks until the request resolves and returns the failure, if any.
// Once the executor is closed it returns ErrClosed without a transition.
func (e *Executor[T]) Execute(ctx context.Context, key string, overrides ...CallOptions) error {
	var (
		seq  uint64
		from RequestState[T]
	)
	if !e.guard.Dispatch(func() { seq, from = e.machine.Begin() }) {
		return ErrClosed
	}
	e.transitioned(ctx, from, RequestState[T]{Status: StatusFetching})

	e.mu.Lock()
	opts := Merge(e.base, overrides...)
	e.mu.Unlock()

	capitan.Emit(ctx, FetchRequested,
		KeyResource.Field(key),
		KeyMethod.Field(opts.Method),
		KeySequence.Field(int(seq)),
	)

	if cached, ok := e.cache.Get(key); ok {
		capitan.Emit(ctx, CacheHit,
			KeyResource.Field(key),
		)
		if e.metrics != nil {
			e.metrics.OnCacheHit(key)
		}
		e.resolve(ctx, key, seq, RequestState[T]{Status: StatusFetched, Data: cached}, func() (RequestState[T], bool) {
			return e.machine.Succeed(seq, cached)
		})
		return nil
	}

	capitan.Emit(ctx, CacheMiss,
		KeyResource.Field(key),
	)
	if e.metrics != nil {
		e.metrics.OnCacheMiss(key)
	}

	start := e.clock.Now()
	data, err := e.fetch(ctx, &Call{Key: key, Options: opts, Sequence: seq})
	elapsed := e.clock.Since(start)

	if err != nil {
		re := classify(key, err)
		capitan.Emit(ctx, FetchFailed,
			KeyResource.Field(key),
			KeyError.Field(re.Error()),
			KeyErrorKind.Field(re.Kind.String()),
			KeyStatusCode.Field(re.Code),
			KeyDuration.Field(elapsed),
		)
		if e.metrics != nil {
			e.metrics.OnFetchFailure(key, re.Kind, elapsed)
		}
		msg := re.Error()
		if e.resolve(ctx, key, seq, RequestState[T]{Status: StatusErrored, Error: msg}, func() (RequestState[T], bool) {
			return e.machine.Fail(seq, msg)
		}) {
			e.recordFailure(re)
		}
		return re
	}

	// The cache is written even when the dispatch below ends up suppressed.
	e.cache.Put(key, data)
	capitan.Emit(ctx, FetchSucceeded,
		KeyResource.Field(key),
		KeyDuration.Field(elapsed),
	)
	if e.metrics != nil {
		e.metrics.OnFetchSuccess(key, elapsed)
	}
	if e.resolve(ctx, key, seq, RequestState[T]{Status: StatusFetched, Data: data}, func() (RequestState[T], bool) {
		return e.machine.Succeed(seq, data)
	}) {
		e.lastError.Store(nil)
		e.failures.reset()
	}
	return nil
}

// fetch runs the call through the pipeline and decodes the payload.
func (e *Executor[T]) fetch(ctx context.Context, call *Call) (T, error) {
	result, err := e.pipeline.Process(ctx, call)
	if err != nil {
		var zero T
		// Prefer the transport's own error over the pipeline's wrapping so
		// the surfaced message is the one the transport produced.
		if failure := call.lastFailure(); failure != nil {
			return zero, failure
		}
		return zero, err
	}
	if result == nil {
		result = call
	}
	return decode[T](e.codec, result.Payload)
}

// resolve applies a post-request transition unless the executor has been
// closed or a newer request has been issued in the meantime. It reports
// whether the transition was applied.
func (e *Executor[T]) resolve(ctx context.Context, key string, seq uint64, to RequestState[T], apply func() (RequestState[T], bool)) bool {
	var (
		from    RequestState[T]
		applied bool
	)
	if !e.guard.Dispatch(func() { from, applied = apply() }) {
		capitan.Emit(ctx, DispatchSuppressed,
			KeyResource.Field(key),
			KeySequence.Field(int(seq)),
		)
		if e.metrics != nil {
			e.metrics.OnSuppressed(key)
		}
		return false
	}
	if !applied {
		capitan.Emit(ctx, DispatchStale,
			KeyResource.Field(key),
			KeySequence.Field(int(seq)),
		)
		return false
	}
	e.transitioned(ctx, from, to)
	return true
}

// transitioned reports an applied transition to signals, metrics and
// OnChange callbacks.
func (e *Executor[T]) transitioned(ctx context.Context, from, to RequestState[T]) {
	if from.Status == StatusFetching && to.Status == StatusFetching {
		return
	}
	capitan.Emit(ctx, StateChanged,
		KeyOldStatus.Field(from.Status.String()),
		KeyNewStatus.Field(to.Status.String()),
	)
	if e.metrics != nil {
		e.metrics.OnStateChange(from.Status, to.Status)
	}
	for _, fn := range e.onChange {
		fn(from, to)
	}
}

func (e *Executor[T]) recordFailure(re *RequestError) {
	var err error = re
	e.lastError.Store(&err)
	e.failures.push(Failure{
		Key:     re.Key,
		Kind:    re.Kind,
		Message: re.Error(),
		At:      e.clock.Now(),
	})
}

func (e *Executor[T]) boundKey() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.key
}
