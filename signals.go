package fetchz

import "github.com/zoobzio/capitan"

// Executor lifecycle signals.
var (
	// ExecutorStarted is emitted when Start is called.
	ExecutorStarted = capitan.NewSignal(
		"fetchz.executor.started",
		"Executor started",
	)

	// ExecutorBound is emitted when Bind changes the bound key or options.
	ExecutorBound = capitan.NewSignal(
		"fetchz.executor.bound",
		"Executor binding changed",
	)

	// ExecutorClosed is emitted when the executor is torn down.
	ExecutorClosed = capitan.NewSignal(
		"fetchz.executor.closed",
		"Executor closed",
	)

	// StateChanged is emitted for every applied transition.
	StateChanged = capitan.NewSignal(
		"fetchz.state.changed",
		"Request state transition",
	)
)

// Fetch signals.
var (
	// FetchRequested is emitted when Execute begins a request.
	FetchRequested = capitan.NewSignal(
		"fetchz.fetch.requested",
		"Fetch requested",
	)

	// FetchSucceeded is emitted when the transport returns a decodable payload.
	FetchSucceeded = capitan.NewSignal(
		"fetchz.fetch.succeeded",
		"Fetch succeeded",
	)

	// FetchFailed is emitted when a request fails for any reason.
	FetchFailed = capitan.NewSignal(
		"fetchz.fetch.failed",
		"Fetch failed",
	)
)

// Cache signals.
var (
	// CacheHit is emitted when a request is served from the cache.
	CacheHit = capitan.NewSignal(
		"fetchz.cache.hit",
		"Served from cache",
	)

	// CacheMiss is emitted when a request has to reach the transport.
	CacheMiss = capitan.NewSignal(
		"fetchz.cache.miss",
		"Cache miss",
	)

	// CacheInvalidated is emitted when an entry is removed from the cache.
	CacheInvalidated = capitan.NewSignal(
		"fetchz.cache.invalidated",
		"Cache entry invalidated",
	)
)

// Dispatch signals.
var (
	// DispatchSuppressed is emitted when a transition is dropped because
	// the executor was closed before the request resolved.
	DispatchSuppressed = capitan.NewSignal(
		"fetchz.dispatch.suppressed",
		"Transition suppressed after close",
	)

	// DispatchStale is emitted when a resolution is dropped because a newer
	// call has been issued since.
	DispatchStale = capitan.NewSignal(
		"fetchz.dispatch.stale",
		"Superseded resolution dropped",
	)
)
