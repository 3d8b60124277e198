/*
Package fetchz executes resource fetches on behalf of a single consumer,
caching successful payloads per key and tracking the latest request in a
small state machine.

An Executor is owned by one consumer, such as a CLI command or a view.
The consumer reads State and calls Execute; when it goes away it calls
Close, and any resolution still in flight is dropped instead of being applied
to a consumer that no longer exists.

# Basic Usage

Create an executor over a transport and bind the key it should load:

	list := fetchz.New[[]Activity](
	    fetchz.NewHTTPTransport("http://localhost:8080"),
	).Key("activities")
	defer list.Close()

	if err := list.Start(ctx); err != nil {
	    return err
	}

	switch state := list.State(); state.Status {
	case fetchz.StatusFetched:
	    render(state.Data)
	case fetchz.StatusErrored:
	    fmt.Println(state.Error)
	}

# Request States

Every request moves the executor through the same transitions:

	Idle → Fetching → Fetched
	                → Errored

Entering Fetching clears both data and error. Only the most recent request
resolves the state; a slower, older request that completes later is ignored.

# Auto and Manual Modes

By default an executor is automatic: Start fetches the bound key, and Bind
fetches again whenever the key or base options change. Manual executors never
fetch on their own, which suits mutations:

	toggle := fetchz.New[Activity](transport).
	    Manual().
	    BaseOptions(fetchz.CallOptions{Method: http.MethodPut})

	err := toggle.Execute(ctx, "activities/"+id, fetchz.CallOptions{Body: body})

Options passed to Execute override the base options field by field.

# Caching

A successful payload is cached under its key and returned for subsequent
requests without calling the transport. The cache never expires on its own;
call Invalidate after a mutation, or Follow a Notifier to invalidate keys as
their backend changes:

	list.Follow(ctx, fetchz.NewFileNotifier("/etc/activities"))

# Resilience

Pipeline options wrap the transport call:

	exec := fetchz.New[Data](transport,
	    fetchz.WithRetry(3),
	    fetchz.WithTimeout(5*time.Second),
	    fetchz.WithCircuitBreaker(5, 30*time.Second),
	)

Without options a transport is called exactly once per cache miss.

# Observability

fetchz does not log. State transitions, fetches, cache activity and
suppressed dispatches are emitted as capitan signals (see signals.go), and a
MetricsProvider receives the same events as callbacks.

The package is built on top of:
  - pipz: For composable resilience pipelines around transport calls
  - capitan: For signal emission
  - clockz: For injectable time
*/
package fetchz
