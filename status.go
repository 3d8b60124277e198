package fetchz

// Status represents where a request currently is in its lifecycle.
type Status int32

const (
	// StatusIdle indicates no request has been issued yet.
	StatusIdle Status = iota

	// StatusFetching indicates a request is in flight. Any data or error
	// from a previous request has been cleared.
	StatusFetching

	// StatusFetched indicates the latest request resolved with a payload.
	StatusFetched

	// StatusErrored indicates the latest request failed. Only the failure
	// message is retained.
	StatusErrored
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusFetching:
		return "fetching"
	case StatusFetched:
		return "fetched"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}
