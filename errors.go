package fetchz

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Execute once the executor has been closed.
var ErrClosed = errors.New("executor closed")

// ErrorKind classifies a request failure.
type ErrorKind int

const (
	// KindNetwork covers transport failures: unreachable hosts, timeouts,
	// dropped connections, and any error a Transport returns unclassified.
	KindNetwork ErrorKind = iota

	// KindStatus indicates the resource answered with a non-success status.
	KindStatus

	// KindDecode indicates the payload could not be decoded or validated.
	KindDecode
)

// String returns the string representation of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindStatus:
		return "status"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// RequestError is the failure surfaced by Execute. The message rendered into
// RequestState.Error is always Error(), so consumers that only care about a
// message never need to inspect Kind.
type RequestError struct {
	Kind ErrorKind
	Key  string
	Code int
	Err  error
}

// Error returns the underlying failure message.
func (e *RequestError) Error() string {
	if e.Err == nil {
		return e.Kind.String() + " error"
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// NetworkError wraps err as a KindNetwork failure.
func NetworkError(err error) error {
	return &RequestError{Kind: KindNetwork, Err: err}
}

// StatusError builds a KindStatus failure for the given status code.
func StatusError(code int) error {
	return &RequestError{
		Kind: KindStatus,
		Code: code,
		Err:  fmt.Errorf("request failed with status code %d", code),
	}
}

// DecodeError wraps err as a KindDecode failure.
func DecodeError(err error) error {
	return &RequestError{Kind: KindDecode, Err: err}
}

// classify converts any error into a *RequestError for key. Errors that are
// already classified keep their kind; everything else is a network failure.
func classify(key string, err error) *RequestError {
	var re *RequestError
	if errors.As(err, &re) {
		out := *re
		out.Key = key
		return &out
	}
	return &RequestError{Kind: KindNetwork, Key: key, Err: err}
}
