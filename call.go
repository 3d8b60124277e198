package fetchz

import (
	"bytes"
	"maps"
	"sync/atomic"
)

// CallOptions describe how a resource is requested from a Transport.
// A field is considered present when it is non-zero.
type CallOptions struct {
	// Method is the request verb. Transports choose their own default
	// (GET for HTTP) when empty.
	Method string

	// Headers are sent with the request. An override replaces the whole
	// map; individual headers are not merged.
	Headers map[string]string

	// Body is the raw request body.
	Body []byte
}

// Merge returns base with every present field of each override applied in
// order, so later overrides win. Fields an override leaves empty keep the
// value accumulated so far. Merge never fails; malformed options are left
// for the transport to reject.
func Merge(base CallOptions, overrides ...CallOptions) CallOptions {
	out := base
	for _, o := range overrides {
		if o.Method != "" {
			out.Method = o.Method
		}
		if o.Headers != nil {
			out.Headers = o.Headers
		}
		if o.Body != nil {
			out.Body = o.Body
		}
	}
	return out
}

// Equal reports whether two option sets describe the same call.
func (o CallOptions) Equal(other CallOptions) bool {
	return o.Method == other.Method &&
		(o.Headers == nil) == (other.Headers == nil) &&
		maps.Equal(o.Headers, other.Headers) &&
		(o.Body == nil) == (other.Body == nil) &&
		bytes.Equal(o.Body, other.Body)
}

// Call carries a single transport invocation through the pipeline.
type Call struct {
	// Key is the resource key being requested.
	Key string

	// Options are the merged call options.
	Options CallOptions

	// Sequence is the machine sequence number of the Execute that issued
	// this call.
	Sequence uint64

	// Payload holds the raw bytes returned by the transport.
	Payload []byte

	// failure is the last error returned by the transport itself, kept so
	// the surfaced message is not decorated by pipeline wrappers. Timeouts
	// may leave a transport attempt running, hence the atomic.
	failure atomic.Pointer[error]
}

func (c *Call) setFailure(err error) {
	if err == nil {
		c.failure.Store(nil)
		return
	}
	c.failure.Store(&err)
}

func (c *Call) lastFailure() error {
	if ptr := c.failure.Load(); ptr != nil {
		return *ptr
	}
	return nil
}
