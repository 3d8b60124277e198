package fetchz

import "github.com/zoobzio/capitan"

// Field keys for executor events.
var (
	// KeyResource is the resource key a request targets.
	KeyResource = capitan.NewStringKey("key")

	// KeyMethod is the effective request method.
	KeyMethod = capitan.NewStringKey("method")

	// KeyOldStatus is the status before a transition.
	KeyOldStatus = capitan.NewStringKey("old_status")

	// KeyNewStatus is the status after a transition.
	KeyNewStatus = capitan.NewStringKey("new_status")

	// KeyError is the failure message.
	KeyError = capitan.NewStringKey("error")

	// KeyErrorKind is the failure classification.
	KeyErrorKind = capitan.NewStringKey("error_kind")

	// KeyStatusCode is the response status code for status failures.
	KeyStatusCode = capitan.NewIntKey("status_code")

	// KeySequence is the call sequence number.
	KeySequence = capitan.NewIntKey("sequence")

	// KeyDuration is the time spent in the transport and decode.
	KeyDuration = capitan.NewDurationKey("duration")
)
