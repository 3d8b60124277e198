package fetchz

import (
	"context"
	"time"

	"github.com/zoobzio/pipz"
)

// Pipeline identities.
var (
	transportID      = pipz.NewIdentity("fetchz:transport", "Sends the call through the transport")
	retryID          = pipz.NewIdentity("fetchz:retry", "Retries failed transport calls")
	backoffID        = pipz.NewIdentity("fetchz:backoff", "Retries failed transport calls with exponential backoff")
	timeoutID        = pipz.NewIdentity("fetchz:timeout", "Bounds the duration of a transport call")
	circuitBreakerID = pipz.NewIdentity("fetchz:circuit-breaker", "Rejects calls while the transport keeps failing")
	rateLimitID      = pipz.NewIdentity("fetchz:rate-limit", "Limits the rate of transport calls")
	fallbackID       = pipz.NewIdentity("fetchz:fallback", "Tries alternative transports on failure")
)

// Option configures the pipeline a transport call runs through. Options wrap
// the transport in the order given, so the last option is outermost.
//
// An executor without options calls its transport exactly once per cache
// miss and never retries.
type Option func(pipz.Chainable[*Call]) pipz.Chainable[*Call]

// buildPipeline wraps a terminal with pipeline options.
func buildPipeline(terminal pipz.Chainable[*Call], opts []Option) pipz.Chainable[*Call] {
	pipeline := terminal
	for _, opt := range opts {
		pipeline = opt(pipeline)
	}
	return pipeline
}

// WithRetry retries a failed transport call immediately, up to maxAttempts
// attempts in total.
func WithRetry(maxAttempts int) Option {
	return func(p pipz.Chainable[*Call]) pipz.Chainable[*Call] {
		return pipz.NewRetry(retryID, p, maxAttempts)
	}
}

// WithBackoff retries a failed transport call with delays of baseDelay,
// 2*baseDelay, 4*baseDelay and so on.
func WithBackoff(maxAttempts int, baseDelay time.Duration) Option {
	return func(p pipz.Chainable[*Call]) pipz.Chainable[*Call] {
		return pipz.NewBackoff(backoffID, p, maxAttempts, baseDelay)
	}
}

// WithTimeout fails a transport call that takes longer than d.
func WithTimeout(d time.Duration) Option {
	return func(p pipz.Chainable[*Call]) pipz.Chainable[*Call] {
		return pipz.NewTimeout(timeoutID, p, d)
	}
}

// WithCircuitBreaker opens after failures consecutive failures and rejects
// calls until recovery has elapsed.
func WithCircuitBreaker(failures int, recovery time.Duration) Option {
	return func(p pipz.Chainable[*Call]) pipz.Chainable[*Call] {
		return pipz.NewCircuitBreaker(circuitBreakerID, p, failures, recovery)
	}
}

// WithRateLimit delays transport calls to at most rate per second with the
// given burst.
func WithRateLimit(rate float64, burst int) Option {
	return func(p pipz.Chainable[*Call]) pipz.Chainable[*Call] {
		return pipz.NewRateLimiter[*Call](rateLimitID, rate, burst, p)
	}
}

// WithFallback tries each fallback transport in order when the primary
// pipeline fails.
func WithFallback(fallbacks ...Transport) Option {
	return func(p pipz.Chainable[*Call]) pipz.Chainable[*Call] {
		all := []pipz.Chainable[*Call]{p}
		for _, t := range fallbacks {
			all = append(all, transportStage(t))
		}
		return pipz.NewFallback(fallbackID, all...)
	}
}

// transportStage adapts a Transport into a pipeline processor that fills
// Call.Payload.
func transportStage(t Transport) pipz.Chainable[*Call] {
	return pipz.Apply(transportID, func(ctx context.Context, call *Call) (*Call, error) {
		payload, err := t.Send(ctx, call.Key, call.Options)
		if err != nil {
			call.setFailure(err)
			return call, err
		}
		call.setFailure(nil)
		call.Payload = payload
		return call, nil
	})
}
