package fetchz

import "time"

// MetricsProvider allows integration with metrics systems like Prometheus, StatsD, etc.
// Implement this interface to receive callbacks on key executor events.
type MetricsProvider interface {
	// OnStateChange is called when a transition is applied.
	OnStateChange(from, to Status)

	// OnCacheHit is called when Execute is served from the cache.
	OnCacheHit(key string)

	// OnCacheMiss is called when Execute has to call the transport.
	OnCacheMiss(key string)

	// OnFetchSuccess is called when the transport call and decode succeed.
	OnFetchSuccess(key string, duration time.Duration)

	// OnFetchFailure is called when a request fails.
	OnFetchFailure(key string, kind ErrorKind, duration time.Duration)

	// OnSuppressed is called when a transition is dropped because the
	// executor was closed.
	OnSuppressed(key string)
}

// NoOpMetricsProvider is a no-op implementation of MetricsProvider.
// Use this as an embedded type to implement only the methods you need.
type NoOpMetricsProvider struct{}

func (NoOpMetricsProvider) OnStateChange(_, _ Status)                             {}
func (NoOpMetricsProvider) OnCacheHit(_ string)                                   {}
func (NoOpMetricsProvider) OnCacheMiss(_ string)                                  {}
func (NoOpMetricsProvider) OnFetchSuccess(_ string, _ time.Duration)              {}
func (NoOpMetricsProvider) OnFetchFailure(_ string, _ ErrorKind, _ time.Duration) {}
func (NoOpMetricsProvider) OnSuppressed(_ string)                                 {}
