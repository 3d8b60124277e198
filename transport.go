package fetchz

import "context"

// Transport retrieves the raw payload for a resource key.
//
// Implementations should return errors built with NetworkError, StatusError
// or DecodeError when they can tell failures apart. Any other error is
// treated as a network failure.
type Transport interface {
	Send(ctx context.Context, key string, opts CallOptions) ([]byte, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, key string, opts CallOptions) ([]byte, error)

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, key string, opts CallOptions) ([]byte, error) {
	return f(ctx, key, opts)
}

// Notifier observes a backend and emits the keys of resources that changed.
// The channel is closed when the context is canceled or an unrecoverable
// error occurs.
type Notifier interface {
	Notify(ctx context.Context) (<-chan string, error)
}

// ChannelNotifier wraps an existing key channel as a Notifier.
// Useful for testing and for sources that already produce change keys.
type ChannelNotifier struct {
	ch <-chan string
}

// NewChannelNotifier creates a ChannelNotifier over ch.
func NewChannelNotifier(ch <-chan string) *ChannelNotifier {
	return &ChannelNotifier{ch: ch}
}

// Notify forwards keys from the wrapped channel until it closes or ctx is done.
func (n *ChannelNotifier) Notify(ctx context.Context) (<-chan string, error) {
	out := make(chan string)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case key, ok := <-n.ch:
				if !ok {
					return
				}
				select {
				case out <- key:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
