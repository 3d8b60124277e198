// Package redis provides a fetchz.Transport and fetchz.Notifier for Redis
// string keys, using keyspace notifications for change detection.
package redis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/zoobzio/fetchz"
)

type options struct {
	prefix string
	db     int
}

// Option configures a Transport or Notifier.
type Option func(*options)

// WithPrefix maps resource keys to Redis keys by prepending prefix.
// Notifiers strip the prefix again before emitting.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithDB sets the database number whose keyspace channel is subscribed to.
// Must match the client's DB. Defaults to 0.
func WithDB(db int) Option {
	return func(o *options) {
		o.db = db
	}
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Transport reads and writes resources stored as Redis strings.
//
// GET returns the value, PUT and POST store the request body and return it,
// DELETE removes the key and returns the value it held. A missing key fails
// with status 404.
type Transport struct {
	client *redis.Client
	opts   options
}

// NewTransport creates a Transport over client.
func NewTransport(client *redis.Client, opts ...Option) *Transport {
	return &Transport{client: client, opts: newOptions(opts)}
}

// Send implements fetchz.Transport.
func (t *Transport) Send(ctx context.Context, key string, call fetchz.CallOptions) ([]byte, error) {
	k := t.opts.prefix + key

	switch call.Method {
	case "", http.MethodGet:
		val, err := t.client.Get(ctx, k).Bytes()
		return result(val, err)

	case http.MethodPut, http.MethodPost:
		if err := t.client.Set(ctx, k, call.Body, 0).Err(); err != nil {
			return nil, fetchz.NetworkError(fmt.Errorf("failed to set %s: %w", k, err))
		}
		return call.Body, nil

	case http.MethodDelete:
		val, err := t.client.GetDel(ctx, k).Bytes()
		return result(val, err)

	default:
		return nil, fetchz.StatusError(http.StatusMethodNotAllowed)
	}
}

func result(val []byte, err error) ([]byte, error) {
	if errors.Is(err, redis.Nil) {
		return nil, fetchz.StatusError(http.StatusNotFound)
	}
	if err != nil {
		return nil, fetchz.NetworkError(err)
	}
	return val, nil
}

// Notifier emits resource keys whose Redis values change. Requires Redis to
// have keyspace notifications enabled:
//
//	CONFIG SET notify-keyspace-events KEA
//
// Or in redis.conf:
//
//	notify-keyspace-events KEA
type Notifier struct {
	client *redis.Client
	opts   options
}

// NewNotifier creates a Notifier over client.
func NewNotifier(client *redis.Client, opts ...Option) *Notifier {
	return &Notifier{client: client, opts: newOptions(opts)}
}

// Notify subscribes to keyspace notifications under the configured prefix.
func (n *Notifier) Notify(ctx context.Context) (<-chan string, error) {
	channelPrefix := fmt.Sprintf("__keyspace@%d__:", n.opts.db)
	pubsub := n.client.PSubscribe(ctx, channelPrefix+n.opts.prefix+"*")

	// Verify subscription worked
	_, err := pubsub.Receive(ctx)
	if err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to keyspace notifications: %w", err)
	}

	out := make(chan string)

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				switch msg.Payload {
				case "set", "mset", "setex", "psetex", "setnx", "del", "getdel", "expired", "rename_to":
				default:
					continue
				}

				key := strings.TrimPrefix(msg.Channel, channelPrefix)
				key = strings.TrimPrefix(key, n.opts.prefix)
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

var (
	_ fetchz.Transport = (*Transport)(nil)
	_ fetchz.Notifier  = (*Notifier)(nil)
)
