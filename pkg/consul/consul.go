// Package consul provides a fetchz.Transport and fetchz.Notifier for Consul
// KV, using blocking queries for change detection.
package consul

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hashicorp/consul/api"
	"github.com/zoobzio/fetchz"
)

type options struct {
	prefix string
}

// Option configures a Transport or Notifier.
type Option func(*options)

// WithPrefix maps resource keys to Consul keys by prepending prefix, for
// example "app/". Notifiers watch only keys under the prefix and strip it
// before emitting.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Transport reads and writes Consul KV pairs.
//
// GET returns the value, PUT and POST store the request body and return it,
// DELETE removes the pair and returns the value it held. A missing key fails
// with status 404.
type Transport struct {
	kv   *api.KV
	opts options
}

// NewTransport creates a Transport over client.
func NewTransport(client *api.Client, opts ...Option) *Transport {
	return &Transport{kv: client.KV(), opts: newOptions(opts)}
}

// Send implements fetchz.Transport.
func (t *Transport) Send(ctx context.Context, key string, call fetchz.CallOptions) ([]byte, error) {
	k := t.opts.prefix + key

	switch call.Method {
	case "", http.MethodGet:
		return t.get(ctx, k)

	case http.MethodPut, http.MethodPost:
		wopts := (&api.WriteOptions{}).WithContext(ctx)
		if _, err := t.kv.Put(&api.KVPair{Key: k, Value: call.Body}, wopts); err != nil {
			return nil, fetchz.NetworkError(fmt.Errorf("failed to put %s: %w", k, err))
		}
		return call.Body, nil

	case http.MethodDelete:
		value, err := t.get(ctx, k)
		if err != nil {
			return nil, err
		}
		wopts := (&api.WriteOptions{}).WithContext(ctx)
		if _, err := t.kv.Delete(k, wopts); err != nil {
			return nil, fetchz.NetworkError(fmt.Errorf("failed to delete %s: %w", k, err))
		}
		return value, nil

	default:
		return nil, fetchz.StatusError(http.StatusMethodNotAllowed)
	}
}

func (t *Transport) get(ctx context.Context, k string) ([]byte, error) {
	pair, _, err := t.kv.Get(k, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fetchz.NetworkError(err)
	}
	if pair == nil {
		return nil, fetchz.StatusError(http.StatusNotFound)
	}
	return pair.Value, nil
}

// Notifier emits resource keys whose Consul KV pairs are created, modified
// or deleted under the configured prefix.
type Notifier struct {
	kv   *api.KV
	opts options
}

// NewNotifier creates a Notifier over client.
func NewNotifier(client *api.Client, opts ...Option) *Notifier {
	return &Notifier{kv: client.KV(), opts: newOptions(opts)}
}

// Notify begins watching the prefix with blocking queries. Pairs present
// when watching starts are not reported.
func (n *Notifier) Notify(ctx context.Context) (<-chan string, error) {
	pairs, meta, err := n.kv.List(n.opts.prefix, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list initial keys: %w", err)
	}

	out := make(chan string)

	go func() {
		defer close(out)

		lastIndex := meta.LastIndex
		known := indexes(pairs)

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			opts := &api.QueryOptions{
				WaitIndex: lastIndex,
			}
			opts = opts.WithContext(ctx)

			pairs, meta, err := n.kv.List(n.opts.prefix, opts)
			if err != nil {
				// Context cancelled
				if ctx.Err() != nil {
					return
				}
				// Other error - continue watching
				continue
			}
			if meta.LastIndex <= lastIndex {
				continue
			}
			lastIndex = meta.LastIndex

			current := indexes(pairs)
			for _, key := range changed(known, current) {
				select {
				case out <- strings.TrimPrefix(key, n.opts.prefix):
				case <-ctx.Done():
					return
				}
			}
			known = current
		}
	}()

	return out, nil
}

func indexes(pairs api.KVPairs) map[string]uint64 {
	out := make(map[string]uint64, len(pairs))
	for _, p := range pairs {
		out[p.Key] = p.ModifyIndex
	}
	return out
}

// changed returns the keys added, modified or removed between two listings.
func changed(before, after map[string]uint64) []string {
	var keys []string
	for k, idx := range after {
		if prev, ok := before[k]; !ok || prev != idx {
			keys = append(keys, k)
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			keys = append(keys, k)
		}
	}
	return keys
}

var (
	_ fetchz.Transport = (*Transport)(nil)
	_ fetchz.Notifier  = (*Notifier)(nil)
)
