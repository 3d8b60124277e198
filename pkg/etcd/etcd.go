// Package etcd provides a fetchz.Transport and fetchz.Notifier for etcd
// keys, using the native Watch API for change detection.
package etcd

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/zoobzio/fetchz"
	clientv3 "go.etcd.io/etcd/client/v3"
)

type options struct {
	prefix string
}

// Option configures a Transport or Notifier.
type Option func(*options)

// WithPrefix maps resource keys to etcd keys by prepending prefix, for
// example "/app/". Notifiers watch only keys under the prefix and strip it
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

// Transport reads and writes etcd keys.
//
// GET returns the value, PUT and POST store the request body and return it,
// DELETE removes the key and returns the value it held. A missing key fails
// with status 404.
type Transport struct {
	client *clientv3.Client
	opts   options
}

// NewTransport creates a Transport over client.
func NewTransport(client *clientv3.Client, opts ...Option) *Transport {
	return &Transport{client: client, opts: newOptions(opts)}
}

// Send implements fetchz.Transport.
func (t *Transport) Send(ctx context.Context, key string, call fetchz.CallOptions) ([]byte, error) {
	k := t.opts.prefix + key

	switch call.Method {
	case "", http.MethodGet:
		resp, err := t.client.Get(ctx, k)
		if err != nil {
			return nil, fetchz.NetworkError(err)
		}
		if len(resp.Kvs) == 0 {
			return nil, fetchz.StatusError(http.StatusNotFound)
		}
		return resp.Kvs[0].Value, nil

	case http.MethodPut, http.MethodPost:
		if _, err := t.client.Put(ctx, k, string(call.Body)); err != nil {
			return nil, fetchz.NetworkError(fmt.Errorf("failed to put %s: %w", k, err))
		}
		return call.Body, nil

	case http.MethodDelete:
		resp, err := t.client.Delete(ctx, k, clientv3.WithPrevKV())
		if err != nil {
			return nil, fetchz.NetworkError(fmt.Errorf("failed to delete %s: %w", k, err))
		}
		if resp.Deleted == 0 || len(resp.PrevKvs) == 0 {
			return nil, fetchz.StatusError(http.StatusNotFound)
		}
		return resp.PrevKvs[0].Value, nil

	default:
		return nil, fetchz.StatusError(http.StatusMethodNotAllowed)
	}
}

// Notifier emits resource keys that are put or deleted under the configured
// prefix.
type Notifier struct {
	client *clientv3.Client
	opts   options
}

// NewNotifier creates a Notifier over client.
func NewNotifier(client *clientv3.Client, opts ...Option) *Notifier {
	return &Notifier{client: client, opts: newOptions(opts)}
}

// Notify begins watching the prefix from the current revision.
func (n *Notifier) Notify(ctx context.Context) (<-chan string, error) {
	// Get current revision
	resp, err := n.client.Get(ctx, n.opts.prefix, clientv3.WithPrefix(), clientv3.WithCountOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to get current revision: %w", err)
	}

	out := make(chan string)

	go func() {
		defer close(out)

		watchChan := n.client.Watch(ctx, n.opts.prefix,
			clientv3.WithPrefix(),
			clientv3.WithRev(resp.Header.Revision+1),
		)

		for {
			select {
			case <-ctx.Done():
				return
			case watchResp, ok := <-watchChan:
				if !ok {
					return
				}
				if watchResp.Err() != nil {
					continue
				}

				for _, event := range watchResp.Events {
					key := strings.TrimPrefix(string(event.Kv.Key), n.opts.prefix)
					select {
					case out <- key:
					case <-ctx.Done():
						return
					}
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
