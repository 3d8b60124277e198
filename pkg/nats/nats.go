// Package nats provides a fetchz.Transport and fetchz.Notifier for NATS
// JetStream KV buckets, using the native Watch API for change detection.
//
// NATS KV keys are dot separated, so resource keys are mapped by replacing
// "/" with "." ("activities/1" is stored as "activities.1") and mapped back
// when notifying.
package nats

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/zoobzio/fetchz"
)

// Transport reads and writes entries of a KV bucket.
//
// GET returns the value, PUT and POST store the request body and return it,
// DELETE removes the entry and returns the value it held. A missing key fails
// with status 404.
type Transport struct {
	kv jetstream.KeyValue
}

// NewTransport creates a Transport over kv.
func NewTransport(kv jetstream.KeyValue) *Transport {
	return &Transport{kv: kv}
}

// Send implements fetchz.Transport.
func (t *Transport) Send(ctx context.Context, key string, call fetchz.CallOptions) ([]byte, error) {
	k := toSubject(key)

	switch call.Method {
	case "", http.MethodGet:
		return t.get(ctx, k)

	case http.MethodPut, http.MethodPost:
		if _, err := t.kv.Put(ctx, k, call.Body); err != nil {
			return nil, fetchz.NetworkError(fmt.Errorf("failed to put %s: %w", k, err))
		}
		return call.Body, nil

	case http.MethodDelete:
		value, err := t.get(ctx, k)
		if err != nil {
			return nil, err
		}
		if err := t.kv.Delete(ctx, k); err != nil {
			return nil, fetchz.NetworkError(fmt.Errorf("failed to delete %s: %w", k, err))
		}
		return value, nil

	default:
		return nil, fetchz.StatusError(http.StatusMethodNotAllowed)
	}
}

func (t *Transport) get(ctx context.Context, k string) ([]byte, error) {
	entry, err := t.kv.Get(ctx, k)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, fetchz.StatusError(http.StatusNotFound)
	}
	if err != nil {
		return nil, fetchz.NetworkError(err)
	}
	return entry.Value(), nil
}

// Notifier emits resource keys whose KV entries are put, deleted or purged.
type Notifier struct {
	kv jetstream.KeyValue
}

// NewNotifier creates a Notifier over kv.
func NewNotifier(kv jetstream.KeyValue) *Notifier {
	return &Notifier{kv: kv}
}

// Notify begins watching the whole bucket. Entries present when watching
// starts are not reported.
func (n *Notifier) Notify(ctx context.Context) (<-chan string, error) {
	watcher, err := n.kv.WatchAll(ctx, jetstream.UpdatesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to watch bucket: %w", err)
	}

	out := make(chan string)

	go func() {
		defer close(out)
		defer watcher.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					return
				}
				// nil entry signals end of initial values
				if entry == nil {
					continue
				}

				select {
				case out <- fromSubject(entry.Key()):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func toSubject(key string) string {
	return strings.ReplaceAll(strings.Trim(key, "/"), "/", ".")
}

func fromSubject(key string) string {
	return strings.ReplaceAll(key, ".", "/")
}

var (
	_ fetchz.Transport = (*Transport)(nil)
	_ fetchz.Notifier  = (*Notifier)(nil)
)
