// Package firestore provides a fetchz.Transport and fetchz.Notifier for
// Firestore documents, using realtime listeners for change detection.
//
// Each resource is one document of a collection, holding its payload in a
// single field. Resource keys are query-escaped into document IDs, so
// "activities/1" is stored as "activities%2F1".
package firestore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"cloud.google.com/go/firestore"
	"github.com/zoobzio/fetchz"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type options struct {
	collection string
	field      string
}

// Option configures a Transport or Notifier.
type Option func(*options)

// WithCollection sets the collection holding resources.
// Defaults to "resources".
func WithCollection(collection string) Option {
	return func(o *options) {
		o.collection = collection
	}
}

// WithField sets the document field holding the payload. Defaults to "data".
func WithField(field string) Option {
	return func(o *options) {
		o.field = field
	}
}

func newOptions(opts []Option) options {
	o := options{collection: "resources", field: "data"}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// DocumentID returns the document ID used for a resource key.
func DocumentID(key string) string {
	return url.QueryEscape(key)
}

// Transport reads and writes resource documents.
//
// GET returns the payload field, PUT and POST store the request body and
// return it, DELETE removes the document and returns the payload it held. A
// missing document or field fails with status 404.
type Transport struct {
	client *firestore.Client
	opts   options
}

// NewTransport creates a Transport over client.
func NewTransport(client *firestore.Client, opts ...Option) *Transport {
	return &Transport{client: client, opts: newOptions(opts)}
}

// Send implements fetchz.Transport.
func (t *Transport) Send(ctx context.Context, key string, call fetchz.CallOptions) ([]byte, error) {
	doc := t.client.Collection(t.opts.collection).Doc(DocumentID(key))

	switch call.Method {
	case "", http.MethodGet:
		return t.get(ctx, doc)

	case http.MethodPut, http.MethodPost:
		_, err := doc.Set(ctx, map[string]interface{}{
			t.opts.field: call.Body,
		}, firestore.MergeAll)
		if err != nil {
			return nil, fetchz.NetworkError(fmt.Errorf("failed to set document: %w", err))
		}
		return call.Body, nil

	case http.MethodDelete:
		value, err := t.get(ctx, doc)
		if err != nil {
			return nil, err
		}
		if _, err := doc.Delete(ctx); err != nil {
			return nil, fetchz.NetworkError(fmt.Errorf("failed to delete document: %w", err))
		}
		return value, nil

	default:
		return nil, fetchz.StatusError(http.StatusMethodNotAllowed)
	}
}

func (t *Transport) get(ctx context.Context, doc *firestore.DocumentRef) ([]byte, error) {
	snap, err := doc.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fetchz.StatusError(http.StatusNotFound)
	}
	if err != nil {
		return nil, fetchz.NetworkError(err)
	}

	value := payload(snap.Data(), t.opts.field)
	if value == nil {
		return nil, fetchz.StatusError(http.StatusNotFound)
	}
	return value, nil
}

func payload(data map[string]interface{}, field string) []byte {
	switch v := data[field].(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return nil
	}
}

// Notifier emits the keys of resource documents that are added, modified or
// removed in the collection.
type Notifier struct {
	client *firestore.Client
	opts   options
}

// NewNotifier creates a Notifier over client.
func NewNotifier(client *firestore.Client, opts ...Option) *Notifier {
	return &Notifier{client: client, opts: newOptions(opts)}
}

// Notify starts a realtime listener on the collection. Documents present
// when listening starts are not reported.
func (n *Notifier) Notify(ctx context.Context) (<-chan string, error) {
	snapshots := n.client.Collection(n.opts.collection).Snapshots(ctx)

	// The first snapshot reports every existing document as added.
	if _, err := snapshots.Next(); err != nil {
		snapshots.Stop()
		return nil, fmt.Errorf("failed to start listener: %w", err)
	}

	out := make(chan string)

	go func() {
		defer close(out)
		defer snapshots.Stop()

		for {
			snap, err := snapshots.Next()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}

			for _, change := range snap.Changes {
				key, err := url.QueryUnescape(change.Doc.Ref.ID)
				if err != nil {
					continue
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

var (
	_ fetchz.Transport = (*Transport)(nil)
	_ fetchz.Notifier  = (*Notifier)(nil)
)
