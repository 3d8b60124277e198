// Package zookeeper provides a fetchz.Transport and fetchz.Notifier for
// ZooKeeper nodes, using node watches for change detection.
package zookeeper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/go-zookeeper/zk"
	"github.com/zoobzio/fetchz"
)

type options struct {
	root string
}

// Option configures a Transport or Notifier.
type Option func(*options)

// WithRoot sets the node under which resource keys live, for example
// "/app". Defaults to "/".
func WithRoot(root string) Option {
	return func(o *options) {
		o.root = root
	}
}

func newOptions(opts []Option) options {
	o := options{root: "/"}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) path(key string) string {
	return path.Join(o.root, key)
}

// Transport reads and writes node data.
//
// GET returns the node's data, PUT and POST store the request body (creating
// the node and its parents when needed) and return it, DELETE removes the
// node and returns the data it held. A missing node fails with status 404.
type Transport struct {
	conn *zk.Conn
	opts options
}

// NewTransport creates a Transport over conn.
func NewTransport(conn *zk.Conn, opts ...Option) *Transport {
	return &Transport{conn: conn, opts: newOptions(opts)}
}

// Send implements fetchz.Transport. ZooKeeper calls are not context aware;
// ctx is only checked before the call is made.
func (t *Transport) Send(ctx context.Context, key string, call fetchz.CallOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fetchz.NetworkError(err)
	}
	p := t.opts.path(key)

	switch call.Method {
	case "", http.MethodGet:
		data, _, err := t.conn.Get(p)
		return result(data, err)

	case http.MethodPut, http.MethodPost:
		if err := t.write(p, call.Body); err != nil {
			return nil, fetchz.NetworkError(fmt.Errorf("failed to write %s: %w", p, err))
		}
		return call.Body, nil

	case http.MethodDelete:
		data, stat, err := t.conn.Get(p)
		if err != nil {
			return result(nil, err)
		}
		if err := t.conn.Delete(p, stat.Version); err != nil {
			return result(nil, err)
		}
		return data, nil

	default:
		return nil, fetchz.StatusError(http.StatusMethodNotAllowed)
	}
}

func (t *Transport) write(p string, data []byte) error {
	_, err := t.conn.Set(p, data, -1)
	if !errors.Is(err, zk.ErrNoNode) {
		return err
	}
	if err := t.ensureParents(p); err != nil {
		return err
	}
	_, err = t.conn.Create(p, data, 0, zk.WorldACL(zk.PermAll))
	return err
}

func (t *Transport) ensureParents(p string) error {
	parts := strings.Split(strings.Trim(path.Dir(p), "/"), "/")
	current := ""
	for _, part := range parts {
		if part == "" {
			continue
		}
		current += "/" + part
		_, err := t.conn.Create(current, nil, 0, zk.WorldACL(zk.PermAll))
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return err
		}
	}
	return nil
}

func result(data []byte, err error) ([]byte, error) {
	if errors.Is(err, zk.ErrNoNode) {
		return nil, fetchz.StatusError(http.StatusNotFound)
	}
	if err != nil {
		return nil, fetchz.NetworkError(err)
	}
	return data, nil
}

// Notifier emits a fixed set of resource keys whenever their nodes are
// created, changed or deleted.
type Notifier struct {
	conn *zk.Conn
	keys []string
	opts options
}

// NewNotifier creates a Notifier for the given resource keys.
func NewNotifier(conn *zk.Conn, keys []string, opts ...Option) *Notifier {
	return &Notifier{conn: conn, keys: keys, opts: newOptions(opts)}
}

// Notify sets a watch on every key. The channel closes once ctx is done or
// every watch has failed.
func (n *Notifier) Notify(ctx context.Context) (<-chan string, error) {
	if len(n.keys) == 0 {
		return nil, errors.New("no keys to watch")
	}

	out := make(chan string)

	var wg sync.WaitGroup
	for _, key := range n.keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			n.watch(ctx, key, out)
		}(key)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out, nil
}

func (n *Notifier) watch(ctx context.Context, key string, out chan<- string) {
	p := n.opts.path(key)
	for {
		// Set a watch that fires on create, change or delete
		_, _, eventCh, err := n.conn.ExistsW(p)
		if err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case event := <-eventCh:
			if event.Type == zk.EventNotWatching {
				return
			}
			if event.Type != zk.EventNodeCreated &&
				event.Type != zk.EventNodeDataChanged &&
				event.Type != zk.EventNodeDeleted {
				continue
			}
			select {
			case out <- key:
			case <-ctx.Done():
				return
			}
		}
	}
}

var (
	_ fetchz.Transport = (*Transport)(nil)
	_ fetchz.Notifier  = (*Notifier)(nil)
)
