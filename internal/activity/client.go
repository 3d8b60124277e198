package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/zoobzio/fetchz"
)

// ErrUnknownActivity is returned when toggling an activity that is not in
// the last fetched list.
var ErrUnknownActivity = errors.New("activity is not in the current list")

// Client drives the activity list through fetchz executors. The list
// executor runs in auto mode and fetches on Start. Mutations run on manual
// executors and, once they succeed, invalidate the list and fetch it again.
type Client struct {
	list   *fetchz.Executor[Activities]
	create *fetchz.Executor[Activity]
	change *fetchz.Executor[Activity]
	remove *fetchz.Executor[Activity]

	// known is the last fetched list; it outlives the Fetching state of a
	// refresh.
	known atomic.Pointer[Activities]
}

// NewClient creates a client over transport. Pipeline options apply to every
// executor.
func NewClient(transport fetchz.Transport, opts ...fetchz.Option) *Client {
	c := &Client{
		list:   fetchz.New[Activities](transport, opts...).Key(ListKey),
		create: fetchz.New[Activity](transport, opts...).Manual(),
		change: fetchz.New[Activity](transport, opts...).Manual(),
		remove: fetchz.New[Activity](transport, opts...).Manual(),
	}
	c.list.OnChange(func(_, to fetchz.RequestState[Activities]) {
		if items, ok := to.Value(); ok {
			c.known.Store(&items)
		}
	})
	return c
}

// OnChange registers fn for list state transitions. Call before Start.
func (c *Client) OnChange(fn func(from, to fetchz.RequestState[Activities])) *Client {
	c.list.OnChange(fn)
	return c
}

// Start starts every executor; the list is fetched immediately.
func (c *Client) Start(ctx context.Context) error {
	for _, start := range []func(context.Context) error{
		c.create.Start,
		c.change.Start,
		c.remove.Start,
	} {
		if err := start(ctx); err != nil {
			return err
		}
	}
	return c.list.Start(ctx)
}

// Follow invalidates and refetches the list on change notifications from n.
func (c *Client) Follow(ctx context.Context, n fetchz.Notifier) error {
	return c.list.Follow(ctx, n)
}

// List returns the current list state.
func (c *Client) List() fetchz.RequestState[Activities] {
	return c.list.State()
}

// Refresh fetches the list from the transport, bypassing the cache.
func (c *Client) Refresh(ctx context.Context) error {
	c.list.Invalidate(ListKey)
	return c.list.Execute(ctx, ListKey)
}

// Add creates an activity. An empty description is rejected without a
// request.
func (c *Client) Add(ctx context.Context, description string) error {
	if description == "" {
		return ErrEmptyDescription
	}
	body, err := json.Marshal(createRequest{Description: description})
	if err != nil {
		return fmt.Errorf("failed to encode activity: %w", err)
	}
	return c.mutate(ctx, c.create, ListKey, fetchz.CallOptions{
		Method: http.MethodPost,
		Body:   body,
	})
}

// Toggle flips the checked flag of an activity in the last fetched list,
// which stays available while a refresh is in flight.
func (c *Client) Toggle(ctx context.Context, id string) error {
	var items Activities
	if known := c.known.Load(); known != nil {
		items = *known
	}
	a, ok := items.Find(id)
	if !ok {
		return ErrUnknownActivity
	}
	body, err := json.Marshal(updateRequest{Checked: ptr(!a.Checked)})
	if err != nil {
		return fmt.Errorf("failed to encode activity: %w", err)
	}
	return c.mutate(ctx, c.change, ItemKey(id), fetchz.CallOptions{
		Method: http.MethodPut,
		Body:   body,
	})
}

// Delete removes an activity.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.mutate(ctx, c.remove, ItemKey(id), fetchz.CallOptions{
		Method: http.MethodDelete,
	})
}

// Close tears down every executor.
func (c *Client) Close() error {
	for _, e := range []interface{ Close() error }{c.list, c.create, c.change, c.remove} {
		_ = e.Close() //nolint:errcheck // Close always returns nil
	}
	return nil
}

// mutate runs a mutating call and refreshes the list afterwards. Mutation
// executors cache by key like any other, so the key is invalidated first to
// make every mutation reach the transport.
func (c *Client) mutate(ctx context.Context, e *fetchz.Executor[Activity], key string, opts fetchz.CallOptions) error {
	e.Invalidate(key)
	if err := e.Execute(ctx, key, opts); err != nil {
		return err
	}
	return c.Refresh(ctx)
}

func ptr[T any](v T) *T {
	return &v
}
