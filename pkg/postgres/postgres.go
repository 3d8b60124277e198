// Package postgres provides a fetchz.Transport and fetchz.Notifier for
// PostgreSQL, storing resources in a key/value table and using
// LISTEN/NOTIFY for change detection.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zoobzio/fetchz"
)

type options struct {
	table   string
	channel string
}

// Option configures a Transport, Notifier or EnsureSchema.
type Option func(*options)

// WithTable sets the table holding resources. Defaults to "resources".
func WithTable(table string) Option {
	return func(o *options) {
		o.table = table
	}
}

// WithChannel sets the notification channel. Defaults to "resources_changed".
func WithChannel(channel string) Option {
	return func(o *options) {
		o.channel = channel
	}
}

func newOptions(opts []Option) options {
	o := options{table: "resources", channel: "resources_changed"}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// EnsureSchema creates the resource table and a trigger that notifies the
// channel with the key of every inserted, updated or deleted row:
//
//	CREATE TABLE resources (key TEXT PRIMARY KEY, value BYTEA NOT NULL);
//
// It is safe to call repeatedly.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, opts ...Option) error {
	o := newOptions(opts)
	table := pgx.Identifier{o.table}.Sanitize()
	fn := pgx.Identifier{"notify_" + o.table + "_change"}.Sanitize()
	trigger := pgx.Identifier{o.table + "_change_trigger"}.Sanitize()

	sql := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			key TEXT PRIMARY KEY,
			value BYTEA NOT NULL
		);

		CREATE OR REPLACE FUNCTION %[2]s() RETURNS trigger AS $$
		BEGIN
			PERFORM pg_notify('%[4]s', COALESCE(NEW.key, OLD.key));
			RETURN NULL;
		END;
		$$ LANGUAGE plpgsql;

		DROP TRIGGER IF EXISTS %[3]s ON %[1]s;
		CREATE TRIGGER %[3]s
			AFTER INSERT OR UPDATE OR DELETE ON %[1]s
			FOR EACH ROW EXECUTE FUNCTION %[2]s();
	`, table, fn, trigger, o.channel)

	if _, err := pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("failed to set up schema: %w", err)
	}
	return nil
}

// Transport reads and writes rows of the resource table.
//
// GET returns the row's value, PUT and POST upsert the request body and
// return it, DELETE removes the row and returns the value it held. A missing
// row fails with status 404.
type Transport struct {
	pool  *pgxpool.Pool
	table string
}

// NewTransport creates a Transport over pool.
func NewTransport(pool *pgxpool.Pool, opts ...Option) *Transport {
	o := newOptions(opts)
	return &Transport{pool: pool, table: pgx.Identifier{o.table}.Sanitize()}
}

// Send implements fetchz.Transport.
func (t *Transport) Send(ctx context.Context, key string, call fetchz.CallOptions) ([]byte, error) {
	var (
		query string
		args  = []any{key}
	)

	switch call.Method {
	case "", http.MethodGet:
		query = fmt.Sprintf("SELECT value FROM %s WHERE key = $1", t.table)

	case http.MethodPut, http.MethodPost:
		query = fmt.Sprintf(`INSERT INTO %s (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
			RETURNING value`, t.table)
		args = append(args, call.Body)

	case http.MethodDelete:
		query = fmt.Sprintf("DELETE FROM %s WHERE key = $1 RETURNING value", t.table)

	default:
		return nil, fetchz.StatusError(http.StatusMethodNotAllowed)
	}

	var value []byte
	err := t.pool.QueryRow(ctx, query, args...).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fetchz.StatusError(http.StatusNotFound)
	}
	if err != nil {
		return nil, fetchz.NetworkError(err)
	}
	return value, nil
}

// Notifier emits the keys delivered on the notification channel.
type Notifier struct {
	pool    *pgxpool.Pool
	channel string
}

// NewNotifier creates a Notifier over pool.
func NewNotifier(pool *pgxpool.Pool, opts ...Option) *Notifier {
	o := newOptions(opts)
	return &Notifier{pool: pool, channel: o.channel}
}

// Notify acquires a dedicated connection and listens on the channel until
// ctx is done.
func (n *Notifier) Notify(ctx context.Context) (<-chan string, error) {
	conn, err := n.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	// Start listening
	_, err = conn.Exec(ctx, "LISTEN "+pgx.Identifier{n.channel}.Sanitize())
	if err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to listen on channel %s: %w", n.channel, err)
	}

	out := make(chan string)

	go func() {
		defer close(out)
		defer conn.Release()

		for {
			notification, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}

			select {
			case out <- notification.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

var (
	_ fetchz.Transport = (*Transport)(nil)
	_ fetchz.Notifier  = (*Notifier)(nil)
)
