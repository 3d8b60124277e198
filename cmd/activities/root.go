package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/fetchz"
	"github.com/zoobzio/fetchz/internal/activity"
)

// config is the resolved command configuration.
type config struct {
	Addr    string
	BaseURL string
	Timeout time.Duration
	Retries int
	Verbose bool
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("FETCHZ")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "activities",
		Short:         "Serve and manage a to-do list of activities",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("addr", ":8080", "address the server listens on")
	flags.String("base-url", "http://localhost:8080", "base URL of the activities server")
	flags.Duration("timeout", 5*time.Second, "timeout for each request")
	flags.Int("retries", 1, "attempts per request")
	flags.BoolP("verbose", "v", false, "print fetch events")
	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}

	load := func() config {
		return config{
			Addr:    v.GetString("addr"),
			BaseURL: v.GetString("base-url"),
			Timeout: v.GetDuration("timeout"),
			Retries: v.GetInt("retries"),
			Verbose: v.GetBool("verbose"),
		}
	}

	root.AddCommand(
		newServeCmd(load),
		newListCmd(load),
		newAddCmd(load),
		newToggleCmd(load),
		newDeleteCmd(load),
	)
	return root
}

// newClient builds an activity client from cfg and starts it. The list is
// fetched during start; its failure is left in the list state for rendering.
func newClient(ctx context.Context, cfg config, out io.Writer) (*activity.Client, error) {
	opts := []fetchz.Option{fetchz.WithTimeout(cfg.Timeout)}
	if cfg.Retries > 1 {
		opts = append(opts, fetchz.WithRetry(cfg.Retries))
	}
	if cfg.Verbose {
		hookEvents(out)
	}

	client := activity.NewClient(fetchz.NewHTTPTransport(cfg.BaseURL), opts...)
	if err := client.Start(ctx); err != nil {
		if _, failed := client.List().Failure(); !failed {
			client.Close()
			return nil, err
		}
	}
	return client, nil
}

// hookEvents prints executor events to out.
func hookEvents(out io.Writer) {
	capitan.Hook(fetchz.StateChanged, func(_ context.Context, e *capitan.Event) {
		from, _ := fetchz.KeyOldStatus.From(e)
		to, _ := fetchz.KeyNewStatus.From(e)
		fmt.Fprintf(out, "[STATE] %s → %s\n", from, to)
	})
	capitan.Hook(fetchz.CacheHit, func(_ context.Context, e *capitan.Event) {
		key, _ := fetchz.KeyResource.From(e)
		fmt.Fprintf(out, "[CACHE] %s\n", key)
	})
	capitan.Hook(fetchz.FetchFailed, func(_ context.Context, e *capitan.Event) {
		key, _ := fetchz.KeyResource.From(e)
		msg, _ := fetchz.KeyError.From(e)
		fmt.Fprintf(out, "[FAILED] %s: %s\n", key, msg)
	})
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
