package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/fetchz/internal/activity"
)

func newServeCmd(load func() config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the activities server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := load()
			out := cmd.OutOrStdout()

			capitan.Hook(activity.Created, func(_ context.Context, e *capitan.Event) {
				id, _ := activity.KeyID.From(e)
				desc, _ := activity.KeyDescription.From(e)
				fmt.Fprintf(out, "[CREATED] %s %q\n", id, desc)
			})
			capitan.Hook(activity.Updated, func(_ context.Context, e *capitan.Event) {
				id, _ := activity.KeyID.From(e)
				checked, _ := activity.KeyChecked.From(e)
				fmt.Fprintf(out, "[UPDATED] %s checked=%t\n", id, checked)
			})
			capitan.Hook(activity.Deleted, func(_ context.Context, e *capitan.Event) {
				id, _ := activity.KeyID.From(e)
				fmt.Fprintf(out, "[DELETED] %s\n", id)
			})

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			server := activity.NewServer(activity.NewStore())
			errs := make(chan error, 1)
			go func() {
				errs <- server.Start(cfg.Addr)
			}()
			fmt.Fprintf(out, "listening on %s\n", cfg.Addr)

			select {
			case err := <-errs:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}

func newListCmd(load func() config) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show all activities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newClient(cmd.Context(), load(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer client.Close()
			return activity.Render(cmd.OutOrStdout(), client.List())
		},
	}
}

func newAddCmd(load func() config) *cobra.Command {
	return &cobra.Command{
		Use:   "add <description>",
		Short: "Create an activity",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mutate(cmd, load, func(ctx context.Context, c *activity.Client) error {
				return c.Add(ctx, strings.Join(args, " "))
			})
		},
	}
}

func newToggleCmd(load func() config) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Check or uncheck an activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mutate(cmd, load, func(ctx context.Context, c *activity.Client) error {
				return c.Toggle(ctx, args[0])
			})
		},
	}
}

func newDeleteCmd(load func() config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mutate(cmd, load, func(ctx context.Context, c *activity.Client) error {
				return c.Delete(ctx, args[0])
			})
		},
	}
}

// mutate runs fn against a started client and renders the refreshed list.
func mutate(cmd *cobra.Command, load func() config, fn func(context.Context, *activity.Client) error) error {
	ctx := cmd.Context()
	client, err := newClient(ctx, load(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer client.Close()

	if err := fn(ctx, client); err != nil {
		return err
	}
	return activity.Render(cmd.OutOrStdout(), client.List())
}
