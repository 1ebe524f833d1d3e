package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"slappd/internal/storage"
)

type backendOpts struct {
	kind     string
	database string
	redisURL string
}

type openFunc func(ctx context.Context, o backendOpts) (storage.Backend, error)

func openBackend(ctx context.Context, o backendOpts) (storage.Backend, error) {
	b, err := storage.Open(ctx, o.kind, o.database, o.redisURL)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errors.New("backend \"none\" keeps no cursors to inspect")
	}
	return b, nil
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd(openBackend).Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(open openFunc) *cobra.Command {
	var o backendOpts

	root := &cobra.Command{
		Use:           "cursorctl",
		Short:         "Inspect and edit slappd check-in cursors",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&o.kind, "backend", defaultBackend(), "cursor backend: sqlite|redis")
	root.PersistentFlags().StringVar(&o.database, "db", envOrDefault("DATABASE_PATH", "./data/slappd.db"), "path to sqlite database")
	root.PersistentFlags().StringVar(&o.redisURL, "redis", os.Getenv("REDIS_URL"), "redis URL")

	// withBackend opens the backend for the duration of fn.
	withBackend := func(fn func(ctx context.Context, b storage.Backend, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			b, err := open(ctx, o)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()
			return fn(ctx, b, cmd, args)
		}
	}

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored cursors",
		Args:  cobra.NoArgs,
		RunE: withBackend(func(ctx context.Context, b storage.Backend, cmd *cobra.Command, _ []string) error {
			cursors, err := b.ListCursors(ctx)
			if err != nil {
				return err
			}
			if len(cursors) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no cursors")
				return nil
			}
			users := make([]string, 0, len(cursors))
			for u := range cursors {
				users = append(users, u)
			}
			slices.Sort(users)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "USER\tCHECKIN")
			for _, u := range users {
				_, _ = fmt.Fprintf(w, "%s\t%d\n", u, cursors[u])
			}
			return w.Flush()
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "get <user>",
		Short: "Show the cursor for a user",
		Args:  cobra.ExactArgs(1),
		RunE: withBackend(func(ctx context.Context, b storage.Backend, cmd *cobra.Command, args []string) error {
			id, ok, err := b.GetCursor(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no cursor for %s", args[0])
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "set <user> <checkin-id>",
		Short: "Overwrite the cursor for a user",
		Args:  cobra.ExactArgs(2),
		RunE: withBackend(func(ctx context.Context, b storage.Backend, cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid checkin id %q", args[1])
			}
			if err := b.SetCursor(ctx, args[0], id); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s -> %d\n", args[0], id)
			return nil
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "clear <user>",
		Short: "Forget the cursor for a user so the daemon re-seeds it",
		Args:  cobra.ExactArgs(1),
		RunE: withBackend(func(ctx context.Context, b storage.Backend, cmd *cobra.Command, args []string) error {
			if err := b.DeleteCursor(ctx, args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", args[0])
			return nil
		}),
	})

	var limit int
	resets := &cobra.Command{
		Use:   "resets",
		Short: "Show recently cleared cursors (sqlite only)",
		Args:  cobra.NoArgs,
		RunE: withBackend(func(ctx context.Context, b storage.Backend, cmd *cobra.Command, _ []string) error {
			lister, ok := b.(interface {
				ListResets(ctx context.Context, limit int) ([]storage.Reset, error)
			})
			if !ok {
				return fmt.Errorf("backend %q does not record resets", o.kind)
			}
			rs, err := lister.ListResets(ctx, limit)
			if err != nil {
				return err
			}
			if len(rs) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no resets")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "RESET AT\tUSER\tCHECKIN")
			for _, r := range rs {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%d\n", r.ResetAt.UTC().Format(time.RFC3339), r.User, r.CheckinID)
			}
			return w.Flush()
		}),
	}
	resets.Flags().IntVar(&limit, "limit", 20, "maximum number of resets to show")
	root.AddCommand(resets)

	return root
}

func defaultBackend() string {
	if v := os.Getenv("CURSOR_BACKEND"); v != "" {
		return v
	}
	if os.Getenv("REDIS_URL") != "" {
		return storage.KindRedis
	}
	return storage.KindSQLite
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
