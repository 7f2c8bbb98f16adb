package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gdg-garage/streak-ledger/internal/auth"
	"github.com/gdg-garage/streak-ledger/internal/connectivity"
	"github.com/gdg-garage/streak-ledger/internal/offline"
	"github.com/gdg-garage/streak-ledger/internal/streak"
	"github.com/spf13/cobra"
)

func newCompleteCommand(opts *RootOptions) *cobra.Command {
	var sync bool
	cmd := &cobra.Command{
		Use:   "complete <module-id>",
		Short: "Record a module completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			a, err := openApp(opts, out)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			snap := a.tracker.CompleteModule(ctx, args[0])
			fmt.Fprintf(out, "streak: %d (longest %d)\n", snap.CurrentStreak, snap.LongestStreak)
			if sync {
				runSync(ctx, a.tracker, out)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&sync, "sync", false, "sync with the ledger after recording")
	return cmd
}

func newSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay queued completions against the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			a, err := openApp(opts, out)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.tracker.ProcessQueue(cmd.Context()); err != nil {
				return fmt.Errorf("sync failed, queue kept: %w", err)
			}
			printSynced(out, a.tracker.Snapshot())
			return nil
		},
	}
}

type statusOutput struct {
	streak.Snapshot
	Status  streak.Status `json:"status"`
	Pending int           `json:"pending"`
}

func newStatusCommand(opts *RootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the local streak",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			a, err := openApp(opts, out)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			a.tracker.Load(ctx)
			view := a.tracker.View()
			pending, _ := a.store.GetPendingEvents(ctx)

			st := statusOutput{Snapshot: view, Status: streak.StatusAt(view, now(opts)), Pending: len(pending)}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			fmt.Fprintf(out, "streak:  %d (longest %d)\n", st.CurrentStreak, st.LongestStreak)
			fmt.Fprintf(out, "status:  %s\n", st.Status)
			fmt.Fprintf(out, "week:    %s\n", strings.Join(st.StreakDays, " "))
			fmt.Fprintf(out, "pending: %d\n", st.Pending)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newWatchCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Sync whenever the ledger becomes reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			a, err := openApp(opts, out)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a.tracker.Load(ctx)
			watcher := connectivity.New(a.client.Ping, a.cfg.ProbeInterval, a.cfg.RequestTimeout)
			for ev := range watcher.Run(ctx) {
				if ev.CameOnline {
					runSync(ctx, a.tracker, out)
				}
				a.tracker.CheckReminder(ctx)
			}
			return nil
		},
	}
}

func newTokenCommand(opts *RootOptions) *cobra.Command {
	var userID uint
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}
			token, err := auth.NewAuthHandler(cfg).GenerateToken(userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().UintVar(&userID, "user-id", 1, "user id to embed")
	return cmd
}

// runSync reports a failed attempt without failing the command; the queue
// is retried on the next trigger.
func runSync(ctx context.Context, t *offline.Tracker, out io.Writer) {
	res, err := t.ProcessQueue(ctx)
	switch {
	case err != nil:
		fmt.Fprintf(out, "sync deferred: %v\n", err)
	case res.Skipped:
	case res.Submitted > 0:
		printSynced(out, res.Snapshot)
	}
}

func printSynced(out io.Writer, snap streak.Snapshot) {
	fmt.Fprintf(out, "synced: streak %d (longest %d)\n", snap.CurrentStreak, snap.LongestStreak)
}

func now(opts *RootOptions) time.Time {
	if opts.Now != nil {
		return opts.Now()
	}
	return time.Now()
}
