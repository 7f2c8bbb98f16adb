// Package cli is the streakctl command line: the offline-first client.
package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gdg-garage/streak-ledger/internal/config"
	"github.com/gdg-garage/streak-ledger/internal/ledgerclient"
	"github.com/gdg-garage/streak-ledger/internal/localstore"
	"github.com/gdg-garage/streak-ledger/internal/offline"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string

	// Now overrides the wall clock (for testing).
	Now func() time.Time
}

// NewRootCommand creates the root command for streakctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "streakctl",
		Short: "Record learning completions and keep the daily streak in sync",
		Long: `streakctl records module completions locally, queues them while the
ledger is unreachable and replays the queue when it comes back.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (yaml, toml or json)")

	cmd.AddCommand(newCompleteCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))
	return cmd
}

// app is the client wiring shared by the commands.
type app struct {
	cfg     *config.Config
	store   *localstore.Store
	client  *ledgerclient.Client
	tracker *offline.Tracker
}

func loadConfig(opts *RootOptions) (*config.Config, error) {
	v, err := config.New(opts.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return config.Decode(v)
}

func openApp(opts *RootOptions, out io.Writer) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	store, err := localstore.Open(cfg.LocalStorePath, cfg.LocalNamespace)
	if err != nil {
		return nil, err
	}
	client := ledgerclient.New(cfg.LedgerURL, cfg.LedgerToken, cfg.RequestTimeout)
	tracker := offline.NewTracker(store, client, offline.NewSession(), offline.Options{
		Now:      opts.Now,
		Notifier: writerNotifier{out: out},
	})
	return &app{cfg: cfg, store: store, client: client, tracker: tracker}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// writerNotifier prints notifications to the terminal.
type writerNotifier struct {
	out io.Writer
}

func (n writerNotifier) Notify(ctx context.Context, note offline.Notification) error {
	_, err := fmt.Fprintf(n.out, "* %s: %s\n", note.Title, note.Body)
	return err
}
