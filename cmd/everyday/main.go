// Command everyday manages the local memories calendar: memories per day,
// trips over day ranges, and the upload queue that mirrors them remotely.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/4tyam/everyday/internal/config"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root, err := newRootCmd()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newRootCmd resolves defaults from the environment and lets flags override them.
func newRootCmd() (*cobra.Command, error) {
	cfg, err := config.FromEnv(config.Default(), os.LookupEnv)
	if err != nil {
		return nil, err
	}
	opts := &rootOptions{cfg: cfg}

	root := &cobra.Command{
		Use:           "everyday",
		Short:         "Calendar of daily memories and trips",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.cfg.Validate()
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.cfg.DataDir, "data-dir", cfg.DataDir, "directory holding the database and media")
	f.StringVar(&opts.cfg.MediaDir, "media-dir", cfg.MediaDir, "directory for persisted images (defaults to --data-dir)")
	f.StringVar(&opts.cfg.Token, "token", cfg.Token, "session token (defaults to the saved token)")
	f.StringVar(&opts.cfg.TokenKey, "token-key", cfg.TokenKey, "HS256 key for session tokens")
	f.StringVar(&opts.cfg.RemoteDSN, "remote-dsn", cfg.RemoteDSN, "PostgreSQL DSN of the remote mirror")
	f.StringVar(&opts.cfg.RemoteBaseURL, "remote-base-url", cfg.RemoteBaseURL, "base URL of mirrored media")
	f.BoolVar(&opts.cfg.SkipSync, "skip-sync", cfg.SkipSync, "record new memories as local only")
	f.BoolVar(&opts.cfg.Dev, "dev", cfg.Dev, "development logging")

	root.AddCommand(
		versionCmd(),
		memoriesCmd(opts),
		tripsCmd(opts),
		syncCmd(opts),
		serveCmd(opts),
		tokenCmd(opts),
		remoteCmd(opts),
	)
	return root, nil
}

type rootOptions struct {
	cfg config.Config
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "everyday %s (%s)\n", version, buildDate)
		},
	}
}
