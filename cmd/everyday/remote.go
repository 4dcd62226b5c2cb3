package main

import (
	"github.com/spf13/cobra"

	"github.com/4tyam/everyday/internal/migrate"
)

func remoteCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Manage the remote mirror",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply mirror migrations to --remote-dsn",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			if a.cfg.RemoteDSN == "" {
				return errNoRemote
			}
			return migrate.Remote(cmd.Context(), a.cfg.RemoteDSN, a.log)
		}),
	})
	return cmd
}
