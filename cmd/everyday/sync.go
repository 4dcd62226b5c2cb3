package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/4tyam/everyday/internal/model"
)

var errSignedOut = errors.New("not signed in (run `everyday token issue --save` or pass --token)")

func syncCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Inspect and drain the upload queue",
	}
	cmd.AddCommand(syncStatusCmd(opts), syncDrainCmd(opts))
	return cmd
}

type syncStatus struct {
	Queue  model.QueueStats `json:"queue"`
	Remote *int             `json:"remote,omitempty"`
}

func syncStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Queue entries per status, plus the mirrored count when a remote is configured",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			st := syncStatus{Queue: model.QueueStats{}}
			if a.userID == "" {
				return printJSON(cmd.OutOrStdout(), st)
			}
			q, err := a.queue.Stats(ctx, a.userID)
			if err != nil {
				return err
			}
			st.Queue = q
			if a.cfg.RemoteDSN != "" {
				m, err := a.mirror(ctx)
				if err != nil {
					return err
				}
				n, err := m.Count(ctx, a.userID)
				if err != nil {
					return err
				}
				st.Remote = &n
			}
			return printJSON(cmd.OutOrStdout(), st)
		}),
	}
}

func syncDrainCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Upload every due queue entry once",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			if a.userID == "" {
				return errSignedOut
			}
			u, err := a.uploader(cmd.Context())
			if err != nil {
				return err
			}
			res, err := u.Drain(cmd.Context(), a.userID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}),
	}
}
