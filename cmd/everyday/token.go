package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/4tyam/everyday/internal/auth"
)

func tokenCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage development session tokens",
	}
	var save bool
	issue := &cobra.Command{
		Use:   "issue USER_ID",
		Short: "Issue a session token signed with --token-key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.cfg.TokenKey == "" {
				return errors.New("token key is required (--token-key or EVERYDAY_TOKEN_KEY)")
			}
			tok, err := auth.NewSessions([]byte(opts.cfg.TokenKey), 0).Issue(args[0])
			if err != nil {
				return err
			}
			if save {
				if err := auth.SaveToken(auth.TokenPath(), tok); err != nil {
					return err
				}
			}
			return printJSON(cmd.OutOrStdout(), tok)
		},
	}
	issue.Flags().BoolVar(&save, "save", false, "store the token as the current session")
	cmd.AddCommand(issue)
	return cmd
}
