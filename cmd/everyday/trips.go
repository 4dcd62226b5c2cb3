package main

import (
	"github.com/spf13/cobra"
)

func tripsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "trips",
		Aliases: []string{"t"},
		Short:   "Manage trips and their derived memories",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Trips grouped by status with counts and previews",
			Args:  cobra.NoArgs,
			RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
				ov, err := a.binder.TripsOverview(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), ov)
			}),
		},
		&cobra.Command{
			Use:   "create NAME START END",
			Short: "Create a trip starting today or later, ending within two months",
			Args:  cobra.ExactArgs(3),
			RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
				t, err := a.binder.CreateTrip(cmd.Context(), args[0], args[1], args[2])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), t)
			}),
		},
		&cobra.Command{
			Use:   "rename TRIP_ID NAME",
			Short: "Rename a trip",
			Args:  cobra.ExactArgs(2),
			RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
				t, err := a.binder.RenameTrip(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), t)
			}),
		},
		&cobra.Command{
			Use:   "dates TRIP_ID START END",
			Short: "Change a trip's day range",
			Args:  cobra.ExactArgs(3),
			RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
				t, err := a.binder.UpdateTripDates(cmd.Context(), args[0], args[1], args[2])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), t)
			}),
		},
		&cobra.Command{
			Use:   "counts",
			Short: "Memory count per trip",
			Args:  cobra.NoArgs,
			RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
				c, err := a.binder.TripCounts(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), c)
			}),
		},
		&cobra.Command{
			Use:   "previews",
			Short: "Newest preview images per trip",
			Args:  cobra.NoArgs,
			RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
				p, err := a.binder.TripPreviews(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), p)
			}),
		},
		&cobra.Command{
			Use:   "memories START END",
			Short: "Memories covered by a trip range",
			Args:  cobra.ExactArgs(2),
			RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
				days, err := a.binder.TripMemories(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), days)
			}),
		},
	)
	return cmd
}
