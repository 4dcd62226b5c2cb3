package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/4tyam/everyday/internal/cache"
	"github.com/4tyam/everyday/internal/daykey"
	"github.com/4tyam/everyday/internal/media"
	"github.com/4tyam/everyday/internal/model"
)

func memoriesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "memories",
		Aliases: []string{"m"},
		Short:   "List, add and remove memories",
	}
	cmd.AddCommand(
		memoriesDayCmd(opts),
		memoriesMonthCmd(opts),
		memoriesRangeCmd(opts),
		memoriesAddCmd(opts),
		memoriesRmCmd(opts),
	)
	return cmd
}

// dayArg returns args[0] or today's key.
func dayArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return daykey.Today(time.Now())
}

func memoriesDayCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "day [YYYY-MM-DD]",
		Short: "Memories of one day (default today)",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			ms, err := a.binder.Day(cmd.Context(), dayArg(args))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ms)
		}),
	}
}

type calendarView struct {
	Month string            `json:"month"`
	Days  model.DayMemories `json:"days"`
	Dots  map[string]int    `json:"dots"`
	Total int               `json:"total"`
}

func memoriesMonthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "month [YYYY-MM]",
		Short: "Calendar view of a month (default current), including today and yesterday",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			today := daykey.Today(time.Now())
			month := daykey.MonthOf(today)
			if len(args) > 0 {
				month = args[0]
			}
			prev, err := daykey.Previous(today)
			if err != nil {
				return err
			}
			days, err := a.binder.CalendarMemories(cmd.Context(), month, today, prev)
			if err != nil {
				return err
			}
			view := calendarView{Month: month, Days: days, Dots: map[string]int{}, Total: cache.TotalMemories(days)}
			for d := range days {
				if n := cache.DotCount(days, d); n > 0 {
					view.Dots[d] = n
				}
			}
			return printJSON(cmd.OutOrStdout(), view)
		}),
	}
}

func memoriesRangeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "range START END",
		Short: "Memories of an inclusive day range, grouped by day",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			days, err := a.memories.ListByDayRange(cmd.Context(), a.userID, args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), days)
		}),
	}
}

func memoriesAddCmd(opts *rootOptions) *cobra.Command {
	var day string
	cmd := &cobra.Command{
		Use:   "add FILE...",
		Short: "Copy images into the calendar as memories of a day",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			if day == "" {
				day = daykey.Today(time.Now())
			}
			assets := make([]model.SourceAsset, 0, len(args))
			for _, p := range args {
				assets = append(assets, media.SourceAsset(p))
			}
			added, err := a.binder.AddMemories(cmd.Context(), day, assets)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), added)
		}),
	}
	cmd.Flags().StringVar(&day, "day", "", "day key YYYY-MM-DD (default today)")
	return cmd
}

func memoriesRmCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm DAY MEMORY_ID",
		Short: "Remove a memory and its image",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			if err := a.binder.RemoveMemory(ctx, args[0], args[1]); err != nil {
				return err
			}
			if a.cfg.RemoteDSN != "" && a.userID != "" {
				m, err := a.mirror(ctx)
				if err != nil {
					return err
				}
				if err := m.Delete(ctx, a.userID, args[1]); err != nil {
					a.log.Warn("remote delete failed", zap.String("memory", args[1]), zap.Error(err))
				}
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"removed": args[1]})
		}),
	}
}
