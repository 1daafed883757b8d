package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newPartitionsCommand(load func() (*runtimeEnv, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "partitions",
		Short: "List, resolve and create keyword/uid partitions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list <keyword>",
		Short: "List every partition of keyword",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := load()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), env, func(ctx context.Context, a *app) error {
				names, err := a.partitions.ListPartitions(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), names)
			})
		},
	})

	var start, end string
	resolve := &cobra.Command{
		Use:   "resolve <keyword> <uid>...",
		Short: "Resolve the partitions holding rows of each uid in a time window",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := load()
			if err != nil {
				return err
			}
			from, to, err := parseWindow(start, end)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), env, func(ctx context.Context, a *app) error {
				tables, err := a.partitions.ResolveTables(ctx, args[0], args[1:], from, to)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), tables)
			})
		},
	}
	resolve.Flags().StringVar(&start, "start", "", "Window start (RFC3339 or YYYY-MM-DD)")
	resolve.Flags().StringVar(&end, "end", "", "Window end (RFC3339 or YYYY-MM-DD, default now)")
	_ = resolve.MarkFlagRequired("start")
	cmd.AddCommand(resolve)

	cmd.AddCommand(&cobra.Command{
		Use:   "active <keyword> <uid>...",
		Short: "Print the newest partition of each uid",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := load()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), env, func(ctx context.Context, a *app) error {
				active, err := a.partitions.ActivePartitionFor(ctx, args[0], args[1:])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), active)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "create <keyword> <uid>",
		Short: "Create a partition for uid unless its active one is still current",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := load()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), env, func(ctx context.Context, a *app) error {
				name, err := a.partitions.CreatePartitionIfNeeded(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), name)
				return nil
			})
		},
	})

	return cmd
}

var windowLayouts = []string{time.RFC3339, "2006-01-02"}

func parseTime(value string) (time.Time, error) {
	for _, layout := range windowLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q: use RFC3339 or YYYY-MM-DD", value)
}

func parseWindow(start, end string) (time.Time, time.Time, error) {
	from, err := parseTime(start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to := time.Now().UTC()
	if end != "" {
		if to, err = parseTime(end); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("window end %s is before start %s", end, start)
	}
	return from, to, nil
}
