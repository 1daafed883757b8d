package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newPoolsCommand(load func() (*runtimeEnv, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pools",
		Short: "Inspect and operate the pool registry",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the active, ready and stuck pools with their usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := load()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), env, func(ctx context.Context, a *app) error {
				snap, err := a.pools.Snapshot(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), snap)
			})
		},
	})

	var force bool
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Discard every pool and mint the initial ready pools",
		Long: `Reset deletes every pool, including buffered and stuck mutations, and seeds
the ready queue with pool.initial_pools fresh pools. Run it only while no
service instance is appending.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("reset discards buffered mutations; pass --force to confirm")
			}
			env, err := load()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), env, func(ctx context.Context, a *app) error {
				if err := a.pools.Reset(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "registry reset with %d ready pools\n", env.cfg.Pool.InitialPools)
				return nil
			})
		},
	}
	reset.Flags().BoolVar(&force, "force", false, "Confirm discarding all buffered mutations")
	cmd.AddCommand(reset)

	var all bool
	retry := &cobra.Command{
		Use:   "retry [pool...]",
		Short: "Drain stuck pools again",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("name at least one stuck pool or pass --all")
			}
			env, err := load()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), env, func(ctx context.Context, a *app) error {
				names := args
				if all {
					if names, err = a.coordinator.Stuck(ctx); err != nil {
						return err
					}
				}

				reports := make([]drainReport, 0, len(names))
				for _, name := range names {
					res, err := a.coordinator.Retry(ctx, name)
					if err != nil {
						return err
					}
					reports = append(reports, reportOf(res))
				}
				return printJSON(cmd.OutOrStdout(), reports)
			})
		},
	}
	retry.Flags().BoolVar(&all, "all", false, "Retry every stuck pool")
	cmd.AddCommand(retry)

	return cmd
}
