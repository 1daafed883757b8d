package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jittakal/poolstore/internal/flush"
)

func newDrainCommand(load func() (*runtimeEnv, error)) *cobra.Command {
	var poolName string

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Flush the active pool to the database once",
		Long: `Claim the active pool and commit its buffered mutations in one transaction.
With --pool the drain only happens if that pool is still the active one.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := load()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), env, func(ctx context.Context, a *app) error {
				var (
					res flush.Result
					err error
				)
				if poolName != "" {
					res, err = a.coordinator.DrainPool(ctx, poolName)
				} else {
					res, err = a.coordinator.Drain(ctx)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), reportOf(res))
			})
		},
	}
	cmd.Flags().StringVar(&poolName, "pool", "", "Drain this pool only if it is still active")
	return cmd
}

// withApp runs fn against a connected app bounded by the force timeout.
func withApp(parent context.Context, env *runtimeEnv, fn func(ctx context.Context, a *app) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := withTimeout(parent, env.cfg)
	defer cancel()

	a, err := openApp(ctx, env)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
