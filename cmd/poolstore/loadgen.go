package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jittakal/poolstore/internal/kafka"
	"github.com/jittakal/poolstore/internal/loadgen"
)

func newLoadgenCommand(load func() (*runtimeEnv, error)) *cobra.Command {
	var (
		count    int
		rate     int
		parallel int
		topic    string
	)

	cmd := &cobra.Command{
		Use:   "loadgen",
		Short: "Produce synthetic row mutations to the ingestion topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := load()
			if err != nil {
				return err
			}
			cfg := loadgenConfig(env.cfg.Loadgen)
			flags := cmd.Flags()
			if flags.Changed("count") {
				cfg.Count = count
			}
			if flags.Changed("rate") {
				cfg.Rate = rate
			}
			if flags.Changed("parallel") {
				cfg.Parallel = parallel
			}
			if flags.Changed("topic") {
				cfg.Topic = topic
			}
			if len(env.cfg.Kafka.BootstrapServers) == 0 {
				return fmt.Errorf("kafka bootstrap servers are required")
			}

			producer, err := kafka.NewSyncProducer(env.cfg.Kafka.BootstrapServers, securityConfig(env.cfg.Kafka))
			if err != nil {
				return err
			}
			p := loadgen.NewProducer(producer, env.logger, env.metrics)
			defer p.Close()

			gen, err := loadgen.New(p, cfg, env.logger)
			if err != nil {
				return err
			}

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			result, err := gen.Run(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d events (%d failed) in %s\n", result.Sent, result.Failed, result.Duration)
			return nil
		},
	}

	cmd.Flags().IntVar(&count, "count", 0, "Number of events to send, 0 runs until interrupted")
	cmd.Flags().IntVar(&rate, "rate", 0, "Events per second, 0 disables limiting")
	cmd.Flags().IntVar(&parallel, "parallel", 1, "Number of producing workers")
	cmd.Flags().StringVar(&topic, "topic", "", "Topic to produce to")
	return cmd
}
