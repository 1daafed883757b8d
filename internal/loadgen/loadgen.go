// Package loadgen produces synthetic row mutations to the ingestion topic.
package loadgen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Config controls a load generation run.
type Config struct {
	Topic   string
	Keyword string
	UIDs    []string
	// Count is the number of events to send; zero runs until cancelled.
	Count int
	// Rate is the number of events per second across all workers; zero
	// disables limiting.
	Rate     int
	Source   string
	Seed     int64
	Parallel int
}

// Validate checks the run parameters.
func (c Config) Validate() error {
	if c.Topic == "" {
		return errors.New("loadgen topic is required")
	}
	if c.Keyword == "" {
		return errors.New("loadgen keyword is required")
	}
	if len(c.UIDs) == 0 {
		return errors.New("loadgen needs at least one uid")
	}
	if c.Count < 0 || c.Rate < 0 {
		return fmt.Errorf("loadgen count and rate must be non-negative, got %d and %d", c.Count, c.Rate)
	}
	if c.Source == "" {
		return errors.New("loadgen source is required")
	}
	return nil
}

// Result summarises a run.
type Result struct {
	Sent     int64
	Failed   int64
	Duration time.Duration
}

// Generator drives a Producer with events from one EventBuilder per worker.
type Generator struct {
	cfg      Config
	producer *Producer
	logger   *slog.Logger
}

// New creates a generator.
func New(producer *Producer, cfg Config, logger *slog.Logger) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = 1
	}
	return &Generator{cfg: cfg, producer: producer, logger: logger}, nil
}

// Run sends events round-robin over the configured uids until Count events
// were attempted or ctx is cancelled. Send failures are counted, not fatal.
func (g *Generator) Run(ctx context.Context) (Result, error) {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if g.cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(g.cfg.Rate), 1)
	}

	var next, sent, failed atomic.Int64
	start := time.Now()

	g.logger.Info("starting load generation",
		"topic", g.cfg.Topic,
		"keyword", g.cfg.Keyword,
		"uids", len(g.cfg.UIDs),
		"count", g.cfg.Count,
		"rate", g.cfg.Rate,
		"parallel", g.cfg.Parallel,
	)

	group, gctx := errgroup.WithContext(ctx)
	for w := 0; w < g.cfg.Parallel; w++ {
		seed := g.cfg.Seed
		if seed != 0 {
			seed += int64(w)
		}
		builder := NewEventBuilder(g.cfg.Keyword, g.cfg.Source, seed)

		group.Go(func() error {
			for {
				i := next.Add(1) - 1
				if g.cfg.Count > 0 && i >= int64(g.cfg.Count) {
					return nil
				}
				if err := limiter.Wait(gctx); err != nil {
					return nil
				}

				uid := g.cfg.UIDs[i%int64(len(g.cfg.UIDs))]
				event, err := builder.Build(uid)
				if err != nil {
					return err
				}
				if err := g.producer.Produce(gctx, g.cfg.Topic, uid, event); err != nil {
					if gctx.Err() != nil {
						return nil
					}
					failed.Add(1)
					g.logger.Warn("failed to produce event", "uid", uid, "event_id", event.ID(), "error", err)
					continue
				}
				sent.Add(1)
			}
		})
	}

	err := group.Wait()
	result := Result{Sent: sent.Load(), Failed: failed.Load(), Duration: time.Since(start)}

	g.logger.Info("load generation finished",
		"sent", result.Sent,
		"failed", result.Failed,
		"duration", result.Duration,
	)
	return result, err
}
