// Package pool implements the bounded registry of named buffer pools.
//
// The registry state lives in the coordination store so every process
// appending to, or draining, the same pools shares it. The active pool is a
// single handle in the store. Appends land in it atomically and a drain
// claims it by clearing the handle, so no writer can reach a pool once it
// has been claimed.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/jittakal/poolstore/pkg/coord"
)

const (
	DefaultMaxPools     = 100
	DefaultInitialPools = 5
)

// Config bounds the pool namespace.
type Config struct {
	MaxPools     int
	InitialPools int
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxPools <= 0 {
		return fmt.Errorf("max pools must be positive, got %d", c.MaxPools)
	}
	if c.InitialPools < 0 || c.InitialPools > c.MaxPools {
		return fmt.Errorf("initial pools must be between 0 and %d, got %d", c.MaxPools, c.InitialPools)
	}
	return nil
}

// MetricsCollector defines the interface for registry metrics.
type MetricsCollector interface {
	IncPoolsMinted()
	SetPoolUsage(pool string, bytes int64)
	SetStuckPools(count int)
}

// Registry owns pool allocation, the active pool handle and usage counters.
type Registry struct {
	store   coord.Store
	cfg     Config
	logger  *slog.Logger
	metrics MetricsCollector
}

// NewRegistry creates a registry over store.
func NewRegistry(store coord.Store, cfg Config, logger *slog.Logger, metrics MetricsCollector) (*Registry, error) {
	if store == nil {
		return nil, errors.New("coordination store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		store:   store,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// MaxPools returns the namespace bound.
func (r *Registry) MaxPools() int {
	return r.cfg.MaxPools
}

// PickActivePool returns the pool writers currently append to, rotating in
// the head of the ready queue or minting a pool when none is active.
func (r *Registry) PickActivePool(ctx context.Context) (string, error) {
	name, err := r.store.ActivateNext(ctx, r.cfg.MaxPools)
	if err != nil {
		return "", fmt.Errorf("pick active pool: %w", err)
	}
	return name, nil
}

// Mint creates a new pool name and places it on the ready queue. It returns
// an error matching errors.ErrPoolExhausted once MaxPools names exist.
func (r *Registry) Mint(ctx context.Context) (string, error) {
	name, err := r.store.Mint(ctx, r.cfg.MaxPools)
	if err != nil {
		return "", fmt.Errorf("mint pool: %w", err)
	}

	if r.metrics != nil {
		r.metrics.IncPoolsMinted()
	}
	r.logger.Info("pool minted", "pool", name, "max_pools", r.cfg.MaxPools)
	return name, nil
}

// Append adds payload to the active pool and its usage in one atomic step.
func (r *Registry) Append(ctx context.Context, payload []byte) (coord.AppendResult, error) {
	res, err := r.store.AppendActive(ctx, r.cfg.MaxPools, payload)
	if err != nil {
		return coord.AppendResult{}, fmt.Errorf("append to active pool: %w", err)
	}
	if r.metrics != nil {
		r.metrics.SetPoolUsage(res.Pool, res.Used)
	}
	return res, nil
}

// ClaimForDraining takes the active pool out of circulation. ok is false when
// no pool is active.
func (r *Registry) ClaimForDraining(ctx context.Context) (string, bool, error) {
	name, ok, err := r.store.ClaimActive(ctx, "")
	if err != nil {
		return "", false, fmt.Errorf("claim active pool: %w", err)
	}
	return name, ok, nil
}

// ClaimPool claims name only if it is still the active pool.
func (r *Registry) ClaimPool(ctx context.Context, name string) (bool, error) {
	_, ok, err := r.store.ClaimActive(ctx, name)
	if err != nil {
		return false, fmt.Errorf("claim pool %s: %w", name, err)
	}
	return ok, nil
}

// RecordUsage adds delta bytes to a pool's usage counter.
func (r *Registry) RecordUsage(ctx context.Context, name string, delta int64) (int64, error) {
	used, err := r.store.HIncrBy(ctx, coord.KeyCacheInfo, coord.UsageField(name), delta)
	if err != nil {
		return 0, fmt.Errorf("record usage of %s: %w", name, err)
	}
	return used, nil
}

// UsageOf returns a pool's usage counter.
func (r *Registry) UsageOf(ctx context.Context, name string) (int64, error) {
	v, ok, err := r.store.HGet(ctx, coord.KeyCacheInfo, coord.UsageField(name))
	if err != nil {
		return 0, fmt.Errorf("usage of %s: %w", name, err)
	}
	if !ok {
		return 0, nil
	}
	used, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("usage of %s: malformed counter %q: %w", name, v, err)
	}
	return used, nil
}

// ResetUsage zeroes a pool's usage counter.
func (r *Registry) ResetUsage(ctx context.Context, name string) error {
	if err := r.store.HSet(ctx, coord.KeyCacheInfo, coord.UsageField(name), "0"); err != nil {
		return fmt.Errorf("reset usage of %s: %w", name, err)
	}
	return nil
}

// Buffered returns a pool's buffered mutations in append order.
func (r *Registry) Buffered(ctx context.Context, name string) ([][]byte, error) {
	items, err := r.store.LRange(ctx, name, 0, -1)
	if err != nil {
		return nil, fmt.Errorf("read pool %s: %w", name, err)
	}
	return items, nil
}

// Release clears a pool's contents and usage and returns it to the ready
// queue exactly once. Call it only after the pool's batch is durable.
func (r *Registry) Release(ctx context.Context, name string) error {
	if err := r.store.Release(ctx, name); err != nil {
		return fmt.Errorf("release pool %s: %w", name, err)
	}
	if r.metrics != nil {
		r.metrics.SetPoolUsage(name, 0)
	}
	r.refreshStuckGauge(ctx)
	return nil
}

// MarkStuck records that a pool's batch failed to commit.
func (r *Registry) MarkStuck(ctx context.Context, name string) error {
	if err := r.store.MarkStuck(ctx, name); err != nil {
		return fmt.Errorf("mark pool %s stuck: %w", name, err)
	}
	r.refreshStuckGauge(ctx)
	return nil
}

// StuckPools lists pools awaiting operator intervention.
func (r *Registry) StuckPools(ctx context.Context) ([]string, error) {
	items, err := r.store.LRange(ctx, coord.KeyStuckList, 0, -1)
	if err != nil {
		return nil, fmt.Errorf("list stuck pools: %w", err)
	}
	return toStrings(items), nil
}

// ClaimStuck takes name off the stuck list so a single caller can retry it.
// ok is false when name was not stuck, including when another caller
// claimed it first.
func (r *Registry) ClaimStuck(ctx context.Context, name string) (bool, error) {
	removed, err := r.store.LRem(ctx, coord.KeyStuckList, 0, name)
	if err != nil {
		return false, fmt.Errorf("claim stuck pool %s: %w", name, err)
	}
	if removed > 0 {
		r.refreshStuckGauge(ctx)
	}
	return removed > 0, nil
}

// IsStuck reports whether name is on the stuck list.
func (r *Registry) IsStuck(ctx context.Context, name string) (bool, error) {
	stuck, err := r.StuckPools(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(stuck, name), nil
}

// Reset discards all pools and seeds the ready queue with InitialPools fresh
// names. It is meant for service start, before any writer is running.
func (r *Registry) Reset(ctx context.Context) error {
	if err := r.store.Reset(ctx, r.cfg.InitialPools); err != nil {
		return fmt.Errorf("reset registry: %w", err)
	}
	if r.metrics != nil {
		r.metrics.SetStuckPools(0)
	}
	r.logger.Info("pool registry reset",
		"initial_pools", r.cfg.InitialPools,
		"max_pools", r.cfg.MaxPools)
	return nil
}

// Ping checks the coordination store.
func (r *Registry) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

func (r *Registry) refreshStuckGauge(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	n, err := r.store.LLen(ctx, coord.KeyStuckList)
	if err != nil {
		r.logger.Warn("failed to read stuck pool count", "error", err)
		return
	}
	r.metrics.SetStuckPools(int(n))
}

func toStrings(items [][]byte) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = string(item)
	}
	return out
}
