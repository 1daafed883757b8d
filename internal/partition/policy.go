package partition

import (
	"fmt"
	"time"
)

// Stats describes the active partition of a uid.
type Stats struct {
	Name    string
	Created time.Time
	Rows    int64
}

// RolloverPolicy decides when the active partition of a uid is full.
type RolloverPolicy interface {
	// ShouldRollover returns true if a new partition should be started.
	ShouldRollover(stats Stats, now time.Time) bool

	// NeedsRowCount reports whether Stats.Rows must be populated.
	NeedsRowCount() bool
}

// Rollover strategies.
const (
	StrategyAny = "any"
	StrategyAll = "all"
)

// PolicyConfig configures rollover behaviour. Zero limits are disabled.
type PolicyConfig struct {
	MaxRows    int64
	MaxAgeDays int
	Strategy   string
}

// CompositePolicy rolls over on row count and partition age.
type CompositePolicy struct {
	maxRows    int64
	maxAge     time.Duration
	requireAll bool
}

var _ RolloverPolicy = (*CompositePolicy)(nil)

// NewCompositePolicy creates a new composite rollover policy.
func NewCompositePolicy(config PolicyConfig) (*CompositePolicy, error) {
	if config.MaxRows < 0 || config.MaxAgeDays < 0 {
		return nil, fmt.Errorf("rollover limits cannot be negative")
	}

	var requireAll bool
	switch config.Strategy {
	case "", StrategyAny:
	case StrategyAll:
		requireAll = true
	default:
		return nil, fmt.Errorf("unknown rollover strategy %q", config.Strategy)
	}

	return &CompositePolicy{
		maxRows:    config.MaxRows,
		maxAge:     time.Duration(config.MaxAgeDays) * 24 * time.Hour,
		requireAll: requireAll,
	}, nil
}

// NeedsRowCount reports whether a row limit is configured.
func (p *CompositePolicy) NeedsRowCount() bool {
	return p.maxRows > 0
}

// ShouldRollover evaluates the enabled limits with the configured strategy.
func (p *CompositePolicy) ShouldRollover(stats Stats, now time.Time) bool {
	var enabled, met int

	if p.maxRows > 0 {
		enabled++
		if stats.Rows >= p.maxRows {
			met++
		}
	}

	if p.maxAge > 0 {
		enabled++
		if !stats.Created.IsZero() && now.Sub(stats.Created) >= p.maxAge {
			met++
		}
	}

	if enabled == 0 {
		return false
	}
	if p.requireAll {
		return met == enabled
	}
	return met > 0
}
