package pool

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jittakal/poolstore/pkg/coord"
)

// PoolInfo describes one minted pool.
type PoolInfo struct {
	Name      string `json:"name"`
	UsedBytes int64  `json:"used_bytes"`
	Buffered  int64  `json:"buffered"`
	State     string `json:"state"`
}

// Snapshot is a point-in-time view of the registry. It is assembled from
// several store reads and is not atomic.
type Snapshot struct {
	Active   string     `json:"active"`
	Ready    []string   `json:"ready"`
	Stuck    []string   `json:"stuck"`
	Counter  int64      `json:"counter"`
	MaxPools int        `json:"max_pools"`
	Pools    []PoolInfo `json:"pools"`
}

// Pool states reported in snapshots.
const (
	StateActive  = "active"
	StateReady   = "ready"
	StateStuck   = "stuck"
	StateClaimed = "claimed"
)

// Snapshot reads the registry state.
func (r *Registry) Snapshot(ctx context.Context) (*Snapshot, error) {
	info, err := r.store.HGetAll(ctx, coord.KeyCacheInfo)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	ready, err := r.store.LRange(ctx, coord.KeyReadyList, 0, -1)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	stuck, err := r.StuckPools(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	snap := &Snapshot{
		Active:   info[coord.FieldActive],
		Ready:    toStrings(ready),
		Stuck:    stuck,
		MaxPools: r.cfg.MaxPools,
	}
	if v, ok := info[coord.FieldCounter]; ok {
		snap.Counter, _ = strconv.ParseInt(v, 10, 64)
	}

	states := make(map[string]string, len(snap.Ready)+len(snap.Stuck)+1)
	for _, name := range snap.Ready {
		states[name] = StateReady
	}
	for _, name := range snap.Stuck {
		states[name] = StateStuck
	}
	if snap.Active != "" {
		states[snap.Active] = StateActive
	}

	for n := int64(1); n <= snap.Counter; n++ {
		name := coord.PoolName(n)
		buffered, err := r.store.LLen(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		used, _ := strconv.ParseInt(info[coord.UsageField(name)], 10, 64)

		state, ok := states[name]
		if !ok {
			state = StateClaimed
		}
		snap.Pools = append(snap.Pools, PoolInfo{
			Name:      name,
			UsedBytes: used,
			Buffered:  buffered,
			State:     state,
		})
	}
	return snap, nil
}
