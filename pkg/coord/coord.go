// Package coord defines the shared coordination store that holds the pool
// registry state.
//
// All processes sharing a registry talk to the same store. The layout is a
// hash (CacheInfo) with the pool counter, the active pool handle and one usage
// counter per pool, a ready list of pool names, a stuck list, and one list per
// pool holding its buffered mutations.
package coord

import (
	"context"
	"strconv"
)

// Well-known keys and hash fields.
const (
	KeyCacheInfo  = "CacheInfo"
	KeyReadyList  = "PoolReadyList"
	KeyStuckList  = "PoolStuckList"
	FieldCounter  = "PoolCounter"
	FieldActive   = "ActivePool"
	PoolPrefix    = "Pool#"
	usedFieldRole = "Used"
)

// PoolName returns the name of the n-th minted pool.
func PoolName(n int64) string {
	return PoolPrefix + strconv.FormatInt(n, 10)
}

// UsageField returns the CacheInfo field holding a pool's byte usage.
func UsageField(pool string) string {
	return pool + usedFieldRole
}

// Keys resolves well-known keys under an optional namespace prefix.
type Keys struct {
	Prefix string
}

func (k Keys) CacheInfo() string { return k.Prefix + KeyCacheInfo }
func (k Keys) ReadyList() string { return k.Prefix + KeyReadyList }
func (k Keys) StuckList() string { return k.Prefix + KeyStuckList }

// Key namespaces an arbitrary logical key.
func (k Keys) Key(name string) string { return k.Prefix + name }

// Pool returns the list key holding a pool's buffered mutations.
func (k Keys) Pool(name string) string { return k.Prefix + name }

// AppendResult reports where an append landed.
type AppendResult struct {
	Pool string
	// Used is the pool's usage after the append.
	Used int64
}

// Store is the coordination store client.
//
// Primitive methods map one to one onto store commands. Composite methods
// execute atomically on the store, so concurrent callers in any process
// observe them as a single step. Implementations must be safe for concurrent
// use and report connectivity failures as *errors.StoreUnavailableError.
type Store interface {
	RPush(ctx context.Context, key string, values ...[]byte) (int64, error)
	LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	LLen(ctx context.Context, key string) (int64, error)
	LRem(ctx context.Context, key string, count int64, value string) (int64, error)
	Del(ctx context.Context, keys ...string) error
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HSet(ctx context.Context, key, field, value string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// Mint increments the pool counter and pushes the new name onto the ready
	// list. It fails with *errors.PoolExhaustedError once maxPools names exist.
	Mint(ctx context.Context, maxPools int) (string, error)

	// ActivateNext returns the active pool, installing the head of the ready
	// list or a freshly minted pool when no pool is active.
	ActivateNext(ctx context.Context, maxPools int) (string, error)

	// AppendActive resolves the active pool as ActivateNext does, appends
	// payload to it and adds its length to the pool's usage.
	AppendActive(ctx context.Context, maxPools int, payload []byte) (AppendResult, error)

	// ClaimActive clears the active handle and returns the pool it pointed
	// to. A non-empty expected makes the claim conditional on that pool still
	// being active. ok is false when nothing was claimed.
	ClaimActive(ctx context.Context, expected string) (name string, ok bool, err error)

	// Release empties a pool, zeroes its usage, removes it from the stuck
	// list and places it on the ready list exactly once.
	Release(ctx context.Context, pool string) error

	// MarkStuck records a pool on the stuck list exactly once.
	MarkStuck(ctx context.Context, pool string) error

	// Reset discards every pool and mints initialPools fresh ready pools.
	Reset(ctx context.Context, initialPools int) error

	Ping(ctx context.Context) error
	Close() error
}
