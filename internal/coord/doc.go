// Package coord implements the coordination store used by the pool registry.
//
// RedisStore is the shared implementation: primitives map onto Redis
// commands and the registry composites run as Lua scripts (EVALSHA with an
// EVAL fallback) or MULTI transactions, so every process sharing the Redis
// instance observes them atomically. Connection failures are reported as
// *errors.StoreUnavailableError.
//
// MemoryStore keeps the same layout in process memory behind one mutex. It
// backs single-process deployments and unit tests.
//
// Usage:
//
//	store, err := coord.NewRedisStore(ctx, coord.RedisConfig{Addr: "localhost:6379"}, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	res, err := store.AppendActive(ctx, 100, payload)
package coord
