// Package buffer is the producer-facing write-back buffer.
//
// Producers append serialized mutations; each append lands atomically in the
// registry's active pool. An append that leaves the pool at or above the
// configured package size drains that pool before returning, so producers
// pay the flush latency and pools stay bounded:
//
//	buf, err := buffer.New(registry, coordinator, buffer.Config{
//	    MaxPackageSize: 40 << 20,
//	}, logger, metrics, validator.NewMutationValidator(0))
//
//	if err := buf.AppendMutation(ctx, m); err != nil {
//	    // the mutation was not buffered; the caller decides whether to retry
//	}
//
// # Errors
//
// Append surfaces every failure to buffer the mutation: coordination store
// outages as *errors.StoreUnavailableError and an exhausted pool namespace,
// after the configured retries, as *errors.PoolExhaustedError. A failed
// drain does not fail the append that triggered it: the mutation is already
// held by the pool. A pool whose commit failed stays stuck until it is
// retried; one that could not be claimed stays active and the next append
// tries again.
//
// # Concurrency
//
// Buffer is safe for concurrent use by any number of goroutines and processes
// sharing the same coordination store. Every append that sees a full pool
// asks for a drain, but claiming the pool is a compare-and-swap on the active
// handle, so exactly one drain runs per pool fill.
package buffer
