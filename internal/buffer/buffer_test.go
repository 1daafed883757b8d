package buffer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jittakal/poolstore/internal/coord"
	"github.com/jittakal/poolstore/internal/database"
	apperrors "github.com/jittakal/poolstore/internal/errors"
	"github.com/jittakal/poolstore/internal/flush"
	"github.com/jittakal/poolstore/internal/pool"
	"github.com/jittakal/poolstore/internal/validator"
	"github.com/jittakal/poolstore/pkg/mutation"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockMetrics struct {
	mu              sync.Mutex
	appends         int
	bytes           int
	errors          map[string]int
	thresholdDrains int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{errors: make(map[string]int)}
}

func (m *mockMetrics) IncAppends() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appends++
}

func (m *mockMetrics) AddAppendedBytes(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bytes += n
}

func (m *mockMetrics) IncAppendErrors(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[reason]++
}

func (m *mockMetrics) IncThresholdDrains() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholdDrains++
}

// countingDrainer records drained pools. With a registry it claims the pool
// first, like the flush coordinator, and records only successful claims.
type countingDrainer struct {
	registry *pool.Registry

	mu    sync.Mutex
	calls int
	pools []string
}

func (d *countingDrainer) DrainPool(ctx context.Context, name string) (flush.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.registry != nil {
		ok, err := d.registry.ClaimPool(ctx, name)
		if err != nil {
			return flush.Result{Pool: name}, err
		}
		if !ok {
			return flush.Result{Pool: name, Status: flush.StatusNoop}, nil
		}
	}
	d.pools = append(d.pools, name)
	return flush.Result{Pool: name, Status: flush.StatusReleased}, nil
}

// flakyClaimStore fails the next failures claims as unreachable.
type flakyClaimStore struct {
	*coord.MemoryStore
	failures atomic.Int32
}

func (s *flakyClaimStore) ClaimActive(ctx context.Context, expected string) (string, bool, error) {
	if s.failures.Add(-1) >= 0 {
		return "", false, &apperrors.StoreUnavailableError{Operation: "claim", Key: expected, Err: apperrors.ErrConnectionLost}
	}
	return s.MemoryStore.ClaimActive(ctx, expected)
}

func newRegistry(t *testing.T, cfg pool.Config) *pool.Registry {
	t.Helper()
	mr := miniredis.RunT(t)
	store := coord.NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "", testLogger())
	t.Cleanup(func() { _ = store.Close() })

	reg, err := pool.NewRegistry(store, cfg, testLogger(), nil)
	require.NoError(t, err)
	require.NoError(t, reg.Reset(context.Background()))
	return reg
}

func TestNew_Defaults(t *testing.T) {
	reg := newRegistry(t, pool.Config{MaxPools: 2, InitialPools: 1})

	buf, err := New(reg, &countingDrainer{}, Config{}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxPackageSize, buf.cfg.MaxPackageSize)
	assert.Equal(t, 1, buf.cfg.Retry.MaxAttempts)

	_, err = New(nil, &countingDrainer{}, Config{}, nil, nil, nil)
	assert.Error(t, err)
}

func TestBuffer_ThresholdTriggersExactlyOneDrain(t *testing.T) {
	reg := newRegistry(t, pool.Config{MaxPools: 5, InitialPools: 1})
	drainer := &countingDrainer{registry: reg}
	metrics := newMockMetrics()

	buf, err := New(reg, drainer, Config{MaxPackageSize: 25}, testLogger(), metrics, nil)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, buf.Append(ctx, []byte("0123456789")))
	}

	// Pool#1 reaches 30 on the third append and is claimed; the last two
	// appends fill Pool#2 to 20.
	assert.Equal(t, []string{"Pool#1"}, drainer.pools)
	assert.Equal(t, 1, metrics.thresholdDrains)
	assert.Equal(t, 5, metrics.appends)
	assert.Equal(t, 50, metrics.bytes)
}

func TestBuffer_ThresholdExactlyReached(t *testing.T) {
	reg := newRegistry(t, pool.Config{MaxPools: 5, InitialPools: 1})
	drainer := &countingDrainer{}

	buf, err := New(reg, drainer, Config{MaxPackageSize: 20}, testLogger(), nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, buf.Append(ctx, []byte("0123456789")))
	assert.Empty(t, drainer.pools)
	require.NoError(t, buf.Append(ctx, []byte("0123456789")))
	assert.Len(t, drainer.pools, 1)
}

func TestBuffer_FailedClaimIsRetriedOnNextAppend(t *testing.T) {
	store := &flakyClaimStore{MemoryStore: coord.NewMemoryStore()}
	store.failures.Store(1)
	reg, err := pool.NewRegistry(store, pool.Config{MaxPools: 5, InitialPools: 1}, testLogger(), nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, reg.Reset(ctx))

	drainer := &countingDrainer{registry: reg}
	buf, err := New(reg, drainer, Config{MaxPackageSize: 25}, testLogger(), nil, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, buf.Append(ctx, []byte("0123456789")))
	}
	assert.Empty(t, drainer.pools, "the first claim fails")
	assert.Equal(t, 1, drainer.calls)

	require.NoError(t, buf.Append(ctx, []byte("0123456789")))
	assert.Equal(t, []string{"Pool#1"}, drainer.pools)

	buffered, err := reg.Buffered(ctx, "Pool#1")
	require.NoError(t, err)
	assert.Len(t, buffered, 4)

	active, err := reg.PickActivePool(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, "Pool#1", active)
}

func TestBuffer_EmptyPayload(t *testing.T) {
	reg := newRegistry(t, pool.Config{MaxPools: 5, InitialPools: 1})
	buf, err := New(reg, &countingDrainer{}, Config{}, testLogger(), nil, nil)
	require.NoError(t, err)

	var vErr *apperrors.ValidationError
	assert.ErrorAs(t, buf.Append(context.Background(), nil), &vErr)
}

func TestBuffer_AppendMutationValidates(t *testing.T) {
	reg := newRegistry(t, pool.Config{MaxPools: 5, InitialPools: 1})
	metrics := newMockMetrics()
	buf, err := New(reg, &countingDrainer{}, Config{}, testLogger(), metrics, validator.NewMutationValidator(0))
	require.NoError(t, err)

	err = buf.AppendMutation(context.Background(), &mutation.Mutation{Columns: []string{"a"}, Values: []any{1}})
	var vErr *apperrors.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, 1, metrics.errors["validation"])

	m := &mutation.Mutation{Table: "t", Columns: []string{"a"}, Values: []any{1}}
	require.NoError(t, buf.AppendMutation(context.Background(), m))
	assert.False(t, m.CreatedAt.IsZero())

	buffered, err := reg.Buffered(context.Background(), "Pool#1")
	require.NoError(t, err)
	require.Len(t, buffered, 1)
	decoded, err := mutation.Decode(buffered[0])
	require.NoError(t, err)
	assert.Equal(t, "t", decoded.Table)
}

func TestBuffer_StoreUnavailable(t *testing.T) {
	store := coord.NewMemoryStore()
	reg, err := pool.NewRegistry(store, pool.Config{MaxPools: 5, InitialPools: 1}, testLogger(), nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	metrics := newMockMetrics()
	buf, err := New(reg, &countingDrainer{}, Config{}, testLogger(), metrics, nil)
	require.NoError(t, err)

	err = buf.Append(context.Background(), []byte("payload"))
	var unavailable *apperrors.StoreUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, 1, metrics.errors["store_unavailable"])
}

func TestBuffer_PoolExhaustedAfterRetries(t *testing.T) {
	store := coord.NewMemoryStore()
	reg, err := pool.NewRegistry(store, pool.Config{MaxPools: 1, InitialPools: 1}, testLogger(), nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, reg.Reset(ctx))

	_, err = reg.PickActivePool(ctx)
	require.NoError(t, err)
	_, ok, err := reg.ClaimForDraining(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	buf, err := New(reg, &countingDrainer{}, Config{
		Retry: RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond},
	}, testLogger(), nil, nil)
	require.NoError(t, err)

	err = buf.Append(ctx, []byte("payload"))
	var exhausted *apperrors.PoolExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, exhausted.MaxPools)
}

func TestBuffer_PoolExhaustedWaitsForRelease(t *testing.T) {
	store := coord.NewMemoryStore()
	reg, err := pool.NewRegistry(store, pool.Config{MaxPools: 1, InitialPools: 1}, testLogger(), nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, reg.Reset(ctx))

	_, err = reg.PickActivePool(ctx)
	require.NoError(t, err)
	name, _, err := reg.ClaimForDraining(ctx)
	require.NoError(t, err)

	buf, err := New(reg, &countingDrainer{}, Config{
		Retry: RetryConfig{MaxAttempts: 100, InitialBackoff: 5 * time.Millisecond, MaxBackoff: 20 * time.Millisecond},
	}, testLogger(), nil, nil)
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = reg.Release(context.Background(), name)
	}()

	require.NoError(t, buf.Append(ctx, []byte("payload")))
	buffered, err := reg.Buffered(ctx, name)
	require.NoError(t, err)
	assert.Len(t, buffered, 1)
}

func TestBuffer_PoolExhaustedHonoursContext(t *testing.T) {
	store := coord.NewMemoryStore()
	reg, err := pool.NewRegistry(store, pool.Config{MaxPools: 1, InitialPools: 0}, testLogger(), nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, reg.Reset(ctx))
	_, err = reg.PickActivePool(ctx)
	require.NoError(t, err)
	_, _, err = reg.ClaimForDraining(ctx)
	require.NoError(t, err)

	buf, err := New(reg, &countingDrainer{}, Config{
		Retry: RetryConfig{MaxAttempts: 1000, InitialBackoff: time.Hour},
	}, testLogger(), nil, nil)
	require.NoError(t, err)

	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err = buf.Append(cctx, []byte("payload"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBuffer_ConcurrentWritersFlushEveryMutationOnce(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t, pool.Config{MaxPools: 20, InitialPools: 5})

	dbCfg := database.DefaultConfig("sqlite3", filepath.Join(t.TempDir(), "buffer.db"))
	dbCfg.MaxOpenConns = 1
	dbCfg.MaxIdleConns = 1
	engine, err := database.Open(ctx, dbCfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	require.NoError(t, engine.CreateTable(ctx, "events", database.Schema{Columns: []database.Column{
		{Name: "id", Type: database.TypeString, PrimaryKey: true},
		{Name: "writer", Type: database.TypeInteger},
	}}))

	coordinator := flush.NewCoordinator(reg, engine, flush.Config{CommitTimeout: 10 * time.Second}, testLogger(), nil)
	buf, err := New(reg, coordinator, Config{
		MaxPackageSize: 2048,
		Retry:          RetryConfig{MaxAttempts: 200, InitialBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond},
	}, testLogger(), nil, validator.NewMutationValidator(0))
	require.NoError(t, err)

	const writers, perWriter = 8, 40
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				err := buf.AppendMutation(ctx, &mutation.Mutation{
					Table:   "events",
					Columns: []string{"id", "writer"},
					Values:  []any{fmt.Sprintf("w%d-%d", w, i), w},
				})
				if err != nil {
					t.Errorf("AppendMutation() error = %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	// Flush whatever is left in the active pool.
	_, err = coordinator.Drain(ctx)
	require.NoError(t, err)

	rows, err := engine.CountRows(ctx, "events")
	require.NoError(t, err)
	assert.Equal(t, int64(writers*perWriter), rows)

	stuck, err := coordinator.Stuck(ctx)
	require.NoError(t, err)
	assert.Empty(t, stuck)

	snap, err := reg.Snapshot(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, snap.Counter, int64(20))
	for _, p := range snap.Pools {
		assert.Zero(t, p.Buffered, "pool %s still holds mutations", p.Name)
	}
}

func TestBuffer_DrainFailureDoesNotFailAppend(t *testing.T) {
	reg := newRegistry(t, pool.Config{MaxPools: 5, InitialPools: 1})
	failing := drainerFunc(func(context.Context, string) (flush.Result, error) {
		return flush.Result{Status: flush.StatusStuck}, &apperrors.BatchCommitError{Pool: "Pool#1", Count: 1, Err: errors.New("boom")}
	})

	buf, err := New(reg, failing, Config{MaxPackageSize: 1}, testLogger(), nil, nil)
	require.NoError(t, err)
	assert.NoError(t, buf.Append(context.Background(), []byte("x")))
}

type drainerFunc func(ctx context.Context, name string) (flush.Result, error)

func (f drainerFunc) DrainPool(ctx context.Context, name string) (flush.Result, error) {
	return f(ctx, name)
}
