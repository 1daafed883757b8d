package storage

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jittakal/poolstore/pkg/mutation"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBatch(t *testing.T) *mutation.Batch {
	t.Helper()
	p, err := mutation.Encode(&mutation.Mutation{
		Table:   "orders-u1-20240301",
		Columns: []string{"id", "amount"},
		Values:  []any{"a", 10},
	})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return &mutation.Batch{
		Pool:      "Pool#7",
		DrainID:   "d-42",
		Payloads:  [][]byte{p, p},
		Reason:    "constraint failed",
		CreatedAt: time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC),
	}
}

type mockMetrics struct {
	mu      sync.Mutex
	written map[string]int
	errors  map[string]int
	sizes   int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{written: map[string]int{}, errors: map[string]int{}}
}

func (m *mockMetrics) IncFilesWritten(backend, format, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written[backend+"/"+format+"/"+status]++
}

func (m *mockMetrics) ObserveFileSize(string, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sizes++
}

func (m *mockMetrics) ObserveStorageWriteDuration(string, float64) {}

func (m *mockMetrics) IncStorageErrors(backend, operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[backend+"/"+operation]++
}

type recordingWriter struct {
	paths  []string
	err    error
	closed bool
}

func (w *recordingWriter) Write(_ context.Context, _ *mutation.Batch, path string) (int64, error) {
	w.paths = append(w.paths, path)
	return 10, w.err
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}
