package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jittakal/poolstore/internal/encoder"
	"github.com/jittakal/poolstore/pkg/mutation"
)

func TestFileConfig_Validate(t *testing.T) {
	assert.Error(t, FileConfig{}.Validate())
	assert.NoError(t, FileConfig{BasePath: "/tmp/x"}.Validate())
}

func TestFileWriter_Write(t *testing.T) {
	base := t.TempDir()
	enc, err := encoder.New(mutation.FormatParquet, "snappy")
	require.NoError(t, err)
	metrics := newMockMetrics()

	w, err := NewFileWriter(FileConfig{BasePath: base}, enc, testLogger(), metrics)
	require.NoError(t, err)
	defer w.Close()

	batch := testBatch(t)
	router := NewRouter(ProtocolFor(BackendFile), "", "")
	n, err := w.Write(context.Background(), batch, router.Route(batch.Pool, batch.CreatedAt))
	require.NoError(t, err)
	assert.Positive(t, n)

	want := filepath.Join(base, "stuck", "dt=2024-03-01", "pool=7", "stuck_20240301T103000_d-42.parquet")
	info, err := os.Stat(want)
	require.NoError(t, err)
	assert.Equal(t, n, info.Size())

	rows, err := parquet.ReadFile[encoder.StuckMutationParquet](want)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Pool#7", rows[0].Pool)
	assert.Equal(t, "orders-u1-20240301", rows[1].Target)

	assert.Equal(t, 1, metrics.written["file/parquet/success"])
	assert.Equal(t, 1, metrics.sizes)
}

func TestFileWriter_EmptyBatch(t *testing.T) {
	enc, err := encoder.New(mutation.FormatAvro, "")
	require.NoError(t, err)
	w, err := NewFileWriter(FileConfig{BasePath: t.TempDir()}, enc, testLogger(), nil)
	require.NoError(t, err)

	_, err = w.Write(context.Background(), &mutation.Batch{Pool: "Pool#1"}, "file:///x/")
	assert.Error(t, err)
}
