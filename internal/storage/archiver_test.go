package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jittakal/poolstore/pkg/mutation"
)

func TestArchiver_HandleStuck(t *testing.T) {
	w := &recordingWriter{}
	a := NewArchiver(w, NewRouter("s3", "bucket", "base"), testLogger())

	require.NoError(t, a.HandleStuck(context.Background(), testBatch(t)))
	assert.Equal(t, []string{"s3://bucket/base/stuck/dt=2024-03-01/pool=7/"}, w.paths)

	require.NoError(t, a.Close())
	assert.True(t, w.closed)
}

func TestArchiver_HandleStuckError(t *testing.T) {
	w := &recordingWriter{err: errors.New("boom")}
	a := NewArchiver(w, NewRouter("file", "", ""), testLogger())

	err := a.HandleStuck(context.Background(), &mutation.Batch{Pool: "Pool#1"})
	assert.EqualError(t, err, "boom")
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	a, err := Open(ctx, Config{
		Backend: BackendFile,
		Format:  mutation.FormatAvro,
		File:    FileConfig{BasePath: t.TempDir()},
	}, testLogger(), nil)
	require.NoError(t, err)
	require.NoError(t, a.HandleStuck(ctx, testBatch(t)))
	assert.NoError(t, a.Close())

	_, err = Open(ctx, Config{Backend: "ftp", Format: mutation.FormatAvro}, testLogger(), nil)
	assert.ErrorContains(t, err, "unsupported storage backend")

	_, err = Open(ctx, Config{Backend: BackendFile, Format: "csv"}, testLogger(), nil)
	assert.Error(t, err)

	_, err = Open(ctx, Config{Backend: BackendAzure, Format: mutation.FormatParquet}, testLogger(), nil)
	assert.Error(t, err)
}
