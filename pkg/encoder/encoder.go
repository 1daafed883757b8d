// Package encoder defines the interface for writing stuck batches to archive files.
package encoder

import (
	"io"

	"github.com/jittakal/poolstore/pkg/mutation"
)

// Encoder encodes a batch to a specific file format.
type Encoder interface {
	// Encode writes batch to w and returns file statistics.
	Encode(w io.Writer, batch *mutation.Batch) (*mutation.FileStats, error)

	// Format returns the file format this encoder produces.
	Format() mutation.FileFormat

	// FileExtension returns the file extension (e.g., ".parquet", ".avro").
	FileExtension() string
}
