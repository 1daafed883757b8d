package encoder

import (
	"fmt"

	pkgencoder "github.com/jittakal/poolstore/pkg/encoder"
	"github.com/jittakal/poolstore/pkg/mutation"
)

// New creates an encoder for format. An empty compression selects the
// format's default.
func New(format mutation.FileFormat, compression string) (pkgencoder.Encoder, error) {
	if compression == "" {
		compression = DefaultCompression(format)
	}
	switch format {
	case mutation.FormatParquet:
		return NewParquetEncoder(compression), nil
	case mutation.FormatAvro:
		return NewAvroEncoder(compression)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", format)
	}
}

// SupportedFormats returns a list of supported file formats.
func SupportedFormats() []mutation.FileFormat {
	return []mutation.FileFormat{mutation.FormatParquet, mutation.FormatAvro}
}

// DefaultCompression returns the default compression for a format.
func DefaultCompression(format mutation.FileFormat) string {
	switch format {
	case mutation.FormatParquet:
		return "snappy"
	case mutation.FormatAvro:
		return "gzip"
	default:
		return "none"
	}
}
