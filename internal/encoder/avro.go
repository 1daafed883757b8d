package encoder

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/linkedin/goavro/v2"

	pkgencoder "github.com/jittakal/poolstore/pkg/encoder"
	"github.com/jittakal/poolstore/pkg/mutation"
)

// Ensure implementation satisfies interface at compile time.
var _ pkgencoder.Encoder = (*AvroEncoder)(nil)

const avroSchema = `{
	"type": "record",
	"name": "StuckMutation",
	"namespace": "io.poolstore.archive",
	"fields": [
		{"name": "pool", "type": "string"},
		{"name": "drain_id", "type": "string"},
		{"name": "seq", "type": "int"},
		{"name": "target", "type": "string"},
		{"name": "payload", "type": "string"},
		{"name": "reason", "type": "string"},
		{"name": "mutation_time", "type": ["null", "string"], "default": null},
		{"name": "drained_at", "type": "string"}
	]
}`

// AvroEncoder writes batches as Avro Object Container Files.
type AvroEncoder struct {
	codec       *goavro.Codec
	compression string
}

// NewAvroEncoder creates an Avro encoder. compression is "gzip", "deflate",
// "snappy" or "none".
func NewAvroEncoder(compression string) (*AvroEncoder, error) {
	codec, err := goavro.NewCodec(avroSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to create avro codec: %w", err)
	}
	switch strings.ToLower(compression) {
	case "", "gzip", "deflate", "snappy", "none", "null", "uncompressed":
	default:
		return nil, fmt.Errorf("unsupported avro compression: %s", compression)
	}
	return &AvroEncoder{codec: codec, compression: strings.ToLower(compression)}, nil
}

// Encode writes batch to w.
func (e *AvroEncoder) Encode(w io.Writer, batch *mutation.Batch) (*mutation.FileStats, error) {
	if batch == nil || len(batch.Payloads) == 0 {
		return nil, errors.New("no records to encode")
	}

	cw := &countingWriter{w: w}
	var out io.Writer = cw
	var gz *gzip.Writer
	if e.gzipped() {
		gz = gzip.NewWriter(cw)
		out = gz
	}

	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               out,
		Codec:           e.codec,
		CompressionName: e.blockCodec(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create OCF writer: %w", err)
	}

	records := Records(batch)
	native := make([]any, len(records))
	for i, r := range records {
		native[i] = toAvro(r)
	}
	if err := ocf.Append(native); err != nil {
		return nil, fmt.Errorf("failed to write records: %w", err)
	}

	if gz != nil {
		if err := gz.Close(); err != nil {
			return nil, fmt.Errorf("failed to close gzip writer: %w", err)
		}
	}

	return &mutation.FileStats{RecordCount: len(records), SizeBytes: cw.n}, nil
}

func toAvro(r Record) map[string]any {
	m := map[string]any{
		"pool":          r.Pool,
		"drain_id":      r.DrainID,
		"seq":           int32(r.Seq),
		"target":        r.Target,
		"payload":       r.Payload,
		"reason":        r.Reason,
		"mutation_time": nil,
		"drained_at":    r.DrainedAt.Format(time.RFC3339Nano),
	}
	if r.MutationTime != nil {
		m["mutation_time"] = goavro.Union("string", r.MutationTime.Format(time.RFC3339Nano))
	}
	return m
}

func (e *AvroEncoder) gzipped() bool {
	return e.compression == "" || e.compression == "gzip"
}

func (e *AvroEncoder) blockCodec() string {
	switch e.compression {
	case "deflate":
		return goavro.CompressionDeflateLabel
	case "snappy":
		return goavro.CompressionSnappyLabel
	default:
		return goavro.CompressionNullLabel
	}
}

// Format returns the file format.
func (e *AvroEncoder) Format() mutation.FileFormat {
	return mutation.FormatAvro
}

// FileExtension returns the file extension.
func (e *AvroEncoder) FileExtension() string {
	if e.gzipped() {
		return ".avro.gz"
	}
	return ".avro"
}
