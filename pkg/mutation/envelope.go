package mutation

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// EventType is the CloudEvents type attribute of a mutation envelope.
const EventType = "io.poolstore.mutation.v1"

// Envelope represents a CloudEvents 1.0 structured message whose data
// attribute is one encoded Mutation.
// See https://github.com/cloudevents/spec/blob/v1.0/spec.md
type Envelope struct {
	// Required attributes
	ID          string `json:"id"`
	Source      string `json:"source"`
	SpecVersion string `json:"specversion"`
	Type        string `json:"type"`

	// Optional attributes
	DataContentType *string    `json:"datacontenttype,omitempty"`
	Subject         *string    `json:"subject,omitempty"`
	Time            *time.Time `json:"time,omitempty"`

	Data json.RawMessage `json:"data,omitempty"`
}

// ParseEnvelope decodes a structured CloudEvents message.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse envelope: %w", err)
	}
	return &env, nil
}

// Mutation decodes the envelope's data attribute.
func (e *Envelope) Mutation() (*Mutation, error) {
	if len(e.Data) == 0 {
		return nil, fmt.Errorf("envelope %s: empty data", e.ID)
	}
	m, err := Decode(e.Data)
	if err != nil {
		return nil, fmt.Errorf("envelope %s: %w", e.ID, err)
	}
	if m.CreatedAt.IsZero() && e.Time != nil {
		m.CreatedAt = *e.Time
	}
	return m, nil
}

// KafkaMetadata contains Kafka-specific metadata for a consumed message.
type KafkaMetadata struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Headers   map[string]string
	Timestamp time.Time
}

// ConsumedMutation is a mutation read from Kafka together with the hook that
// marks its offset once the mutation is safely buffered. Envelope is nil when
// Raw could not be parsed; Mutation is set once the data has been decoded.
type ConsumedMutation struct {
	Raw        []byte
	Envelope   *Envelope
	Mutation   *Mutation
	Metadata   KafkaMetadata
	CommitFunc func() error
}

// FileFormat represents the archive file format.
type FileFormat string

const (
	FormatParquet FileFormat = "parquet"
	FormatAvro    FileFormat = "avro"
)

// Batch is the content of one pool at drain time.
type Batch struct {
	Pool      string
	DrainID   string
	Payloads  [][]byte
	Reason    string
	CreatedAt time.Time
}

// SizeBytes returns the sum of the payload lengths.
func (b *Batch) SizeBytes() int64 {
	var n int64
	for _, p := range b.Payloads {
		n += int64(len(p))
	}
	return n
}

// FileStats contains statistics about an encoded archive file.
type FileStats struct {
	RecordCount int
	SizeBytes   int64
}
