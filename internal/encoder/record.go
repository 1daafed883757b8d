package encoder

import (
	"io"
	"time"

	"github.com/jittakal/poolstore/pkg/mutation"
)

// Record is one archived mutation of a stuck batch.
type Record struct {
	Pool    string
	DrainID string
	Seq     int
	// Target is the table or keyword/uid of the mutation, empty when the
	// payload does not decode.
	Target       string
	Payload      string
	Reason       string
	MutationTime *time.Time
	DrainedAt    time.Time
}

// Records flattens a batch into archive records in pool order.
func Records(batch *mutation.Batch) []Record {
	records := make([]Record, len(batch.Payloads))
	for i, p := range batch.Payloads {
		rec := Record{
			Pool:      batch.Pool,
			DrainID:   batch.DrainID,
			Seq:       i,
			Payload:   string(p),
			Reason:    batch.Reason,
			DrainedAt: batch.CreatedAt.UTC(),
		}
		if m, err := mutation.Decode(p); err == nil {
			rec.Target = m.Target()
			if !m.CreatedAt.IsZero() {
				t := m.CreatedAt.UTC()
				rec.MutationTime = &t
			}
		}
		records[i] = rec
	}
	return records
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
