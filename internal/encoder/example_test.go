package encoder_test

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jittakal/poolstore/internal/encoder"
	"github.com/jittakal/poolstore/pkg/mutation"
)

func ExampleNew() {
	enc, err := encoder.New(mutation.FormatParquet, "")
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	payload, _ := mutation.Encode(&mutation.Mutation{Table: "events", Columns: []string{"id"}, Values: []any{"e1"}})
	batch := &mutation.Batch{
		Pool:      "Pool#2",
		DrainID:   "d-42",
		Payloads:  [][]byte{payload},
		Reason:    "commit timed out",
		CreatedAt: time.Now(),
	}

	var buf bytes.Buffer
	stats, err := enc.Encode(&buf, batch)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	fmt.Printf("Encoded %d records\n", stats.RecordCount)
	fmt.Printf("File extension: %s\n", enc.FileExtension())

	// Output:
	// Encoded 1 records
	// File extension: .parquet
}
