// Package mutation defines the pending write that producers hand to the
// write-back buffer.
//
// # Mutations
//
// A Mutation is either a structured insert, rendered for the target database
// dialect at flush time:
//
//	m := &mutation.Mutation{
//	    Table:   "orders-u42-20250101",
//	    Columns: []string{"id", "amount"},
//	    Values:  []any{int64(7), 19.5},
//	}
//
// or a raw statement with positional arguments:
//
//	m := &mutation.Mutation{
//	    Statement: "UPDATE counters SET n = n + 1 WHERE id = ?",
//	    Args:      []any{int64(1)},
//	}
//
// Keyword and UID address a time-sharded partition instead of a fixed table;
// the ingestion path resolves them to a concrete partition name.
//
// # Encoding
//
// Encode and Decode produce the opaque byte strings stored in a pool. Integral
// JSON numbers decode to int64 and fractional ones to float64:
//
//	data, _ := mutation.Encode(m)
//	back, _ := mutation.Decode(data)
//
// # Rows from structs
//
// Insert builds a structured insert from the exported fields of a struct,
// honouring `db` tags and falling back to snake_case field names:
//
//	type Order struct {
//	    ID     int64   `db:"id"`
//	    Amount float64
//	}
//	m, _ := mutation.Insert("orders", Order{ID: 7, Amount: 19.5})
//
// # Envelopes
//
// Envelope is the CloudEvents 1.0 structured message consumed from Kafka; its
// data attribute carries one encoded mutation.
package mutation
