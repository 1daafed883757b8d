// Package encoder writes stuck batches as archive files.
//
// A stuck batch is the content of a pool whose transaction was rolled back.
// Each buffered mutation becomes one archive record carrying the pool, the
// drain id, its position in the pool, the mutation target and the encoded
// mutation itself, so a batch can be inspected or replayed later.
//
// # Supported Formats
//
//   - Parquet: columnar, for ad hoc queries over archived batches
//   - Avro: row-based Object Container File with embedded schema
//
// # Compression Options
//
//	Parquet: "snappy" (default), "gzip", "lz4", "zstd", "none"
//	Avro:    "gzip" (whole file, default), "deflate", "snappy", "none"
//
// Avro "deflate" and "snappy" are OCF block codecs; "gzip" wraps the
// container in a gzip stream and changes the extension to ".avro.gz".
//
// # Usage
//
//	enc, err := encoder.New(mutation.FormatParquet, "snappy")
//	if err != nil {
//	    return err
//	}
//	stats, err := enc.Encode(w, batch)
//
// Encoders hold no per-call state and are safe for concurrent use.
package encoder
