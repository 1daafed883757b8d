package main

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/jittakal/poolstore/internal/flush"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// drainReport is the printed form of a flush.Result.
type drainReport struct {
	Pool       string  `json:"pool,omitempty"`
	DrainID    string  `json:"drain_id,omitempty"`
	Status     string  `json:"status"`
	Mutations  int     `json:"mutations"`
	Bytes      int64   `json:"bytes"`
	DurationMS float64 `json:"duration_ms"`
}

func reportOf(res flush.Result) drainReport {
	return drainReport{
		Pool:       res.Pool,
		DrainID:    res.DrainID,
		Status:     string(res.Status),
		Mutations:  res.Count,
		Bytes:      res.Bytes,
		DurationMS: float64(res.Duration.Microseconds()) / 1000,
	}
}
