package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrPoolExhausted", ErrPoolExhausted},
		{"ErrNothingToDrain", ErrNothingToDrain},
		{"ErrPoolNotStuck", ErrPoolNotStuck},
		{"ErrConsumerClosed", ErrConsumerClosed},
		{"ErrInvalidEvent", ErrInvalidEvent},
		{"ErrWriterClosed", ErrWriterClosed},
		{"ErrConnectionLost", ErrConnectionLost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				t.Errorf("%s should not be nil", tt.name)
			}
			if tt.err.Error() == "" {
				t.Errorf("%s should have an error message", tt.name)
			}
		})
	}
}

func TestStoreUnavailableError(t *testing.T) {
	baseErr := errors.New("dial tcp: connection refused")
	err := &StoreUnavailableError{Operation: "append", Key: "Pool#1", Err: baseErr}

	if !errors.Is(err, baseErr) {
		t.Error("StoreUnavailableError should wrap base error")
	}
	if !strings.Contains(err.Error(), "Pool#1") {
		t.Errorf("Error() = %q, want key in message", err.Error())
	}
	if !IsRetryable(err) {
		t.Error("StoreUnavailableError should be retryable")
	}
}

func TestPoolExhaustedError(t *testing.T) {
	err := &PoolExhaustedError{MaxPools: 100}

	if !errors.Is(err, ErrPoolExhausted) {
		t.Error("PoolExhaustedError should match ErrPoolExhausted")
	}
	if !strings.Contains(err.Error(), "100") {
		t.Errorf("Error() = %q, want bound in message", err.Error())
	}
}

func TestBatchCommitError(t *testing.T) {
	baseErr := errors.New("unique constraint violated")
	err := &BatchCommitError{Pool: "Pool#3", DrainID: "d-1", Count: 42, Err: baseErr}

	if !errors.Is(err, baseErr) {
		t.Error("BatchCommitError should wrap base error")
	}
	if !strings.Contains(err.Error(), "mutations=42") {
		t.Errorf("Error() = %q, want mutation count", err.Error())
	}
	if IsRetryable(err) {
		t.Error("BatchCommitError must not be retryable")
	}
}

func TestProcessingError(t *testing.T) {
	baseErr := errors.New("base error")
	procErr := &ProcessingError{
		Topic:     "mutations",
		Partition: 0,
		Offset:    100,
		EventID:   "event-123",
		Err:       baseErr,
	}

	if procErr.Error() == "" {
		t.Error("ProcessingError should have an error message")
	}

	if !errors.Is(procErr, baseErr) {
		t.Error("ProcessingError should wrap base error")
	}
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{
		Target: "orders-u1-20240101",
		Field:  "columns",
		Reason: "column and value counts differ",
	}

	if err.Error() == "" {
		t.Error("ValidationError should have an error message")
	}
}

func TestStorageError(t *testing.T) {
	baseErr := errors.New("disk full")
	storageErr := &StorageError{
		Operation: "write",
		Path:      "/data/stuck.parquet",
		Err:       baseErr,
	}

	if storageErr.Error() == "" {
		t.Error("StorageError should have an error message")
	}

	if !errors.Is(storageErr, baseErr) {
		t.Error("StorageError should wrap base error")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "storage error is retryable",
			err:  &StorageError{Operation: "write", Path: "/tmp/file", Err: errors.New("failed")},
			want: true,
		},
		{
			name: "connection lost is retryable",
			err:  ErrConnectionLost,
			want: true,
		},
		{
			name: "exhausted pool namespace is retryable",
			err:  &PoolExhaustedError{MaxPools: 5},
			want: true,
		},
		{
			name: "wrapped store error is retryable",
			err:  &ProcessingError{Err: &StoreUnavailableError{Operation: "append", Err: errors.New("eof")}},
			want: true,
		},
		{
			name: "validation error is not retryable",
			err:  &ValidationError{Target: "t", Field: "table", Reason: "missing"},
			want: false,
		},
		{
			name: "generic error is not retryable",
			err:  errors.New("generic error"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
