// Package errors defines application-specific error types and sentinel errors.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	ErrPoolExhausted  = errors.New("pool namespace exhausted")
	ErrNothingToDrain = errors.New("no pool to drain")
	ErrPoolNotStuck   = errors.New("pool is not stuck")
	ErrConsumerClosed = errors.New("consumer is closed")
	ErrInvalidEvent   = errors.New("invalid event")
	ErrWriterClosed   = errors.New("storage writer is closed")
	ErrConnectionLost = errors.New("connection lost")
)

// StoreUnavailableError reports that the coordination store could not be reached.
type StoreUnavailableError struct {
	Operation string
	Key       string
	Err       error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("coordination store unavailable: operation=%s key=%s: %v",
		e.Operation, e.Key, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}

// IsRetryable reports true: the producer layer may retry the append.
func (e *StoreUnavailableError) IsRetryable() bool {
	return true
}

// PoolExhaustedError is returned when minting would exceed the pool bound.
type PoolExhaustedError struct {
	MaxPools int
}

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("%v: max pools (%d) already minted", ErrPoolExhausted, e.MaxPools)
}

func (e *PoolExhaustedError) Unwrap() error {
	return ErrPoolExhausted
}

// BatchCommitError reports a batch the relational engine rejected. The
// transaction was rolled back in full and the pool left stuck.
type BatchCommitError struct {
	Pool    string
	DrainID string
	Count   int
	Err     error
}

func (e *BatchCommitError) Error() string {
	return fmt.Sprintf("batch commit error: pool=%s drain_id=%s mutations=%d: %v",
		e.Pool, e.DrainID, e.Count, e.Err)
}

func (e *BatchCommitError) Unwrap() error {
	return e.Err
}

// IsRetryable is always false so a batch is never submitted twice.
func (e *BatchCommitError) IsRetryable() bool {
	return false
}

// ProcessingError represents an error while ingesting a consumed message.
type ProcessingError struct {
	Topic     string
	Partition int32
	Offset    int64
	EventID   string
	Err       error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing error: topic=%s partition=%d offset=%d event_id=%s: %v",
		e.Topic, e.Partition, e.Offset, e.EventID, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// ValidationError represents a mutation validation failure.
type ValidationError struct {
	Target string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: target=%s field=%s: %s",
		e.Target, e.Field, e.Reason)
}

// StorageError represents a storage operation failure.
type StorageError struct {
	Operation string
	Path      string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: operation=%s path=%s: %v",
		e.Operation, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Retryable defines an interface for errors that can indicate if they are retryable.
type Retryable interface {
	error
	IsRetryable() bool
}

// IsRetryable checks if an error is retryable.
// It first checks if the error implements the Retryable interface,
// then falls back to checking sentinel errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable Retryable
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	if errors.Is(err, ErrConnectionLost) || errors.Is(err, ErrPoolExhausted) {
		return true
	}

	return false
}

// IsRetryable determines if a StorageError is retryable based on the operation type.
func (e *StorageError) IsRetryable() bool {
	return e.Operation == "write" || e.Operation == "upload" || e.Operation == "create"
}

// IsRetryable determines if a ProcessingError is retryable.
func (e *ProcessingError) IsRetryable() bool {
	return IsRetryable(e.Err)
}
