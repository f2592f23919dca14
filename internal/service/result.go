package service

import (
	"errors"

	"github.com/google/uuid"
)

// Result carries the outcome of an orchestrator. Expected business failures come back
// as Success=false with Err set; infrastructure faults are returned as Go errors instead.
type Result[T any] struct {
	Success bool
	Data    T
	Err     error
}

func succeeded[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data}
}

func rejected[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

// rejectedWith keeps the data produced before the failure, such as a failed transaction.
func rejectedWith[T any](data T, err error) Result[T] {
	return Result[T]{Data: data, Err: err}
}

// Reason is the user-facing failure message, empty on success.
func (r Result[T]) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Is reports whether the failure matches target.
func (r Result[T]) Is(target error) bool {
	return errors.Is(r.Err, target)
}

// BatchError records why one entity of a batch was not processed.
type BatchError struct {
	EntityID uuid.UUID `json:"entity_id"`
	Reason   string    `json:"reason"`
}

// BatchResult accumulates per-entity outcomes; a batch never aborts on one entity.
type BatchResult struct {
	Processed int          `json:"processed"`
	Skipped   int          `json:"skipped"`
	Failed    int          `json:"failed"`
	Errors    []BatchError `json:"errors"`
}

func (b *BatchResult) fail(id uuid.UUID, err error) {
	b.Failed++
	b.Errors = append(b.Errors, BatchError{EntityID: id, Reason: err.Error()})
}
