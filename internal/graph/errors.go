package graph

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/born-ml/computegraph/internal/kernel"
)

// Common errors.
var (
	// ErrValidation is the cause of every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrUnknownKernel is returned when a node names an unregistered kernel.
	ErrUnknownKernel = kernel.ErrUnknownKernel

	// ErrInvalidValue is returned for value references outside the graph.
	ErrInvalidValue = errors.New("invalid value reference")

	// ErrCapacityExceeded is returned when a virtual resize needs more
	// elements than the value's storage holds.
	ErrCapacityExceeded = errors.New("requested shape exceeds allocated capacity")

	// ErrNotPrepared is returned when the graph runs before Prepare.
	ErrNotPrepared = errors.New("graph has not been prepared")

	// ErrAlreadyPrepared is returned when Prepare is called twice.
	ErrAlreadyPrepared = errors.New("graph is already prepared")

	// ErrAlreadyPrepacked is returned when Prepack is called twice.
	ErrAlreadyPrepacked = errors.New("prepack queue has already been drained")

	// ErrIncompatibleDevice is returned when a device cannot honour the
	// limits the graph sized its workgroups for.
	ErrIncompatibleDevice = errors.New("device limits are below graph limits")
)

// ValidationError describes a build-time precondition violation.
type ValidationError struct {
	Op         string   // Operation being built (e.g. "where", "prepack_int8x4_buffer")
	Value      ValueRef // Value that violated the constraint, or NoValue
	Constraint string   // Constraint that failed (e.g. "dtype == int8x4")
	Details    string   // Additional details
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Value != NoValue {
		return fmt.Sprintf("%s: value %d: %s: %s", e.Op, e.Value, e.Constraint, e.Details)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Constraint, e.Details)
}

// Unwrap makes every ValidationError match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
