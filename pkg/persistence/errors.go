package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrInstanceNotFound indicates no instance exists with the given identifier.
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrInstanceExists indicates an instance with the same identifier is already stored.
	ErrInstanceExists = errors.New("workflow instance already exists")

	// ErrVersionConflict indicates the stored version differs from the one the caller loaded.
	ErrVersionConflict = errors.New("workflow instance version conflict")

	// ErrInvalidInstanceID indicates an identifier the backend cannot store.
	ErrInvalidInstanceID = errors.New("invalid workflow instance id")
)

// InstanceError wraps instance-related errors with additional context.
type InstanceError struct {
	Op         string // Operation being performed (e.g., "Load", "CompareAndSwap")
	InstanceID string
	Err        error
}

func (e *InstanceError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow instance %s: %v", e.Op, e.InstanceID, e.Err)
}

func (e *InstanceError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for instance errors.
func (e *InstanceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewInstanceError creates a new instance error with context.
func NewInstanceError(op, instanceID string, err error) *InstanceError {
	return &InstanceError{
		Op:         op,
		InstanceID: instanceID,
		Err:        err,
	}
}

// IsInstanceNotFound checks if an error indicates an instance was not found.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}

// IsVersionConflict checks if an error indicates a lost compare-and-swap.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsInstanceExists checks if an error indicates a duplicate instance.
func IsInstanceExists(err error) bool {
	return errors.Is(err, ErrInstanceExists)
}

// IsInvalidInstanceID checks if an error indicates an unusable identifier.
func IsInvalidInstanceID(err error) bool {
	return errors.Is(err, ErrInvalidInstanceID)
}
