package engine

import (
	"errors"
	"fmt"

	"github.com/dukex/licensehub/pkg/models"
)

var (
	// ErrInvalidTransition indicates a command that is not legal in the instance's current state.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrValidation indicates malformed command input.
	ErrValidation = errors.New("validation failed")

	// ErrTemplateMismatch indicates the template handed to the engine is not the one the instance was created from.
	ErrTemplateMismatch = errors.New("template does not match instance")
)

// TransitionError describes why a command was refused.
type TransitionError struct {
	InstanceID string
	Action     models.CommandAction
	Reason     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s workflow %s: %s", e.Action, e.InstanceID, e.Reason)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

func newTransitionError(inst *models.WorkflowInstance, action models.CommandAction, format string, args ...any) *TransitionError {
	return &TransitionError{
		InstanceID: inst.ID,
		Action:     action,
		Reason:     fmt.Sprintf(format, args...),
	}
}

// ValidationError reports an invalid input field.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s: %s: %v", e.Field, e.Reason, e.Err)
	}

	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrValidation, e.Err}
	}

	return []error{ErrValidation}
}

// IsInvalidTransition checks if an error indicates an illegal command.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsValidation checks if an error indicates invalid input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
