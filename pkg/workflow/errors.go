package workflow

import (
	"errors"

	"github.com/dukex/licensehub/pkg/directory"
	"github.com/dukex/licensehub/pkg/engine"
	"github.com/dukex/licensehub/pkg/persistence"
	"github.com/dukex/licensehub/pkg/registry"
)

var (
	// ErrConcurrentModification is returned when every compare-and-swap
	// attempt of a command lost to a concurrent writer.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrAuditWriteFailed is returned alongside a committed instance whose
	// audit entries could not be appended.
	ErrAuditWriteFailed = errors.New("audit write failed")
)

// IsConcurrentModification checks if an error indicates exhausted CAS retries.
func IsConcurrentModification(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsAuditWriteFailed checks if a committed transition is missing its audit entries.
func IsAuditWriteFailed(err error) bool {
	return errors.Is(err, ErrAuditWriteFailed)
}

// IsNotFound checks if an error indicates an unknown workflow instance.
func IsNotFound(err error) bool {
	return persistence.IsInstanceNotFound(err)
}

// IsTemplateNotFound checks if no template applies to a request.
func IsTemplateNotFound(err error) bool {
	return registry.IsTemplateNotFound(err)
}

// IsNoApproverAvailable checks if a step role could not be resolved.
func IsNoApproverAvailable(err error) bool {
	return directory.IsNoApproverAvailable(err)
}

// IsInvalidTransition checks if a command is illegal in the instance's state.
func IsInvalidTransition(err error) bool {
	return engine.IsInvalidTransition(err)
}

// IsValidation checks if an error indicates invalid caller input.
func IsValidation(err error) bool {
	return engine.IsValidation(err)
}
