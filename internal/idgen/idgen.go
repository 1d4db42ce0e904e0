// Package idgen generates identifiers for workflow instances, steps and audit entries.
package idgen

import "github.com/google/uuid"

// New returns a time-ordered UUID (v7), falling back to a random one.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}
