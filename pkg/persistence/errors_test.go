package persistence_test

import (
	"errors"
	"testing"

	"github.com/dukex/licensehub/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		notFound := persistence.NewInstanceError("Load", "wf-123", persistence.ErrInstanceNotFound)
		conflict := persistence.NewInstanceError("CompareAndSwap", "wf-123", persistence.ErrVersionConflict)
		exists := persistence.NewInstanceError("Create", "wf-123", persistence.ErrInstanceExists)

		assert.True(t, persistence.IsInstanceNotFound(notFound))
		assert.True(t, persistence.IsVersionConflict(conflict))
		assert.True(t, persistence.IsInstanceExists(exists))
		assert.False(t, persistence.IsVersionConflict(notFound))

		assert.True(t, errors.Is(notFound, persistence.ErrInstanceNotFound))
	})

	t.Run("instance error contains context", func(t *testing.T) {
		err := persistence.NewInstanceError("CompareAndSwap", "wf-123", persistence.ErrVersionConflict)

		assert.Contains(t, err.Error(), "CompareAndSwap")
		assert.Contains(t, err.Error(), "wf-123")
		assert.Contains(t, err.Error(), "version conflict")
	})
}
