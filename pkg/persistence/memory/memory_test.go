package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/licensehub/pkg/persistence"
	"github.com/dukex/licensehub/pkg/persistence/memory"
	"github.com/dukex/licensehub/pkg/persistence/persistencetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPersistence(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.Persistence {
		return memory.NewPersistence()
	})
}

func TestMemoryPersistence_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	p := memory.NewPersistence()

	inst := persistencetest.NewInstance("wf-copy", time.Now().UTC())
	require.NoError(t, p.Create(ctx, inst))

	inst.Payload["software_name"] = "changed"

	loaded, _, err := p.Load(ctx, "wf-copy")
	require.NoError(t, err)
	assert.Equal(t, "Figma", loaded.Payload["software_name"])

	loaded.Steps[0].Approver.ID = "mallory"

	again, _, err := p.Load(ctx, "wf-copy")
	require.NoError(t, err)
	assert.Equal(t, "alice", again.Steps[0].Approver.ID)
}
