// Package persistencetest holds the behaviour every persistence backend must
// share, run by each backend's tests.
package persistencetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/licensehub/pkg/models"
	"github.com/dukex/licensehub/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty backend. It is called once per subtest.
type Factory func(t *testing.T) persistence.Persistence

var base = time.Date(2025, 5, 5, 8, 0, 0, 0, time.UTC)

// NewInstance builds a pending instance with one pending and one waiting step.
func NewInstance(id string, createdAt time.Time) *models.WorkflowInstance {
	return &models.WorkflowInstance{
		ID:              id,
		TemplateID:      "license-request-default",
		TemplateVersion: 1,
		Type:            models.RequestTypeLicenseRequest,
		Title:           "Licence: Figma",
		RequesterID:     "dave",
		Requester:       models.RequesterContext{UserID: "dave", Name: "Dave Moreau", Department: "design", Company: "acme"},
		Payload:         map[string]any{"software_name": "Figma", "estimated_cost": 1200.5},
		CurrentStep:     1,
		Status:          models.InstanceStatusPending,
		Priority:        models.PriorityMedium,
		DueDate:         createdAt.Add(8 * 24 * time.Hour),
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
		Steps: []models.StepInstance{
			{
				ID: id + "-s1", Number: 1, Role: "department_manager", Status: models.StepStatusPending,
				Approver: &models.ApproverIdentity{ID: "alice", Kind: models.ApproverKindUser},
				DueDate:  createdAt.Add(4 * 24 * time.Hour),
			},
			{ID: id + "-s2", Number: 2, Role: "it_manager", Status: models.StepStatusWaiting, DueDate: createdAt.Add(8 * 24 * time.Hour)},
		},
	}
}

// Run exercises factory's backend.
func Run(t *testing.T, factory Factory) {
	t.Helper()

	t.Run("create and load", func(t *testing.T) { testCreateAndLoad(t, factory(t)) })
	t.Run("compare and swap", func(t *testing.T) { testCompareAndSwap(t, factory(t)) })
	t.Run("concurrent swaps", func(t *testing.T) { testConcurrentSwaps(t, factory(t)) })
	t.Run("list", func(t *testing.T) { testList(t, factory(t)) })
	t.Run("audit log", func(t *testing.T) { testAuditLog(t, factory(t)) })
}

func testCreateAndLoad(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	store := p.Instances()

	require.NoError(t, p.HealthCheck(ctx))

	inst := NewInstance("wf-create", base)
	require.NoError(t, store.Create(ctx, inst))

	loaded, version, err := store.Load(ctx, "wf-create")
	require.NoError(t, err)
	assert.Equal(t, int64(0), version)
	assert.Equal(t, inst.ID, loaded.ID)
	assert.Equal(t, inst.Type, loaded.Type)
	assert.Equal(t, inst.Title, loaded.Title)
	assert.Equal(t, inst.Requester, loaded.Requester)
	assert.Equal(t, "Figma", loaded.Payload["software_name"])
	assert.InDelta(t, 1200.5, loaded.Payload["estimated_cost"], 0.001)
	assert.True(t, inst.CreatedAt.Equal(loaded.CreatedAt))
	require.Len(t, loaded.Steps, 2)
	assert.Equal(t, "alice", loaded.CurrentApproverID())
	assert.True(t, inst.Steps[0].DueDate.Equal(loaded.Steps[0].DueDate))

	err = store.Create(ctx, NewInstance("wf-create", base))
	assert.True(t, persistence.IsInstanceExists(err))

	_, _, err = store.Load(ctx, "missing")
	assert.True(t, persistence.IsInstanceNotFound(err))
}

func testCompareAndSwap(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	store := p.Instances()

	require.NoError(t, store.Create(ctx, NewInstance("wf-cas", base)))

	loaded, version, err := store.Load(ctx, "wf-cas")
	require.NoError(t, err)

	loaded.CurrentStep = 2
	loaded.Steps[0].Status = models.StepStatusApproved
	loaded.Steps[1].Status = models.StepStatusPending

	require.NoError(t, store.CompareAndSwap(ctx, "wf-cas", version, loaded))
	assert.Equal(t, version+1, loaded.Version)

	stale := loaded.Clone()
	stale.Status = models.InstanceStatusCancelled
	err = store.CompareAndSwap(ctx, "wf-cas", version, stale)
	assert.True(t, persistence.IsVersionConflict(err))

	reloaded, newVersion, err := store.Load(ctx, "wf-cas")
	require.NoError(t, err)
	assert.Equal(t, version+1, newVersion)
	assert.Equal(t, 2, reloaded.CurrentStep)
	assert.Equal(t, models.InstanceStatusPending, reloaded.Status)

	err = store.CompareAndSwap(ctx, "missing", 0, NewInstance("missing", base))
	assert.True(t, persistence.IsInstanceNotFound(err))
}

func testConcurrentSwaps(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	store := p.Instances()

	require.NoError(t, store.Create(ctx, NewInstance("wf-race", base)))

	const writers = 8

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
	)

	for i := range writers {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			inst := NewInstance("wf-race", base)
			inst.Title = fmt.Sprintf("writer %d", i)

			err := store.CompareAndSwap(ctx, "wf-race", 0, inst)

			switch {
			case err == nil:
				successes.Add(1)
			case persistence.IsVersionConflict(err):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}

	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(writers-1), conflicts.Load())

	_, version, err := store.Load(ctx, "wf-race")
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func testList(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	store := p.Instances()

	first := NewInstance("wf-1", base)
	second := NewInstance("wf-2", base.Add(time.Hour))
	second.Type = models.RequestTypeBudgetApproval
	second.Priority = models.PriorityUrgent
	second.Title = "Budget: 50%_off"
	third := NewInstance("wf-3", base.Add(2*time.Hour))
	third.Status = models.InstanceStatusApproved
	third.RequesterID = "erin"
	third.Requester = models.RequesterContext{UserID: "erin", Name: "Erin Ortiz"}

	for _, inst := range []*models.WorkflowInstance{first, second, third} {
		require.NoError(t, store.Create(ctx, inst))
	}

	listed, err := store.List(ctx, persistence.InstanceFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"wf-3", "wf-2", "wf-1"}, instanceIDs(listed))

	listed, err = store.List(ctx, persistence.InstanceFilter{Status: models.InstanceStatusPending})
	require.NoError(t, err)
	assert.Equal(t, []string{"wf-2", "wf-1"}, instanceIDs(listed))

	listed, err = store.List(ctx, persistence.InstanceFilter{Type: models.RequestTypeBudgetApproval, Priority: models.PriorityUrgent})
	require.NoError(t, err)
	assert.Equal(t, []string{"wf-2"}, instanceIDs(listed))

	listed, err = store.List(ctx, persistence.InstanceFilter{RequesterID: "erin"})
	require.NoError(t, err)
	assert.Equal(t, []string{"wf-3"}, instanceIDs(listed))

	listed, err = store.List(ctx, persistence.InstanceFilter{ApproverID: "alice", Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"wf-1"}, instanceIDs(listed))

	overdue := true
	listed, err = store.List(ctx, persistence.InstanceFilter{Overdue: &overdue, Now: base.Add(5 * 24 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, []string{"wf-2", "wf-1"}, instanceIDs(listed))

	searches := []struct {
		term     string
		expected []string
	}{
		{"FIGMA", []string{"wf-3", "wf-1"}},
		{"ortiz", []string{"wf-3"}},
		{"moreau", []string{"wf-2", "wf-1"}},
		{"%_", []string{"wf-2"}},
		{"nobody", []string{}},
	}

	for _, search := range searches {
		listed, err = store.List(ctx, persistence.InstanceFilter{Search: search.term})
		require.NoError(t, err, search.term)
		assert.Equal(t, search.expected, instanceIDs(listed), search.term)
	}
}

func testAuditLog(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	log := p.Audit()

	step := 1
	entries := []models.AuditEntry{
		{ID: "a1", InstanceID: "wf-audit", ActorID: "dave", Action: models.AuditActionCreated, Timestamp: base},
		{ID: "a2", InstanceID: "wf-audit", StepNumber: &step, ActorID: models.SystemActor, Action: models.AuditActionStepAdvanced, Timestamp: base},
	}
	require.NoError(t, log.Append(ctx, entries...))
	require.NoError(t, log.Append(ctx, models.AuditEntry{
		ID: "a3", InstanceID: "wf-audit", StepNumber: &step, ActorID: "alice",
		Action: models.AuditActionApproved, Comment: "fine", Timestamp: base.Add(time.Minute),
	}))
	require.NoError(t, log.Append(ctx, models.AuditEntry{ID: "b1", InstanceID: "wf-other", ActorID: "erin", Action: models.AuditActionCreated, Timestamp: base}))

	got, err := log.ByInstance(ctx, "wf-audit")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, []string{"a1", "a2", "a3"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Nil(t, got[0].StepNumber)
	require.NotNil(t, got[2].StepNumber)
	assert.Equal(t, 1, *got[2].StepNumber)
	assert.Equal(t, "fine", got[2].Comment)
	assert.True(t, base.Add(time.Minute).Equal(got[2].Timestamp))

	empty, err := log.ByInstance(ctx, "wf-none")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func instanceIDs(instances []*models.WorkflowInstance) []string {
	ids := make([]string, len(instances))
	for i, inst := range instances {
		ids[i] = inst.ID
	}

	return ids
}
