package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dukex/licensehub/internal/clock"
	"github.com/dukex/licensehub/pkg/condition"
	"github.com/dukex/licensehub/pkg/directory"
	"github.com/dukex/licensehub/pkg/events"
	"github.com/dukex/licensehub/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var createdAt = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

type fixture struct {
	engine *Engine
	clock  *clock.Manual
	dir    *directory.MemoryDirectory
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	dir := directory.NewMemoryDirectory()
	dir.Apply(directory.Seed{
		Users: []directory.User{
			{ID: "dave", Company: "acme", Department: "design"},
			{ID: "alice", Company: "acme", Department: "design", Roles: []string{directory.RoleDepartmentManager}},
			{ID: "bob", Company: "acme", Department: "it", Roles: []string{directory.RoleITManager}},
			{ID: "ivan", Company: "acme", Department: "it", Roles: []string{directory.RoleITDirector}},
			{ID: "carol", Company: "acme", Department: "finance", Roles: []string{directory.RoleFinanceManager}},
			{ID: "cathy", Company: "acme", Department: "board", Roles: []string{directory.RoleCEO}},
			{ID: "root", Company: "acme", Department: "it", Roles: []string{directory.RoleSuperAdmin}},
		},
	})

	manual := clock.NewManual(createdAt)
	counter := 0
	nextID := func() string {
		counter++

		return fmt.Sprintf("id-%d", counter)
	}

	opts = append([]Option{WithClock(manual), WithIDGenerator(nextID)}, opts...)

	return &fixture{
		engine: New(directory.NewResolver(dir), condition.NewCache(), opts...),
		clock:  manual,
		dir:    dir,
	}
}

func requester() models.RequesterContext {
	return models.RequesterContext{UserID: "dave", Department: "design", Company: "acme"}
}

func budgetTemplate() *models.WorkflowTemplate {
	return &models.WorkflowTemplate{
		ID: "budget", Name: "Budget", Type: models.RequestTypeBudgetApproval, Version: 1,
		Steps: []models.StepDefinition{
			{Number: 1, Role: directory.RoleFinanceManager},
			{Number: 2, Role: directory.RoleITDirector},
			{Number: 3, Role: directory.RoleCEO},
		},
	}
}

func declarationTemplate() *models.WorkflowTemplate {
	return &models.WorkflowTemplate{
		ID: "declaration", Name: "Declaration", Type: models.RequestTypeSoftwareDeclaration, Version: 1,
		Steps: []models.StepDefinition{
			{Number: 1, Role: directory.RoleDepartmentManager},
			{Number: 2, Role: directory.RoleITManager},
		},
	}
}

func licenseTemplate() *models.WorkflowTemplate {
	return &models.WorkflowTemplate{
		ID: "license", Name: "License", Type: models.RequestTypeLicenseRequest, Version: 1,
		Steps: []models.StepDefinition{
			{Number: 1, Role: directory.RoleITManager},
			{Number: 2, Role: directory.RoleFinanceManager, Condition: "estimated_cost > 5000", AutoApprove: true},
		},
	}
}

func (f *fixture) start(t *testing.T, tpl *models.WorkflowTemplate, priority models.Priority, payload map[string]any) *Result {
	t.Helper()

	inst := f.engine.Instantiate(InstanceSpec{
		ID:          "wf-1",
		Template:    tpl,
		RequesterID: "dave",
		Requester:   requester(),
		Payload:     payload,
		Priority:    priority,
	})

	result, err := f.engine.Activate(context.Background(), inst, tpl)
	require.NoError(t, err)

	return result
}

func eventTypes(result *Result) []events.EventType {
	types := make([]events.EventType, len(result.Events))
	for i, e := range result.Events {
		types[i] = e.Type
	}

	return types
}

func auditActions(result *Result) []models.AuditAction {
	actions := make([]models.AuditAction, len(result.Audit))
	for i, a := range result.Audit {
		actions[i] = a.Action
	}

	return actions
}

func TestInstantiate_StampsDueDates(t *testing.T) {
	f := newFixture(t)

	inst := f.engine.Instantiate(InstanceSpec{
		Template:    budgetTemplate(),
		RequesterID: "dave",
		Requester:   requester(),
		Priority:    models.PriorityUrgent,
	})

	assert.NotEmpty(t, inst.ID)
	assert.Equal(t, models.InstanceStatusPending, inst.Status)
	assert.Equal(t, 0, inst.CurrentStep)
	require.Len(t, inst.Steps, 3)

	for i, step := range inst.Steps {
		assert.Equal(t, models.StepStatusWaiting, step.Status)
		assert.Equal(t, createdAt.Add(time.Duration(i+1)*24*time.Hour), step.DueDate)
	}

	assert.Equal(t, createdAt.Add(72*time.Hour), inst.DueDate)
}

func TestBudgetApproval_ThreeSteps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tpl := budgetTemplate()

	result := f.start(t, tpl, models.PriorityMedium, map[string]any{"amount": 120000})
	inst := result.Instance

	assert.Equal(t, 1, inst.CurrentStep)
	assert.Equal(t, "carol", inst.CurrentApproverID())
	assert.Equal(t, []events.EventType{events.StepAdvancedEvent}, eventTypes(result))
	assert.Equal(t, []models.AuditAction{models.AuditActionStepAdvanced}, auditActions(result))

	approvers := []string{"carol", "ivan", "cathy"}
	previousStep := inst.CurrentStep

	for i, approver := range approvers {
		f.clock.Advance(time.Hour)

		current := inst.CurrentStepInstance()
		require.NotNil(t, current)
		assert.Equal(t, approver, current.Approver.ID)

		result, err := f.engine.Approve(ctx, inst, tpl, current.ID, approver, "ok")
		require.NoError(t, err)

		inst = result.Instance
		assert.GreaterOrEqual(t, inst.CurrentStep, previousStep)
		previousStep = inst.CurrentStep

		decided := inst.StepByNumber(i + 1)
		assert.Equal(t, models.StepStatusApproved, decided.Status)
		assert.Equal(t, approver, decided.DecidedBy)
		require.NotNil(t, decided.DecidedAt)
		assert.Equal(t, f.clock.Now(), *decided.DecidedAt)

		if i < len(approvers)-1 {
			assert.Equal(t, models.InstanceStatusPending, inst.Status)
			assert.Equal(t, []events.EventType{events.StepAdvancedEvent}, eventTypes(result))
			assert.Equal(t, approvers[i+1], result.Events[0].ApproverID)

			continue
		}

		assert.Equal(t, models.InstanceStatusApproved, inst.Status)
		require.NotNil(t, inst.CompletedAt)
		assert.Equal(t, f.clock.Now(), *inst.CompletedAt)
		assert.Equal(t, 3, inst.CurrentStep)
		assert.Equal(t, []events.EventType{events.ApprovedEvent}, eventTypes(result))
		assert.Equal(t, []models.AuditAction{models.AuditActionApproved, models.AuditActionCompleted}, auditActions(result))
	}
}

func TestSoftwareDeclaration_Reject(t *testing.T) {
	f := newFixture(t)
	tpl := declarationTemplate()

	inst := f.start(t, tpl, models.PriorityHigh, map[string]any{"software_name": "Figma"}).Instance
	assert.Equal(t, "alice", inst.CurrentApproverID())

	result, err := f.engine.Reject(context.Background(), inst, tpl, inst.Steps[0].ID, "alice", "  Already covered by the enterprise plan  ")
	require.NoError(t, err)

	rejected := result.Instance
	assert.Equal(t, models.InstanceStatusRejected, rejected.Status)
	assert.Equal(t, 1, rejected.CurrentStep)
	assert.Equal(t, models.StepStatusRejected, rejected.Steps[0].Status)
	assert.Equal(t, "Already covered by the enterprise plan", rejected.Steps[0].Comment)
	assert.Equal(t, models.StepStatusWaiting, rejected.Steps[1].Status)
	assert.Nil(t, rejected.Steps[1].Approver)
	require.NotNil(t, rejected.CompletedAt)

	require.Len(t, result.Events, 1)
	assert.Equal(t, events.RejectedEvent, result.Events[0].Type)
	assert.Equal(t, "alice", result.Events[0].ActorID)
	assert.Equal(t, []models.AuditAction{models.AuditActionRejected}, auditActions(result))

	_, err = f.engine.Approve(context.Background(), rejected, tpl, rejected.Steps[1].ID, "bob", "")
	assert.True(t, IsInvalidTransition(err))
}

func TestReject_LeavesLaterStepsUntouched(t *testing.T) {
	approvers := []string{"carol", "ivan", "cathy"}

	for k := 1; k <= 3; k++ {
		t.Run(fmt.Sprintf("reject at step %d", k), func(t *testing.T) {
			f := newFixture(t)
			tpl := budgetTemplate()
			inst := f.start(t, tpl, models.PriorityLow, nil).Instance

			for i := 1; i < k; i++ {
				result, err := f.engine.Approve(context.Background(), inst, tpl, inst.Steps[i-1].ID, approvers[i-1], "")
				require.NoError(t, err)

				inst = result.Instance
			}

			result, err := f.engine.Reject(context.Background(), inst, tpl, inst.Steps[k-1].ID, approvers[k-1], "no budget left")
			require.NoError(t, err)

			assert.Equal(t, models.InstanceStatusRejected, result.Instance.Status)
			assert.Equal(t, k, result.Instance.CurrentStep)

			for _, step := range result.Instance.Steps[k:] {
				assert.Equal(t, models.StepStatusWaiting, step.Status)
				assert.Nil(t, step.DecidedAt)
			}
		})
	}
}

func TestReject_EmptyCommentIsValidationError(t *testing.T) {
	f := newFixture(t)
	tpl := declarationTemplate()
	inst := f.start(t, tpl, models.PriorityMedium, nil).Instance
	before := inst.Clone()

	for _, comment := range []string{"", "   ", "\n\t"} {
		_, err := f.engine.Reject(context.Background(), inst, tpl, inst.Steps[0].ID, "alice", comment)
		require.Error(t, err)
		assert.True(t, IsValidation(err))
		assert.False(t, IsInvalidTransition(err))
	}

	assert.Equal(t, before, inst)
}

func TestAutoApproveSkipsFinalStep(t *testing.T) {
	f := newFixture(t)
	tpl := licenseTemplate()

	inst := f.start(t, tpl, models.PriorityMedium, map[string]any{"estimated_cost": 1200}).Instance
	assert.Equal(t, "bob", inst.CurrentApproverID())

	result, err := f.engine.Approve(context.Background(), inst, tpl, inst.Steps[0].ID, "bob", "")
	require.NoError(t, err)

	done := result.Instance
	assert.Equal(t, models.InstanceStatusApproved, done.Status)
	assert.Equal(t, models.StepStatusSkipped, done.Steps[1].Status)
	assert.Equal(t, models.SystemActor, done.Steps[1].DecidedBy)
	assert.Equal(t, 2, done.CurrentStep)
	assert.Equal(t,
		[]models.AuditAction{models.AuditActionApproved, models.AuditActionSkipped, models.AuditActionCompleted},
		auditActions(result),
	)
	assert.Equal(t, []events.EventType{events.ApprovedEvent}, eventTypes(result))
}

func TestConditionTrueRequiresHuman(t *testing.T) {
	f := newFixture(t)
	tpl := licenseTemplate()

	inst := f.start(t, tpl, models.PriorityMedium, map[string]any{"estimated_cost": 9000}).Instance

	result, err := f.engine.Approve(context.Background(), inst, tpl, inst.Steps[0].ID, "bob", "")
	require.NoError(t, err)

	assert.Equal(t, models.InstanceStatusPending, result.Instance.Status)
	assert.Equal(t, 2, result.Instance.CurrentStep)
	assert.Equal(t, "carol", result.Instance.CurrentApproverID())
}

func TestConditionFalseWithoutAutoApproveRequiresHuman(t *testing.T) {
	f := newFixture(t)
	tpl := licenseTemplate()
	tpl.Steps[1].AutoApprove = false

	inst := f.start(t, tpl, models.PriorityMedium, map[string]any{"estimated_cost": 10}).Instance

	result, err := f.engine.Approve(context.Background(), inst, tpl, inst.Steps[0].ID, "bob", "")
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusPending, result.Instance.Steps[1].Status)
}

func TestActivate_AllStepsSkipped(t *testing.T) {
	f := newFixture(t)
	tpl := &models.WorkflowTemplate{
		ID: "renewal", Name: "Renewal", Type: models.RequestTypeContractRenewal, Version: 1,
		Steps: []models.StepDefinition{
			{Number: 1, Role: directory.RoleFinanceManager, Condition: "annual_cost > 10000", AutoApprove: true},
		},
	}

	result := f.start(t, tpl, models.PriorityLow, map[string]any{"annual_cost": 900})

	assert.Equal(t, models.InstanceStatusApproved, result.Instance.Status)
	assert.Equal(t, 1, result.Instance.CurrentStep)
	assert.Equal(t, models.StepStatusSkipped, result.Instance.Steps[0].Status)
	assert.Equal(t, []events.EventType{events.ApprovedEvent}, eventTypes(result))
}

func TestActivate_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("no approver available", func(t *testing.T) {
		f := newFixture(t)
		tpl := declarationTemplate()

		inst := f.engine.Instantiate(InstanceSpec{
			Template:    tpl,
			RequesterID: "x",
			Requester:   models.RequesterContext{UserID: "x", Department: "legal", Company: "acme"},
			Priority:    models.PriorityLow,
		})

		_, err := f.engine.Activate(ctx, inst, tpl)
		assert.True(t, directory.IsNoApproverAvailable(err))
	})

	t.Run("condition on missing field", func(t *testing.T) {
		f := newFixture(t)
		tpl := licenseTemplate()
		tpl.Steps[0].Condition = "seats > 10"

		inst := f.engine.Instantiate(InstanceSpec{Template: tpl, RequesterID: "dave", Requester: requester(), Priority: models.PriorityLow})

		_, err := f.engine.Activate(ctx, inst, tpl)
		assert.True(t, IsValidation(err))
		assert.ErrorIs(t, err, condition.ErrInvalidCondition)
		assert.True(t, IsValidation(f.engine.ValidatePayload(tpl, map[string]any{})))
		assert.NoError(t, f.engine.ValidatePayload(tpl, map[string]any{"seats": 3, "estimated_cost": 10}))
	})

	t.Run("already active", func(t *testing.T) {
		f := newFixture(t)
		tpl := declarationTemplate()
		inst := f.start(t, tpl, models.PriorityLow, nil).Instance

		_, err := f.engine.Activate(ctx, inst, tpl)
		assert.True(t, IsInvalidTransition(err))
	})

	t.Run("template mismatch", func(t *testing.T) {
		f := newFixture(t)
		inst := f.start(t, declarationTemplate(), models.PriorityLow, nil).Instance

		_, err := f.engine.Approve(ctx, inst, budgetTemplate(), inst.Steps[0].ID, "alice", "")
		assert.ErrorIs(t, err, ErrTemplateMismatch)
	})
}

func TestIllegalCommandsDoNotMutate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tpl := budgetTemplate()
	inst := f.start(t, tpl, models.PriorityMedium, nil).Instance

	approved, err := f.engine.Approve(ctx, inst, tpl, inst.Steps[0].ID, "carol", "")
	require.NoError(t, err)

	cancelled, err := f.engine.Cancel(ctx, inst, "dave", "")
	require.NoError(t, err)

	tests := []struct {
		name   string
		inst   *models.WorkflowInstance
		cmd    models.Command
		assert func(t *testing.T, err error)
	}{
		{
			name: "wrong step",
			inst: inst,
			cmd:  models.Command{Action: models.CommandApprove, StepID: inst.Steps[1].ID, ActorID: "ivan"},
		},
		{
			name: "wrong actor",
			inst: inst,
			cmd:  models.Command{Action: models.CommandApprove, StepID: inst.Steps[0].ID, ActorID: "ivan"},
		},
		{
			name: "stale step after advance",
			inst: approved.Instance,
			cmd:  models.Command{Action: models.CommandApprove, StepID: inst.Steps[0].ID, ActorID: "carol"},
		},
		{
			name: "reject on cancelled instance",
			inst: cancelled.Instance,
			cmd:  models.Command{Action: models.CommandReject, StepID: inst.Steps[0].ID, ActorID: "carol", Comment: "no"},
		},
		{
			name: "cancel by someone else",
			inst: inst,
			cmd:  models.Command{Action: models.CommandCancel, ActorID: "carol"},
		},
		{
			name: "cancel twice",
			inst: cancelled.Instance,
			cmd:  models.Command{Action: models.CommandCancel, ActorID: "dave"},
		},
		{
			name: "unknown action",
			inst: inst,
			cmd:  models.Command{Action: "escalate", ActorID: "dave"},
			assert: func(t *testing.T, err error) {
				assert.True(t, IsValidation(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.inst.Clone()

			result, err := f.engine.Apply(ctx, tt.inst, tpl, tt.cmd)
			require.Error(t, err)
			assert.Nil(t, result)

			if tt.assert != nil {
				tt.assert(t, err)
			} else {
				assert.True(t, IsInvalidTransition(err), err.Error())

				var transitionErr *TransitionError
				require.ErrorAs(t, err, &transitionErr)
				assert.Equal(t, tt.inst.ID, transitionErr.InstanceID)
			}

			assert.Equal(t, before, tt.inst)
		})
	}
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("requester cancels", func(t *testing.T) {
		f := newFixture(t)
		inst := f.start(t, budgetTemplate(), models.PriorityMedium, nil).Instance

		f.clock.Advance(time.Minute)

		result, err := f.engine.Cancel(ctx, inst, "dave", "no longer needed")
		require.NoError(t, err)

		assert.Equal(t, models.InstanceStatusCancelled, result.Instance.Status)
		assert.Equal(t, models.StepStatusSkipped, result.Instance.Steps[0].Status)
		assert.Equal(t, models.StepStatusWaiting, result.Instance.Steps[1].Status)
		assert.Equal(t, []events.EventType{events.CancelledEvent}, eventTypes(result))
		require.Len(t, result.Audit, 1)
		assert.Equal(t, models.AuditActionCancelled, result.Audit[0].Action)
		assert.Equal(t, "no longer needed", result.Audit[0].Comment)
		require.NotNil(t, result.Audit[0].StepNumber)
		assert.Equal(t, 1, *result.Audit[0].StepNumber)
	})

	t.Run("administrator cancels", func(t *testing.T) {
		f := newFixture(t)
		f.engine.authorizer = directory.NewRoleAuthorizer(f.dir, nil)

		inst := f.start(t, budgetTemplate(), models.PriorityMedium, nil).Instance

		result, err := f.engine.Cancel(ctx, inst, "root", "")
		require.NoError(t, err)
		assert.Equal(t, models.InstanceStatusCancelled, result.Instance.Status)

		_, err = f.engine.Cancel(ctx, inst, "bob", "")
		assert.True(t, IsInvalidTransition(err))
	})
}

func TestRoleAuthorizerDelegation(t *testing.T) {
	f := newFixture(t)
	f.engine.authorizer = directory.NewRoleAuthorizer(f.dir, nil)
	f.dir.AddUser(directory.User{ID: "erin", Company: "acme", Department: "it", Roles: []string{directory.RoleITManager}})

	tpl := declarationTemplate()
	inst := f.start(t, tpl, models.PriorityMedium, nil).Instance

	result, err := f.engine.Approve(context.Background(), inst, tpl, inst.Steps[0].ID, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, "erin", result.Instance.CurrentApproverID())

	result, err = f.engine.Approve(context.Background(), result.Instance, tpl, result.Instance.Steps[1].ID, "bob", "covering for erin")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusApproved, result.Instance.Status)
	assert.Equal(t, "bob", result.Instance.Steps[1].DecidedBy)
}

func TestUrgentOverdue(t *testing.T) {
	f := newFixture(t)
	inst := f.start(t, declarationTemplate(), models.PriorityUrgent, nil).Instance

	assert.False(t, inst.IsOverdue(createdAt.Add(23*time.Hour)))
	assert.True(t, inst.IsOverdue(createdAt.Add(25*time.Hour)))
}
