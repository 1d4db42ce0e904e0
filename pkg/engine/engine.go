// Package engine applies approval commands to workflow instances. It is
// stateless: every operation works on a copy of the instance it is given and
// returns the new state together with the audit entries and events the
// transition produced.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/licensehub/internal/clock"
	"github.com/dukex/licensehub/internal/idgen"
	"github.com/dukex/licensehub/pkg/deadline"
	"github.com/dukex/licensehub/pkg/events"
	"github.com/dukex/licensehub/pkg/models"
)

// ApproverResolver maps a step definition to a concrete approver for the requester.
type ApproverResolver interface {
	Resolve(ctx context.Context, step models.StepDefinition, requester models.RequesterContext) (models.ApproverIdentity, error)
}

// ConditionEvaluator evaluates a step condition against the request payload.
type ConditionEvaluator interface {
	Evaluate(expression string, payload map[string]any) (bool, error)
}

// Authorizer decides who may act on a step and who may cancel any instance.
type Authorizer interface {
	CanActOnStep(ctx context.Context, actorID string, inst *models.WorkflowInstance, step *models.StepInstance) (bool, error)
	IsAdministrator(ctx context.Context, actorID string) (bool, error)
}

// IdentityAuthorizer only lets the resolved approver act and knows no administrators.
type IdentityAuthorizer struct{}

func (IdentityAuthorizer) CanActOnStep(_ context.Context, actorID string, _ *models.WorkflowInstance, step *models.StepInstance) (bool, error) {
	return step.Approver != nil && step.Approver.Includes(actorID), nil
}

func (IdentityAuthorizer) IsAdministrator(context.Context, string) (bool, error) {
	return false, nil
}

// Result is the outcome of a legal transition.
type Result struct {
	Instance *models.WorkflowInstance
	Audit    []models.AuditEntry
	Events   []events.Event
}

type Engine struct {
	resolver   ApproverResolver
	conditions ConditionEvaluator
	authorizer Authorizer
	clock      clock.Clock
	newID      func() string
}

type Option func(*Engine)

func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

func WithAuthorizer(a Authorizer) Option {
	return func(e *Engine) {
		e.authorizer = a
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		e.newID = newID
	}
}

func New(resolver ApproverResolver, conditions ConditionEvaluator, opts ...Option) *Engine {
	e := &Engine{
		resolver:   resolver,
		conditions: conditions,
		authorizer: IdentityAuthorizer{},
		clock:      clock.New(),
		newID:      idgen.New,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// InstanceSpec carries what a new instance is built from.
type InstanceSpec struct {
	ID          string
	Template    *models.WorkflowTemplate
	RequesterID string
	Requester   models.RequesterContext
	Payload     map[string]any
	Priority    models.Priority
	Title       string
}

// Instantiate builds a pending instance with every step waiting and every due
// date stamped from the creation time and priority. Call Activate next.
func (e *Engine) Instantiate(spec InstanceSpec) *models.WorkflowInstance {
	now := e.clock.Now()
	tpl := spec.Template
	schedule := deadline.Plan(now, spec.Priority, tpl)

	id := spec.ID
	if id == "" {
		id = e.newID()
	}

	inst := &models.WorkflowInstance{
		ID:              id,
		TemplateID:      tpl.ID,
		TemplateVersion: tpl.Version,
		Type:            tpl.Type,
		Title:           spec.Title,
		RequesterID:     spec.RequesterID,
		Requester:       spec.Requester,
		Payload:         spec.Payload,
		Status:          models.InstanceStatusPending,
		Priority:        spec.Priority,
		DueDate:         schedule.Due,
		CreatedAt:       now,
		UpdatedAt:       now,
		Steps:           make([]models.StepInstance, len(tpl.Steps)),
	}

	for i, def := range tpl.Steps {
		inst.Steps[i] = models.StepInstance{
			ID:      e.newID(),
			Number:  def.Number,
			Role:    def.Role,
			Status:  models.StepStatusWaiting,
			DueDate: schedule.Steps[i],
		}
	}

	return inst.Clone()
}

// ValidatePayload evaluates every step condition of tpl against payload so
// that a payload the chain cannot be routed on is refused at creation.
func (e *Engine) ValidatePayload(tpl *models.WorkflowTemplate, payload map[string]any) error {
	for _, step := range tpl.Steps {
		if step.Condition == "" {
			continue
		}

		if _, err := e.conditions.Evaluate(step.Condition, payload); err != nil {
			return &ValidationError{
				Field:  "payload",
				Reason: fmt.Sprintf("step %d condition %q cannot be evaluated", step.Number, step.Condition),
				Err:    err,
			}
		}
	}

	return nil
}

// Activate routes a freshly created instance to its first step requiring a
// human, skipping auto-approvable steps. The instance may complete at once.
func (e *Engine) Activate(ctx context.Context, inst *models.WorkflowInstance, tpl *models.WorkflowTemplate) (*Result, error) {
	if err := checkTemplate(inst, tpl); err != nil {
		return nil, err
	}

	if inst.Status != models.InstanceStatusPending || inst.CurrentStep != 0 {
		return nil, fmt.Errorf("%w: workflow %s is already active", ErrInvalidTransition, inst.ID)
	}

	now := e.clock.Now()
	result := &Result{Instance: inst.Clone()}

	if err := e.advance(ctx, result, tpl, 1, now); err != nil {
		return nil, err
	}

	return result, nil
}

// Apply dispatches cmd to Approve, Reject or Cancel.
func (e *Engine) Apply(ctx context.Context, inst *models.WorkflowInstance, tpl *models.WorkflowTemplate, cmd models.Command) (*Result, error) {
	switch cmd.Action {
	case models.CommandApprove:
		return e.Approve(ctx, inst, tpl, cmd.StepID, cmd.ActorID, cmd.Comment)
	case models.CommandReject:
		return e.Reject(ctx, inst, tpl, cmd.StepID, cmd.ActorID, cmd.Comment)
	case models.CommandCancel:
		return e.Cancel(ctx, inst, cmd.ActorID, cmd.Comment)
	default:
		return nil, &ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", cmd.Action)}
	}
}

// Approve records actorID's approval of the current step and advances the
// chain. It is legal only while the instance is pending, stepID is the
// current step and the authorizer accepts actorID.
func (e *Engine) Approve(ctx context.Context, inst *models.WorkflowInstance, tpl *models.WorkflowTemplate, stepID, actorID, comment string) (*Result, error) {
	if err := checkTemplate(inst, tpl); err != nil {
		return nil, err
	}

	step, err := e.decidableStep(ctx, inst, models.CommandApprove, stepID, actorID)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	result := &Result{Instance: inst.Clone()}
	current := result.Instance.StepByNumber(step.Number)

	decide(current, models.StepStatusApproved, actorID, comment, now)
	result.Instance.UpdatedAt = now
	result.Audit = append(result.Audit, e.audit(result.Instance, &current.Number, actorID, models.AuditActionApproved, comment, now))

	if err := e.advance(ctx, result, tpl, current.Number+1, now); err != nil {
		return nil, err
	}

	return result, nil
}

// Reject ends the chain at the current step. A non-blank comment is required;
// later steps are left untouched.
func (e *Engine) Reject(ctx context.Context, inst *models.WorkflowInstance, tpl *models.WorkflowTemplate, stepID, actorID, comment string) (*Result, error) {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, &ValidationError{Field: "comment", Reason: "a comment is required to reject"}
	}

	if err := checkTemplate(inst, tpl); err != nil {
		return nil, err
	}

	step, err := e.decidableStep(ctx, inst, models.CommandReject, stepID, actorID)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	result := &Result{Instance: inst.Clone()}
	current := result.Instance.StepByNumber(step.Number)

	decide(current, models.StepStatusRejected, actorID, comment, now)
	complete(result.Instance, models.InstanceStatusRejected, now)

	result.Audit = append(result.Audit, e.audit(result.Instance, &current.Number, actorID, models.AuditActionRejected, comment, now))

	event := events.New(events.RejectedEvent, result.Instance, now)
	event.StepNumber = current.Number
	event.ActorID = actorID
	event.ApproverID = approverID(current)
	result.Events = append(result.Events, event)

	return result, nil
}

// Cancel withdraws a pending instance. Only the requester or an
// administrator may cancel; the current step is marked skipped.
func (e *Engine) Cancel(ctx context.Context, inst *models.WorkflowInstance, actorID, comment string) (*Result, error) {
	if inst.Status != models.InstanceStatusPending {
		return nil, newTransitionError(inst, models.CommandCancel, "workflow is %s", inst.Status)
	}

	if actorID == "" {
		return nil, &ValidationError{Field: "actor_id", Reason: "is required"}
	}

	if actorID != inst.RequesterID {
		isAdmin, err := e.authorizer.IsAdministrator(ctx, actorID)
		if err != nil {
			return nil, fmt.Errorf("failed to authorize cancellation: %w", err)
		}

		if !isAdmin {
			return nil, newTransitionError(inst, models.CommandCancel, "actor %s is neither the requester nor an administrator", actorID)
		}
	}

	now := e.clock.Now()
	comment = strings.TrimSpace(comment)
	result := &Result{Instance: inst.Clone()}

	var stepNumber *int

	if current := result.Instance.CurrentStepInstance(); current != nil {
		decide(current, models.StepStatusSkipped, actorID, comment, now)
		stepNumber = &current.Number
	}

	complete(result.Instance, models.InstanceStatusCancelled, now)

	result.Audit = append(result.Audit, e.audit(result.Instance, stepNumber, actorID, models.AuditActionCancelled, comment, now))

	event := events.New(events.CancelledEvent, result.Instance, now)
	event.StepNumber = result.Instance.CurrentStep
	event.ActorID = actorID
	result.Events = append(result.Events, event)

	return result, nil
}

// decidableStep returns the current step if actorID may approve or reject it.
func (e *Engine) decidableStep(ctx context.Context, inst *models.WorkflowInstance, action models.CommandAction, stepID, actorID string) (*models.StepInstance, error) {
	if actorID == "" {
		return nil, &ValidationError{Field: "actor_id", Reason: "is required"}
	}

	if inst.Status != models.InstanceStatusPending {
		return nil, newTransitionError(inst, action, "workflow is %s", inst.Status)
	}

	current := inst.CurrentStepInstance()
	if current == nil {
		return nil, newTransitionError(inst, action, "no step is awaiting a decision")
	}

	if current.ID != stepID {
		return nil, newTransitionError(inst, action, "step %s is not the current step", stepID)
	}

	allowed, err := e.authorizer.CanActOnStep(ctx, actorID, inst, current)
	if err != nil {
		return nil, fmt.Errorf("failed to authorize %s on step %d: %w", actorID, current.Number, err)
	}

	if !allowed {
		return nil, newTransitionError(inst, action, "actor %s may not decide step %d", actorID, current.Number)
	}

	return current, nil
}

// advance walks the chain from step `from`, skipping steps whose condition is
// false and that auto-approve, until a step needs a human or the chain ends.
func (e *Engine) advance(ctx context.Context, result *Result, tpl *models.WorkflowTemplate, from int, now time.Time) error {
	inst := result.Instance

	for n := from; n <= tpl.TotalSteps(); n++ {
		def, _ := tpl.Step(n)
		step := inst.StepByNumber(n)

		required, err := e.conditions.Evaluate(def.Condition, inst.Payload)
		if err != nil {
			return &ValidationError{
				Field:  "payload",
				Reason: fmt.Sprintf("step %d condition %q cannot be evaluated", n, def.Condition),
				Err:    err,
			}
		}

		if !required && def.AutoApprove {
			decide(step, models.StepStatusSkipped, models.SystemActor, "", now)
			inst.CurrentStep = n
			inst.UpdatedAt = now

			result.Audit = append(result.Audit, e.audit(inst, &step.Number, models.SystemActor, models.AuditActionSkipped, "condition not met", now))

			continue
		}

		approver, err := e.resolver.Resolve(ctx, def, inst.Requester)
		if err != nil {
			return err
		}

		step.Approver = &approver
		step.Status = models.StepStatusPending
		inst.CurrentStep = n
		inst.UpdatedAt = now

		result.Audit = append(result.Audit, e.audit(inst, &step.Number, models.SystemActor, models.AuditActionStepAdvanced, "", now))

		event := events.New(events.StepAdvancedEvent, inst, now)
		event.StepNumber = n
		event.ApproverID = approver.ID
		dueDate := step.DueDate
		event.DueDate = &dueDate
		result.Events = append(result.Events, event)

		return nil
	}

	complete(inst, models.InstanceStatusApproved, now)

	result.Audit = append(result.Audit, e.audit(inst, nil, models.SystemActor, models.AuditActionCompleted, "", now))

	event := events.New(events.ApprovedEvent, inst, now)
	event.StepNumber = inst.CurrentStep
	result.Events = append(result.Events, event)

	return nil
}

func (e *Engine) audit(inst *models.WorkflowInstance, stepNumber *int, actorID string, action models.AuditAction, comment string, now time.Time) models.AuditEntry {
	var number *int

	if stepNumber != nil {
		n := *stepNumber
		number = &n
	}

	return models.AuditEntry{
		ID:         e.newID(),
		InstanceID: inst.ID,
		StepNumber: number,
		ActorID:    actorID,
		Action:     action,
		Comment:    comment,
		Timestamp:  now,
	}
}

func decide(step *models.StepInstance, status models.StepStatus, actorID, comment string, now time.Time) {
	decidedAt := now
	step.Status = status
	step.DecidedAt = &decidedAt
	step.DecidedBy = actorID
	step.Comment = comment
}

func complete(inst *models.WorkflowInstance, status models.InstanceStatus, now time.Time) {
	completedAt := now
	inst.Status = status
	inst.CompletedAt = &completedAt
	inst.UpdatedAt = now
}

func approverID(step *models.StepInstance) string {
	if step.Approver == nil {
		return ""
	}

	return step.Approver.ID
}

func checkTemplate(inst *models.WorkflowInstance, tpl *models.WorkflowTemplate) error {
	if tpl == nil || tpl.ID != inst.TemplateID || tpl.Version != inst.TemplateVersion || tpl.TotalSteps() != inst.TotalSteps() {
		return fmt.Errorf("%w: workflow %s", ErrTemplateMismatch, inst.ID)
	}

	return nil
}
