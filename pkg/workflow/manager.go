// Package workflow orchestrates approval workflows: it creates instances from
// templates and applies commands to them through the transition engine with
// optimistic concurrency against the instance store.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/dukex/licensehub/internal/clock"
	"github.com/dukex/licensehub/internal/idgen"
	"github.com/dukex/licensehub/pkg/directory"
	"github.com/dukex/licensehub/pkg/engine"
	"github.com/dukex/licensehub/pkg/eventbus"
	"github.com/dukex/licensehub/pkg/events"
	"github.com/dukex/licensehub/pkg/log"
	"github.com/dukex/licensehub/pkg/models"
	"github.com/dukex/licensehub/pkg/otelhelper"
	"github.com/dukex/licensehub/pkg/persistence"
	"github.com/dukex/licensehub/pkg/template"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxAttempts bounds the load, apply and compare-and-swap cycle of a command.
const DefaultMaxAttempts = 3

// Templates resolves and checks the templates instances are built from.
type Templates interface {
	Resolve(requestType models.RequestType, priority models.Priority) (*models.WorkflowTemplate, error)
	ByID(id string, version int) (*models.WorkflowTemplate, error)
	ValidatePayload(tpl *models.WorkflowTemplate, payload map[string]any) error
}

// Requesters looks up the organizational context of a requester.
type Requesters interface {
	RequesterContext(ctx context.Context, userID string) (models.RequesterContext, error)
}

// Dependencies are the collaborators a Manager orchestrates.
type Dependencies struct {
	Engine     *engine.Engine
	Templates  Templates
	Requesters Requesters
	Instances  persistence.InstanceStore
	Audit      persistence.AuditLog
	Publisher  eventbus.EventPublisher
	Logger     *slog.Logger
}

type Manager struct {
	engine      *engine.Engine
	templates   Templates
	requesters  Requesters
	instances   persistence.InstanceStore
	audit       persistence.AuditLog
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	clock       clock.Clock
	tracer      trace.Tracer
	validate    *validator.Validate
	newID       func() string
	maxAttempts int
}

type Option func(*Manager)

// WithClock sets the time source used for overdue computation and creation audits.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithMaxAttempts sets how many times a command is retried on version conflicts.
func WithMaxAttempts(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(m *Manager) {
		m.tracer = tracer
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) {
		m.newID = newID
	}
}

func NewManager(deps Dependencies, opts ...Option) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithModule("workflow")
	}

	publisher := deps.Publisher
	if publisher == nil {
		publisher = eventbus.NoopEventBus{}
	}

	m := &Manager{
		engine:      deps.Engine,
		templates:   deps.Templates,
		requesters:  deps.Requesters,
		instances:   deps.Instances,
		audit:       deps.Audit,
		publisher:   publisher,
		logger:      logger,
		clock:       clock.New(),
		tracer:      otelhelper.NoopTracer(),
		validate:    newValidator(),
		newID:       idgen.New,
		maxAttempts: DefaultMaxAttempts,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}

		return name
	})

	return v
}

// CreateRequest is a new business request to route through an approval chain.
type CreateRequest struct {
	Type        models.RequestType `json:"request_type" validate:"required"`
	RequesterID string             `json:"requester_id" validate:"required"`
	Payload     map[string]any     `json:"payload"`
	// Priority defaults to medium.
	Priority models.Priority `json:"priority"`
}

// Create builds an instance from the template matching the request, routes it
// to its first approver and persists it at version 0.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (string, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "workflow.create",
		attribute.String(otelhelper.RequestTypeKey, string(req.Type)),
		attribute.String(otelhelper.RequesterIDKey, req.RequesterID),
	)
	defer span.End()

	id, err := m.create(ctx, req)
	if err != nil {
		otelhelper.SetError(span, err)

		return id, err
	}

	span.SetAttributes(attribute.String(otelhelper.InstanceIDKey, id))

	return id, nil
}

func (m *Manager) create(ctx context.Context, req CreateRequest) (string, error) {
	if req.Priority == "" {
		req.Priority = models.PriorityMedium
	}

	if err := m.validateCreateRequest(req); err != nil {
		return "", err
	}

	requester, err := m.requesters.RequesterContext(ctx, req.RequesterID)
	if err != nil {
		if directory.IsUserNotFound(err) {
			return "", &engine.ValidationError{Field: "requester_id", Reason: "unknown requester", Err: err}
		}

		return "", fmt.Errorf("failed to look up requester %s: %w", req.RequesterID, err)
	}

	tpl, err := m.templates.Resolve(req.Type, req.Priority)
	if err != nil {
		return "", err
	}

	if err := m.templates.ValidatePayload(tpl, req.Payload); err != nil {
		return "", &engine.ValidationError{Field: "payload", Reason: "does not match the template schema", Err: err}
	}

	if err := m.engine.ValidatePayload(tpl, req.Payload); err != nil {
		return "", err
	}

	now := m.clock.Now()
	inst := m.engine.Instantiate(engine.InstanceSpec{
		Template:    tpl,
		RequesterID: req.RequesterID,
		Requester:   requester,
		Payload:     req.Payload,
		Priority:    req.Priority,
		Title:       m.title(ctx, tpl, req, requester),
	})

	result, err := m.engine.Activate(ctx, inst, tpl)
	if err != nil {
		return "", err
	}

	if err := m.instances.Create(ctx, result.Instance); err != nil {
		return "", fmt.Errorf("failed to store workflow: %w", err)
	}

	logger := m.logger.With("instance_id", result.Instance.ID, "template_id", tpl.ID, "request_type", tpl.Type)
	logger.InfoContext(ctx, "Workflow created",
		"requester_id", req.RequesterID,
		"priority", req.Priority,
		"status", result.Instance.Status,
		"current_step", result.Instance.CurrentStep,
	)

	created := models.AuditEntry{
		ID:         m.newID(),
		InstanceID: result.Instance.ID,
		ActorID:    req.RequesterID,
		Action:     models.AuditActionCreated,
		Timestamp:  now,
	}

	auditErr := m.record(ctx, result, created)

	return result.Instance.ID, auditErr
}

func (m *Manager) validateCreateRequest(req CreateRequest) error {
	if err := m.validate.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			field := validationErrors[0]

			return &engine.ValidationError{Field: field.Field(), Reason: "failed on " + field.Tag(), Err: err}
		}

		return &engine.ValidationError{Field: "request", Reason: "is invalid", Err: err}
	}

	if !req.Type.IsValid() {
		return &engine.ValidationError{Field: "request_type", Reason: fmt.Sprintf("unknown request type %q", req.Type)}
	}

	if !req.Priority.IsValid() {
		return &engine.ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", req.Priority)}
	}

	return nil
}

// title renders the template's title, falling back to the template name.
func (m *Manager) title(ctx context.Context, tpl *models.WorkflowTemplate, req CreateRequest, requester models.RequesterContext) string {
	title, err := template.Render(tpl.TitleTemplate, template.Data(req.Type, req.Priority, requester, req.Payload, m.clock.Now()))
	if err != nil {
		m.logger.WarnContext(ctx, "Failed to render workflow title", "template_id", tpl.ID, "error", err)

		return tpl.Name
	}

	if title == "" {
		return tpl.Name
	}

	return title
}

// Execute applies cmd to instance id. A version conflict reloads the instance
// and reruns the whole cycle, so a command that lost a race is re-validated
// against the winner's state.
func (m *Manager) Execute(ctx context.Context, id string, cmd models.Command) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "workflow.execute",
		attribute.String(otelhelper.InstanceIDKey, id),
		attribute.String(otelhelper.CommandKey, string(cmd.Action)),
		attribute.String(otelhelper.ActorIDKey, cmd.ActorID),
		attribute.String(otelhelper.StepIDKey, cmd.StepID),
	)
	defer span.End()

	inst, err := m.execute(ctx, span, id, cmd)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return inst, err
}

func (m *Manager) execute(ctx context.Context, span trace.Span, id string, cmd models.Command) (*models.WorkflowInstance, error) {
	if err := m.validate.Struct(cmd); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			return nil, &engine.ValidationError{Field: validationErrors[0].Field(), Reason: "failed on " + validationErrors[0].Tag(), Err: err}
		}

		return nil, &engine.ValidationError{Field: "command", Reason: "is invalid", Err: err}
	}

	logger := m.logger.With("instance_id", id, "action", cmd.Action, "actor_id", cmd.ActorID)

	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		span.SetAttributes(attribute.Int(otelhelper.AttemptKey, attempt))

		inst, version, err := m.instances.Load(ctx, id)
		if err != nil {
			return nil, err
		}

		tpl, err := m.templates.ByID(inst.TemplateID, inst.TemplateVersion)
		if err != nil {
			return nil, fmt.Errorf("failed to load template of workflow %s: %w", id, err)
		}

		result, err := m.engine.Apply(ctx, inst, tpl, cmd)
		if err != nil {
			return nil, err
		}

		err = m.instances.CompareAndSwap(ctx, id, version, result.Instance)
		if persistence.IsVersionConflict(err) {
			logger.DebugContext(ctx, "Version conflict, retrying", "attempt", attempt, "version", version)

			continue
		}

		if err != nil {
			return nil, fmt.Errorf("failed to store workflow %s: %w", id, err)
		}

		logger.InfoContext(ctx, "Workflow updated",
			"status", result.Instance.Status,
			"current_step", result.Instance.CurrentStep,
			"version", result.Instance.Version,
		)

		return result.Instance, m.record(ctx, result)
	}

	logger.WarnContext(ctx, "Giving up after version conflicts", "attempts", m.maxAttempts)

	return nil, fmt.Errorf("%w: workflow %s after %d attempts", ErrConcurrentModification, id, m.maxAttempts)
}

func (m *Manager) Approve(ctx context.Context, id, stepID, actorID, comment string) (*models.WorkflowInstance, error) {
	return m.Execute(ctx, id, models.Command{Action: models.CommandApprove, StepID: stepID, ActorID: actorID, Comment: comment})
}

func (m *Manager) Reject(ctx context.Context, id, stepID, actorID, comment string) (*models.WorkflowInstance, error) {
	return m.Execute(ctx, id, models.Command{Action: models.CommandReject, StepID: stepID, ActorID: actorID, Comment: comment})
}

func (m *Manager) Cancel(ctx context.Context, id, actorID, comment string) (*models.WorkflowInstance, error) {
	return m.Execute(ctx, id, models.Command{Action: models.CommandCancel, ActorID: actorID, Comment: comment})
}

// record appends the audit entries of a committed transition and publishes
// its events. The transition stands whatever happens here: audit failures
// are returned, publish failures only logged.
func (m *Manager) record(ctx context.Context, result *engine.Result, leading ...models.AuditEntry) error {
	entries := make([]models.AuditEntry, 0, len(leading)+len(result.Audit))
	entries = append(entries, leading...)
	entries = append(entries, result.Audit...)

	var auditErr error
	if err := m.audit.Append(ctx, entries...); err != nil {
		m.logger.ErrorContext(ctx, "Failed to append audit entries",
			"instance_id", result.Instance.ID,
			"entries", len(entries),
			"error", err,
		)

		auditErr = fmt.Errorf("%w: workflow %s: %w", ErrAuditWriteFailed, result.Instance.ID, err)
	}

	for _, event := range result.Events {
		m.publish(ctx, event)
	}

	return auditErr
}

func (m *Manager) publish(ctx context.Context, event events.Event) {
	if event.ID == "" {
		event.ID = m.newID()
	}

	if err := m.publisher.Publish(ctx, event.InstanceID, event); err != nil {
		m.logger.ErrorContext(ctx, "Failed to publish event",
			"instance_id", event.InstanceID,
			"event", event.Type,
			"error", err,
		)
	}
}

// Get returns an instance and its audit trail.
func (m *Manager) Get(ctx context.Context, id string) (*models.WorkflowInstance, []models.AuditEntry, error) {
	inst, _, err := m.instances.Load(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	entries, err := m.audit.ByInstance(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read audit of workflow %s: %w", id, err)
	}

	return inst, entries, nil
}
