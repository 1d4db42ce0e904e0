package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/licensehub/pkg/engine"
	"github.com/dukex/licensehub/pkg/events"
	"github.com/dukex/licensehub/pkg/models"
	"github.com/dukex/licensehub/pkg/persistence"
)

const (
	DefaultQueryLimit = 50
	MaxQueryLimit     = 500
)

// QueryFilter selects workflow instances. Zero-valued fields match everything.
type QueryFilter struct {
	Status      models.InstanceStatus
	Type        models.RequestType
	Priority    models.Priority
	ApproverID  string
	RequesterID string
	// Search matches the title or requester name, ignoring case.
	Search string
	// Overdue keeps instances whose pending step is past its due date (true)
	// or is not (false).
	Overdue *bool
	Limit   int
	Offset  int
}

func (f QueryFilter) validate() error {
	if f.Status != "" && !f.Status.IsValid() {
		return &engine.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", f.Status)}
	}

	if f.Type != "" && !f.Type.IsValid() {
		return &engine.ValidationError{Field: "request_type", Reason: fmt.Sprintf("unknown request type %q", f.Type)}
	}

	if f.Priority != "" && !f.Priority.IsValid() {
		return &engine.ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", f.Priority)}
	}

	if f.Limit < 0 || f.Limit > MaxQueryLimit {
		return &engine.ValidationError{Field: "limit", Reason: fmt.Sprintf("must be between 0 and %d", MaxQueryLimit)}
	}

	if f.Offset < 0 {
		return &engine.ValidationError{Field: "offset", Reason: "must not be negative"}
	}

	return nil
}

// Query lists matching instances, newest first. Overdue is evaluated at the
// manager's current time.
func (m *Manager) Query(ctx context.Context, filter QueryFilter) ([]*models.WorkflowInstance, error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}

	limit := filter.Limit
	if limit == 0 {
		limit = DefaultQueryLimit
	}

	instances, err := m.instances.List(ctx, persistence.InstanceFilter{
		Status:      filter.Status,
		Type:        filter.Type,
		Priority:    filter.Priority,
		RequesterID: filter.RequesterID,
		ApproverID:  filter.ApproverID,
		Search:      strings.TrimSpace(filter.Search),
		Overdue:     filter.Overdue,
		Now:         m.clock.Now(),
		Limit:       limit,
		Offset:      filter.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return instances, nil
}

// Stats summarizes every instance for the dashboard.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Approved  int `json:"approved"`
	Rejected  int `json:"rejected"`
	Cancelled int `json:"cancelled"`
	Overdue   int `json:"overdue"`
	// AvgProcessingHours is the mean time from creation to completion of
	// approved and rejected instances.
	AvgProcessingHours float64                    `json:"avg_processing_hours"`
	ByType             map[models.RequestType]int `json:"by_type"`
}

func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	instances, err := m.instances.List(ctx, persistence.InstanceFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	now := m.clock.Now()
	stats := &Stats{Total: len(instances), ByType: make(map[models.RequestType]int)}

	var (
		decided    int
		totalHours float64
	)

	for _, inst := range instances {
		stats.ByType[inst.Type]++

		switch inst.Status {
		case models.InstanceStatusPending:
			stats.Pending++

			if inst.IsOverdue(now) {
				stats.Overdue++
			}
		case models.InstanceStatusApproved:
			stats.Approved++
		case models.InstanceStatusRejected:
			stats.Rejected++
		case models.InstanceStatusCancelled:
			stats.Cancelled++
		}

		if inst.CompletedAt != nil && (inst.Status == models.InstanceStatusApproved || inst.Status == models.InstanceStatusRejected) {
			decided++
			totalHours += inst.CompletedAt.Sub(inst.CreatedAt).Hours()
		}
	}

	if decided > 0 {
		stats.AvgProcessingHours = totalHours / float64(decided)
	}

	return stats, nil
}

// ScanOverdue publishes a step_overdue event for every pending instance whose
// current step is past due and has not been reported yet, and returns how
// many events went out. The step is marked before publishing so later scans
// skip it; a step that loses the race with a concurrent command is left for
// the next scan.
func (m *Manager) ScanOverdue(ctx context.Context) (int, error) {
	overdue := true
	now := m.clock.Now()

	instances, err := m.instances.List(ctx, persistence.InstanceFilter{Overdue: &overdue, Now: now})
	if err != nil {
		return 0, fmt.Errorf("failed to list overdue workflows: %w", err)
	}

	published := 0

	for _, listed := range instances {
		step := listed.CurrentStepInstance()
		if step == nil || step.OverdueNotifiedAt != nil {
			continue
		}

		inst, err := m.markOverdueNotified(ctx, listed.ID, step.Number, now)
		if err != nil {
			if persistence.IsVersionConflict(err) || persistence.IsInstanceNotFound(err) {
				m.logger.DebugContext(ctx, "Overdue step changed during scan", "instance_id", listed.ID, "error", err)

				continue
			}

			return published, err
		}

		if inst == nil {
			continue
		}

		step = inst.CurrentStepInstance()

		event := events.New(events.StepOverdueEvent, inst, now)
		event.StepNumber = step.Number
		event.ApproverID = inst.CurrentApproverID()
		dueDate := step.DueDate
		event.DueDate = &dueDate

		m.publish(ctx, event)

		published++
	}

	if published > 0 {
		m.logger.InfoContext(ctx, "Overdue workflows reported", "count", published)
	}

	return published, nil
}

// markOverdueNotified stamps the pending step stepNumber of instance id. It
// returns nil when that step no longer needs a report.
func (m *Manager) markOverdueNotified(ctx context.Context, id string, stepNumber int, now time.Time) (*models.WorkflowInstance, error) {
	inst, version, err := m.instances.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	step := inst.CurrentStepInstance()
	if !inst.IsOverdue(now) || step == nil || step.Number != stepNumber || step.OverdueNotifiedAt != nil {
		return nil, nil
	}

	next := inst.Clone()
	notifiedAt := now
	next.CurrentStepInstance().OverdueNotifiedAt = &notifiedAt

	if err := m.instances.CompareAndSwap(ctx, id, version, next); err != nil {
		return nil, err
	}

	return next, nil
}
