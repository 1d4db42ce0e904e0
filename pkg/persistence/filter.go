package persistence

import (
	"slices"
	"strings"
	"time"

	"github.com/dukex/licensehub/pkg/models"
)

// InstanceFilter selects instances. Zero-valued fields match everything.
type InstanceFilter struct {
	Status      models.InstanceStatus
	Type        models.RequestType
	Priority    models.Priority
	RequesterID string
	// ApproverID matches instances whose pending step is assigned to this
	// user, directly or through a group.
	ApproverID string
	// Search is a case-insensitive substring of the title or requester name.
	Search string
	// Overdue, when set, keeps only instances whose overdue state at Now equals it.
	Overdue *bool
	Now     time.Time
	Limit   int
	Offset  int
}

// Matches reports whether inst satisfies every field of the filter except
// Limit and Offset.
func (f InstanceFilter) Matches(inst *models.WorkflowInstance) bool {
	if f.Status != "" && inst.Status != f.Status {
		return false
	}

	if f.Type != "" && inst.Type != f.Type {
		return false
	}

	if f.Priority != "" && inst.Priority != f.Priority {
		return false
	}

	if f.RequesterID != "" && inst.RequesterID != f.RequesterID {
		return false
	}

	if f.ApproverID != "" {
		step := inst.CurrentStepInstance()
		if step == nil || step.Approver == nil || !step.Approver.Includes(f.ApproverID) {
			return false
		}
	}

	if f.Search != "" && !matchesSearch(inst, f.Search) {
		return false
	}

	if f.Overdue != nil && inst.IsOverdue(f.Now) != *f.Overdue {
		return false
	}

	return true
}

func matchesSearch(inst *models.WorkflowInstance, term string) bool {
	term = strings.ToLower(term)

	return strings.Contains(strings.ToLower(inst.Title), term) ||
		strings.Contains(strings.ToLower(inst.Requester.Name), term)
}

// Apply filters, orders newest first and paginates instances.
func (f InstanceFilter) Apply(instances []*models.WorkflowInstance) []*models.WorkflowInstance {
	matched := make([]*models.WorkflowInstance, 0, len(instances))

	for _, inst := range instances {
		if f.Matches(inst) {
			matched = append(matched, inst)
		}
	}

	slices.SortStableFunc(matched, func(a, b *models.WorkflowInstance) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}

		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		default:
			return 0
		}
	})

	return Paginate(matched, f.Offset, f.Limit)
}

// Paginate returns the window [offset, offset+limit) of items. A limit <= 0
// means no limit.
func Paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}

	if offset >= len(items) {
		return []T{}
	}

	items = items[offset:]

	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items
}
