// Package models defines the domain model of the approval workflow engine.
package models

import "time"

// InstanceStatus is the lifecycle state of a workflow instance.
type InstanceStatus string

const (
	InstanceStatusPending   InstanceStatus = "pending"
	InstanceStatusApproved  InstanceStatus = "approved"
	InstanceStatusRejected  InstanceStatus = "rejected"
	InstanceStatusCancelled InstanceStatus = "cancelled"
)

func (s InstanceStatus) IsValid() bool {
	switch s {
	case InstanceStatusPending, InstanceStatusApproved, InstanceStatusRejected, InstanceStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further step may change.
func (s InstanceStatus) IsTerminal() bool {
	return s == InstanceStatusApproved || s == InstanceStatusRejected || s == InstanceStatusCancelled
}

// StepStatus is the state of a single step instance.
type StepStatus string

const (
	StepStatusWaiting  StepStatus = "waiting" // not reached yet
	StepStatusPending  StepStatus = "pending"
	StepStatusApproved StepStatus = "approved"
	StepStatusRejected StepStatus = "rejected"
	StepStatusSkipped  StepStatus = "skipped"
)

// StepInstance is the live state of one step of a workflow instance.
type StepInstance struct {
	ID        string            `json:"id"`
	Number    int               `json:"step_number"`
	Role      string            `json:"role"`
	Approver  *ApproverIdentity `json:"approver,omitempty"`
	Status    StepStatus        `json:"status"`
	DueDate   time.Time         `json:"due_date"`
	Comment   string            `json:"comment,omitempty"`
	DecidedAt *time.Time        `json:"decided_at,omitempty"`
	DecidedBy string            `json:"decided_by,omitempty"`

	// OverdueNotifiedAt is set once a step_overdue event went out for this step.
	OverdueNotifiedAt *time.Time `json:"overdue_notified_at,omitempty"`
}

// WorkflowInstance is a single request's execution of a template.
type WorkflowInstance struct {
	ID              string           `json:"id"`
	TemplateID      string           `json:"template_id"`
	TemplateVersion int              `json:"template_version"`
	Type            RequestType      `json:"request_type"`
	Title           string           `json:"title,omitempty"`
	RequesterID     string           `json:"requester_id"`
	Requester       RequesterContext `json:"requester"`
	Payload         map[string]any   `json:"payload,omitempty"`
	CurrentStep     int              `json:"current_step"`
	Status          InstanceStatus   `json:"status"`
	Priority        Priority         `json:"priority"`
	DueDate         time.Time        `json:"due_date"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
	Steps           []StepInstance   `json:"steps"`
	Version         int64            `json:"version"`
}

func (w *WorkflowInstance) TotalSteps() int {
	return len(w.Steps)
}

func (w *WorkflowInstance) IsTerminal() bool {
	return w.Status.IsTerminal()
}

// StepByNumber returns step n (1-based) or nil.
func (w *WorkflowInstance) StepByNumber(n int) *StepInstance {
	if n < 1 || n > len(w.Steps) {
		return nil
	}

	return &w.Steps[n-1]
}

// CurrentStepInstance returns the step awaiting a decision, or nil when the
// instance is terminal.
func (w *WorkflowInstance) CurrentStepInstance() *StepInstance {
	if w.Status != InstanceStatusPending {
		return nil
	}

	step := w.StepByNumber(w.CurrentStep)
	if step == nil || step.Status != StepStatusPending {
		return nil
	}

	return step
}

// CurrentApproverID is the approver of the pending step, empty when there is none.
func (w *WorkflowInstance) CurrentApproverID() string {
	step := w.CurrentStepInstance()
	if step == nil || step.Approver == nil {
		return ""
	}

	return step.Approver.ID
}

// IsOverdue reports whether the pending step's due date has passed at now.
func (w *WorkflowInstance) IsOverdue(now time.Time) bool {
	step := w.CurrentStepInstance()
	if step == nil {
		return false
	}

	return now.After(step.DueDate)
}

// Clone returns a deep copy of the instance.
func (w *WorkflowInstance) Clone() *WorkflowInstance {
	if w == nil {
		return nil
	}

	c := *w

	if w.Payload != nil {
		payload, _ := deepCopyValue(w.Payload).(map[string]any)
		c.Payload = payload
	}

	if w.CompletedAt != nil {
		completedAt := *w.CompletedAt
		c.CompletedAt = &completedAt
	}

	c.Steps = make([]StepInstance, len(w.Steps))
	for i, step := range w.Steps {
		c.Steps[i] = step.clone()
	}

	return &c
}

func (s StepInstance) clone() StepInstance {
	c := s

	if s.Approver != nil {
		approver := *s.Approver
		approver.Members = append([]string(nil), s.Approver.Members...)
		c.Approver = &approver
	}

	if s.DecidedAt != nil {
		decidedAt := *s.DecidedAt
		c.DecidedAt = &decidedAt
	}

	if s.OverdueNotifiedAt != nil {
		notifiedAt := *s.OverdueNotifiedAt
		c.OverdueNotifiedAt = &notifiedAt
	}

	return c
}

func deepCopyValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		c := make(map[string]any, len(typed))
		for k, val := range typed {
			c[k] = deepCopyValue(val)
		}

		return c
	case []any:
		c := make([]any, len(typed))
		for i, val := range typed {
			c[i] = deepCopyValue(val)
		}

		return c
	default:
		return v
	}
}
