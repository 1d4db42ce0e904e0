package models

import "time"

type AuditAction string

const (
	AuditActionCreated      AuditAction = "created"
	AuditActionStepAdvanced AuditAction = "step_advanced"
	AuditActionApproved     AuditAction = "approved"
	AuditActionRejected     AuditAction = "rejected"
	AuditActionSkipped      AuditAction = "skipped"
	AuditActionCancelled    AuditAction = "cancelled"
	AuditActionCompleted    AuditAction = "completed"
)

// SystemActor is the actor recorded for transitions nobody performed by hand.
const SystemActor = "system"

// AuditEntry is an append-only record of a single transition.
type AuditEntry struct {
	ID         string      `json:"id"`
	InstanceID string      `json:"instance_id"`
	StepNumber *int        `json:"step_number,omitempty"` // nil for instance level events
	ActorID    string      `json:"actor_id"`
	Action     AuditAction `json:"action"`
	Comment    string      `json:"comment,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}
