// Package events defines the notifications emitted when a workflow instance
// changes state.
package events

import (
	"time"

	"github.com/dukex/licensehub/pkg/models"
)

type EventType string

// Topic is the broker topic every transition event is published to.
const Topic = "licensehub.workflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	StepAdvancedEvent EventType = "step_advanced"
	ApprovedEvent     EventType = "approved"
	RejectedEvent     EventType = "rejected"
	CancelledEvent    EventType = "cancelled"
	StepOverdueEvent  EventType = "step_overdue"
)

// Types lists every event type in the order a consumer is likely to see them.
var Types = []EventType{StepAdvancedEvent, ApprovedEvent, RejectedEvent, CancelledEvent, StepOverdueEvent}

// Event is the payload published for every transition. StepNumber and
// ApproverID describe the step that became current (step_advanced,
// step_overdue) or the step that decided the outcome.
type Event struct {
	ID          string             `json:"id"`
	Type        EventType          `json:"event"`
	InstanceID  string             `json:"instance_id"`
	RequestType models.RequestType `json:"request_type"`
	StepNumber  int                `json:"step_number,omitempty"`
	ApproverID  string             `json:"approver_id,omitempty"`
	ActorID     string             `json:"actor_id,omitempty"`
	DueDate     *time.Time         `json:"due_date,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}

func (e Event) GetType() EventType {
	return e.Type
}

// New builds an event for inst at ts. The caller fills step details.
func New(eventType EventType, inst *models.WorkflowInstance, ts time.Time) Event {
	return Event{
		Type:        eventType,
		InstanceID:  inst.ID,
		RequestType: inst.Type,
		Timestamp:   ts,
	}
}
