package models

type CommandAction string

const (
	CommandApprove CommandAction = "approve"
	CommandReject  CommandAction = "reject"
	CommandCancel  CommandAction = "cancel"
)

// Command is a request to move a workflow instance. StepID is ignored for cancel.
type Command struct {
	Action  CommandAction `json:"action"            validate:"required,oneof=approve reject cancel"`
	StepID  string        `json:"step_id,omitempty"`
	ActorID string        `json:"actor_id"          validate:"required"`
	Comment string        `json:"comment,omitempty"`
}
