// Package web provides HTTP request and response types for the workflow API.
package web

import (
	"github.com/dukex/licensehub/pkg/models"
	"github.com/dukex/licensehub/pkg/workflow"
)

// CreateWorkflowRequest represents the request body for submitting a request.
type CreateWorkflowRequest struct {
	RequestType string         `json:"request_type" validate:"required"`
	RequesterID string         `json:"requester_id" validate:"required"`
	Payload     map[string]any `json:"payload"`
	Priority    string         `json:"priority"     validate:"omitempty,oneof=low medium high urgent"`
}

// CreateWorkflowResponse carries the ID of the created instance.
type CreateWorkflowResponse struct {
	InstanceID string `json:"instance_id"`
}

// DecisionRequest represents the request body for approving or rejecting a step.
// Reject additionally requires a non-blank comment.
type DecisionRequest struct {
	StepID  string `json:"step_id"  validate:"required"`
	ActorID string `json:"actor_id" validate:"required"`
	Comment string `json:"comment"`
}

// CancelRequest represents the request body for cancelling a workflow.
type CancelRequest struct {
	ActorID string `json:"actor_id" validate:"required"`
	Comment string `json:"comment"`
}

// WorkflowResponse is an instance with its audit trail.
type WorkflowResponse struct {
	Workflow *models.WorkflowInstance `json:"workflow"`
	Audit    []models.AuditEntry      `json:"audit"`
}

// ListWorkflowsResponse is a page of instances.
type ListWorkflowsResponse struct {
	Workflows []*models.WorkflowInstance `json:"workflows"`
	Count     int                        `json:"count"`
	Limit     int                        `json:"limit"`
	Offset    int                        `json:"offset"`
}

// CreateRequest converts the body into the manager's request.
func (r CreateWorkflowRequest) CreateRequest() workflow.CreateRequest {
	return workflow.CreateRequest{
		Type:        models.RequestType(r.RequestType),
		RequesterID: r.RequesterID,
		Payload:     r.Payload,
		Priority:    models.Priority(r.Priority),
	}
}
