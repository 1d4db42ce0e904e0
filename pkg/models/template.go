package models

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// StepDefinition is one position of a template's approval chain.
type StepDefinition struct {
	// Number is the 1-based position of the step in the chain.
	Number int `json:"step_number" yaml:"step_number" validate:"min=1"`

	// Role is the role tag the ApproverResolver maps to a concrete approver.
	Role string `json:"role_required" yaml:"role_required" validate:"required"`

	// Condition is an optional boolean expression over the request payload,
	// e.g. "estimated_cost > 10000".
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`

	// AutoApprove marks the step as satisfied without human action when
	// Condition evaluates to false.
	AutoApprove bool `json:"auto_approve,omitempty" yaml:"auto_approve,omitempty"`

	// DurationDays overrides the priority based allotment for this step.
	DurationDays int `json:"duration_days,omitempty" yaml:"duration_days,omitempty" validate:"min=0"`
}

// WorkflowTemplate is an immutable, versioned definition of an approval chain.
type WorkflowTemplate struct {
	ID          string      `json:"id"                    yaml:"id"          validate:"required"`
	Name        string      `json:"name"                  yaml:"name"        validate:"required"`
	Type        RequestType `json:"type"                  yaml:"type"        validate:"required"`
	Priority    Priority    `json:"priority,omitempty"    yaml:"priority"`
	Version     int         `json:"version"               yaml:"version"     validate:"min=1"`
	Description string      `json:"description,omitempty" yaml:"description"`

	// TitleTemplate is rendered against the request to name new instances.
	TitleTemplate string `json:"title_template,omitempty" yaml:"title_template"`

	// PayloadSchema is an optional JSON schema the request payload must satisfy.
	PayloadSchema map[string]any `json:"payload_schema,omitempty" yaml:"payload_schema"`

	Steps []StepDefinition `json:"steps" yaml:"steps" validate:"required,min=1,dive"`
}

// Validate checks the template invariants: known type and tier, at least one
// step and step numbers contiguous from 1.
func (t *WorkflowTemplate) Validate() error {
	if err := validate.Struct(t); err != nil {
		return err
	}

	if !t.Type.IsValid() {
		return fmt.Errorf("unknown request type %q", t.Type)
	}

	if t.Priority != "" && !t.Priority.IsValid() {
		return fmt.Errorf("unknown priority tier %q", t.Priority)
	}

	if len(t.Steps) == 0 {
		return errors.New("template must have at least one step")
	}

	for i, step := range t.Steps {
		if step.Number != i+1 {
			return fmt.Errorf("step numbers must be contiguous from 1: position %d has number %d", i+1, step.Number)
		}
	}

	return nil
}

func (t *WorkflowTemplate) TotalSteps() int {
	return len(t.Steps)
}

// Step returns the definition of step n (1-based).
func (t *WorkflowTemplate) Step(n int) (StepDefinition, bool) {
	if n < 1 || n > len(t.Steps) {
		return StepDefinition{}, false
	}

	return t.Steps[n-1], true
}

// Clone returns a deep copy so callers can never mutate a registered template.
func (t *WorkflowTemplate) Clone() *WorkflowTemplate {
	if t == nil {
		return nil
	}

	c := *t
	c.Steps = append([]StepDefinition(nil), t.Steps...)

	if t.PayloadSchema != nil {
		schema, _ := deepCopyValue(t.PayloadSchema).(map[string]any)
		c.PayloadSchema = schema
	}

	return &c
}
