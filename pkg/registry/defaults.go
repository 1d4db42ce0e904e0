package registry

import (
	"fmt"

	"github.com/dukex/licensehub/pkg/directory"
	"github.com/dukex/licensehub/pkg/models"
)

func objectSchema(required []string, properties map[string]any) map[string]any {
	requiredAny := make([]any, len(required))
	for i, field := range required {
		requiredAny[i] = field
	}

	return map[string]any{
		"type":       "object",
		"required":   requiredAny,
		"properties": properties,
	}
}

var (
	stringProperty = map[string]any{"type": "string", "minLength": 1}
	numberProperty = map[string]any{"type": "number", "minimum": 0}
)

// DefaultTemplates returns the built-in approval chains, one per request type
// plus the urgent software declaration tier.
func DefaultTemplates() []*models.WorkflowTemplate {
	return []*models.WorkflowTemplate{
		{
			ID:            "license-request-default",
			Name:          "License request",
			Type:          models.RequestTypeLicenseRequest,
			Version:       1,
			Description:   "Manager and IT sign-off; finance only above 5000.",
			TitleTemplate: "Licence: {{ .payload.software_name }}",
			PayloadSchema: objectSchema([]string{"software_name", "estimated_cost"}, map[string]any{
				"software_name":  stringProperty,
				"estimated_cost": numberProperty,
				"seats":          map[string]any{"type": "integer", "minimum": 1},
			}),
			Steps: []models.StepDefinition{
				{Number: 1, Role: directory.RoleDepartmentManager},
				{Number: 2, Role: directory.RoleITManager},
				{Number: 3, Role: directory.RoleFinanceManager, Condition: "estimated_cost > 5000", AutoApprove: true},
			},
		},
		{
			ID:            "software-declaration-default",
			Name:          "Software declaration",
			Type:          models.RequestTypeSoftwareDeclaration,
			Version:       1,
			TitleTemplate: "Déclaration: {{ .payload.software_name }}",
			PayloadSchema: objectSchema([]string{"software_name"}, map[string]any{
				"software_name": stringProperty,
				"vendor":        map[string]any{"type": "string"},
			}),
			Steps: []models.StepDefinition{
				{Number: 1, Role: directory.RoleDepartmentManager},
				{Number: 2, Role: directory.RoleITManager},
			},
		},
		{
			ID:            "software-declaration-urgent",
			Name:          "Software declaration (urgent)",
			Type:          models.RequestTypeSoftwareDeclaration,
			Priority:      models.PriorityUrgent,
			Version:       1,
			Description:   "Urgent declarations also need the IT director.",
			TitleTemplate: "Déclaration: {{ .payload.software_name }}",
			PayloadSchema: objectSchema([]string{"software_name"}, map[string]any{
				"software_name": stringProperty,
				"vendor":        map[string]any{"type": "string"},
			}),
			Steps: []models.StepDefinition{
				{Number: 1, Role: directory.RoleDepartmentManager},
				{Number: 2, Role: directory.RoleITManager},
				{Number: 3, Role: directory.RoleITDirector},
			},
		},
		{
			ID:            "budget-approval-default",
			Name:          "Budget approval",
			Type:          models.RequestTypeBudgetApproval,
			Version:       1,
			TitleTemplate: "Budget: {{ .payload.amount }} ({{ .requester.department }})",
			PayloadSchema: objectSchema([]string{"amount"}, map[string]any{
				"amount":        numberProperty,
				"justification": map[string]any{"type": "string"},
			}),
			Steps: []models.StepDefinition{
				{Number: 1, Role: directory.RoleFinanceManager},
				{Number: 2, Role: directory.RoleITDirector},
				{Number: 3, Role: directory.RoleCEO},
			},
		},
		{
			ID:            "contract-renewal-default",
			Name:          "Contract renewal",
			Type:          models.RequestTypeContractRenewal,
			Version:       1,
			Description:   "Finance only reviews renewals above 10000 a year.",
			TitleTemplate: "Renouvellement: {{ .payload.vendor }}",
			PayloadSchema: objectSchema([]string{"vendor", "annual_cost"}, map[string]any{
				"vendor":      stringProperty,
				"annual_cost": numberProperty,
			}),
			Steps: []models.StepDefinition{
				{Number: 1, Role: directory.RoleITManager},
				{Number: 2, Role: directory.RoleFinanceManager, Condition: "annual_cost > 10000", AutoApprove: true},
			},
		},
		{
			ID:            "user-invitation-default",
			Name:          "User invitation",
			Type:          models.RequestTypeUserInvitation,
			Version:       1,
			TitleTemplate: "Invitation: {{ .payload.email }}",
			PayloadSchema: objectSchema([]string{"email"}, map[string]any{
				"email": map[string]any{"type": "string", "format": "email"},
			}),
			Steps: []models.StepDefinition{
				{Number: 1, Role: directory.RoleDepartmentManager},
			},
		},
	}
}

// RegisterDefaults registers DefaultTemplates.
func (r *Registry) RegisterDefaults() error {
	for _, tpl := range DefaultTemplates() {
		if err := r.Register(tpl); err != nil {
			return fmt.Errorf("failed to register default template %s: %w", tpl.ID, err)
		}
	}

	return nil
}
