package template

import (
	"testing"
	"time"

	"github.com/dukex/licensehub/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	createdAt := time.Date(2025, 4, 1, 9, 30, 0, 0, time.UTC)
	data := Data(
		models.RequestTypeBudgetApproval,
		models.PriorityHigh,
		models.RequesterContext{UserID: "dave", Name: "Dave", Department: "design", Company: "acme"},
		map[string]any{"amount": 75000.0, "software_name": "Figma", "vendor": ""},
		createdAt,
	)

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{name: "empty template", template: "", expected: ""},
		{name: "plain text", template: "Budget request", expected: "Budget request"},
		{name: "payload field", template: "Déclaration: {{ .payload.software_name }}", expected: "Déclaration: Figma"},
		{name: "number and requester", template: "Budget: {{ .payload.amount }} ({{ .requester.department }})", expected: "Budget: 75000 (design)"},
		{name: "missing key renders empty", template: "Licence: {{ .payload.unknown }}", expected: "Licence:"},
		{name: "default helper", template: `{{ default "n/a" .payload.vendor }}`, expected: "n/a"},
		{name: "upper and request type", template: "{{ upper .priority }} {{ .request_type }}", expected: "HIGH budget_approval"},
		{name: "date helper", template: "{{ date .created_at }}", expected: "2025-04-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Render(tt.template, data)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestRender_Errors(t *testing.T) {
	_, err := Render("{{ .payload.name", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse template")

	_, err = Render("{{ .payload.name.first }}", map[string]any{"payload": map[string]any{"name": 12}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute template")
}

func TestParse(t *testing.T) {
	require.NoError(t, Parse("Invitation: {{ .payload.email }}"))
	assert.Error(t, Parse("{{ if }}"))
}

func TestData_NilPayload(t *testing.T) {
	data := Data(models.RequestTypeUserInvitation, models.PriorityLow, models.RequesterContext{}, nil, time.Time{})

	payload, ok := data["payload"].(map[string]any)
	require.True(t, ok)
	assert.Empty(t, payload)
}
