// Package template renders instance titles from text/template strings.
package template

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/licensehub/pkg/models"
)

const noValue = "<no value>"

var funcs = template.FuncMap{
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"trim":  strings.TrimSpace,
	"date": func(t time.Time) string {
		return t.Format("2006-01-02")
	},
	"default": func(fallback, value any) any {
		if value == nil || value == "" {
			return fallback
		}

		return value
	},
}

// Data is the rendering context of a new request.
func Data(requestType models.RequestType, priority models.Priority, requester models.RequesterContext, payload map[string]any, createdAt time.Time) map[string]any {
	if payload == nil {
		payload = map[string]any{}
	}

	return map[string]any{
		"request_type": string(requestType),
		"priority":     string(priority),
		"payload":      payload,
		"requester": map[string]any{
			"user_id":    requester.UserID,
			"name":       requester.Name,
			"department": requester.Department,
			"company":    requester.Company,
		},
		"created_at": createdAt,
	}
}

// Parse checks that templateStr is a valid template.
func Parse(templateStr string) error {
	_, err := parse(templateStr)

	return err
}

// Render executes templateStr against data. Missing map keys render empty.
func Render(templateStr string, data any) (string, error) {
	if templateStr == "" {
		return "", nil
	}

	tmpl, err := parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return strings.TrimSpace(strings.ReplaceAll(buf.String(), noValue, "")), nil
}

func parse(templateStr string) (*template.Template, error) {
	tmpl, err := template.New("title").Funcs(funcs).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	return tmpl, nil
}
