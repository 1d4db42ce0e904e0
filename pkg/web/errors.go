package web

import (
	"github.com/dukex/licensehub/pkg/workflow"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	p := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(p)
}

func problem(c fiber.Ctx, status int, problemType, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

// handleServiceError maps workflow errors to RFC 7807 problems.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case workflow.IsValidation(err):
		return problem(c, fiber.StatusBadRequest, "validation_error", err.Error())

	case workflow.IsTemplateNotFound(err):
		return problem(c, fiber.StatusNotFound, "template_not_found", err.Error())

	case workflow.IsNotFound(err):
		return problem(c, fiber.StatusNotFound, "workflow_not_found", "workflow not found")

	case workflow.IsNoApproverAvailable(err):
		return problem(c, fiber.StatusUnprocessableEntity, "no_approver_available", err.Error())

	case workflow.IsInvalidTransition(err):
		return problem(c, fiber.StatusConflict, "invalid_transition", err.Error())

	case workflow.IsConcurrentModification(err):
		return problem(c, fiber.StatusConflict, "concurrent_modification", err.Error())

	default:
		p := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(p)
	}
}
