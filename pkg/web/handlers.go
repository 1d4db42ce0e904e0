// Package web provides HTTP handlers and REST API endpoints for approval workflows.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/licensehub/pkg/models"
	"github.com/dukex/licensehub/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// WorkflowService is the workflow manager as seen by the HTTP layer.
type WorkflowService interface {
	Create(ctx context.Context, req workflow.CreateRequest) (string, error)
	Execute(ctx context.Context, id string, cmd models.Command) (*models.WorkflowInstance, error)
	Get(ctx context.Context, id string) (*models.WorkflowInstance, []models.AuditEntry, error)
	Query(ctx context.Context, filter workflow.QueryFilter) ([]*models.WorkflowInstance, error)
	Stats(ctx context.Context) (*workflow.Stats, error)
}

// TemplateCatalog lists the registered templates.
type TemplateCatalog interface {
	Templates() []*models.WorkflowTemplate
	HealthCheck() error
}

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type APIHandlers struct {
	workflows WorkflowService
	templates TemplateCatalog
	store     HealthChecker
	validator *validator.Validate
	logger    *slog.Logger
}

func NewAPIHandlers(
	workflows WorkflowService,
	templates TemplateCatalog,
	store HealthChecker,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		workflows: workflows,
		templates: templates,
		store:     store,
		validator: validator,
		logger:    logger.With("module", "web"),
	}
}

// Register mounts every route on app. Static paths come before /:id.
func (h *APIHandlers) Register(app *fiber.App) {
	w := app.Group("/workflows")
	w.Post("/", h.CreateWorkflow)
	w.Get("/", h.ListWorkflows)
	w.Get("/stats", h.GetStats)
	w.Get("/:id", h.GetWorkflow)
	w.Post("/:id/approve", h.ApproveStep)
	w.Post("/:id/reject", h.RejectStep)
	w.Post("/:id/cancel", h.CancelWorkflow)

	app.Get("/templates", h.ListTemplates)
	app.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck := "ok"
	if err := h.templates.HealthCheck(); err != nil {
		registryCheck = err.Error()
	}

	storeCheck := "ok"
	if err := h.store.HealthCheck(c.Context()); err != nil {
		storeCheck = err.Error()
	}

	status := "unhealthy"
	message := "LicenseHub API is unhealthy"
	httpStatus := http.StatusServiceUnavailable

	if registryCheck == "ok" && storeCheck == "ok" {
		status = "healthy"
		message = "LicenseHub API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":    registryCheck,
			"persistence": storeCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	id, err := h.workflows.Create(c.Context(), req.CreateRequest())
	if err != nil {
		if id == "" || !workflow.IsAuditWriteFailed(err) {
			return handleServiceError(c, err)
		}

		h.logger.Error("workflow created without complete audit trail", "instance_id", id, "error", err)
	}

	return c.Status(fiber.StatusCreated).JSON(CreateWorkflowResponse{InstanceID: id})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	inst, audit, err := h.workflows.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if audit == nil {
		audit = []models.AuditEntry{}
	}

	return c.JSON(WorkflowResponse{Workflow: inst, Audit: audit})
}

func (h *APIHandlers) ApproveStep(c fiber.Ctx) error {
	return h.decide(c, models.CommandApprove)
}

func (h *APIHandlers) RejectStep(c fiber.Ctx) error {
	return h.decide(c, models.CommandReject)
}

func (h *APIHandlers) decide(c fiber.Ctx, action models.CommandAction) error {
	var req DecisionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	return h.execute(c, models.Command{
		Action:  action,
		StepID:  req.StepID,
		ActorID: req.ActorID,
		Comment: req.Comment,
	})
}

func (h *APIHandlers) CancelWorkflow(c fiber.Ctx) error {
	var req CancelRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	return h.execute(c, models.Command{
		Action:  models.CommandCancel,
		ActorID: req.ActorID,
		Comment: req.Comment,
	})
}

func (h *APIHandlers) execute(c fiber.Ctx, cmd models.Command) error {
	id := c.Params("id")

	inst, err := h.workflows.Execute(c.Context(), id, cmd)
	if err != nil {
		if inst == nil || !workflow.IsAuditWriteFailed(err) {
			return handleServiceError(c, err)
		}

		h.logger.Error("command committed without complete audit trail",
			"instance_id", id, "action", cmd.Action, "error", err)
	}

	return c.JSON(inst)
}

func (h *APIHandlers) ListWorkflows(c fiber.Ctx) error {
	filter, err := parseQueryFilter(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	instances, err := h.workflows.Query(c.Context(), filter)
	if err != nil {
		return handleServiceError(c, err)
	}

	if instances == nil {
		instances = []*models.WorkflowInstance{}
	}

	limit := filter.Limit
	if limit == 0 {
		limit = workflow.DefaultQueryLimit
	}

	return c.JSON(ListWorkflowsResponse{
		Workflows: instances,
		Count:     len(instances),
		Limit:     limit,
		Offset:    filter.Offset,
	})
}

// parseQueryFilter reads the list filters from the query string.
func parseQueryFilter(c fiber.Ctx) (workflow.QueryFilter, error) {
	filter := workflow.QueryFilter{
		Status:      models.InstanceStatus(c.Query("status")),
		Type:        models.RequestType(c.Query("request_type")),
		Priority:    models.Priority(c.Query("priority")),
		ApproverID:  c.Query("approver_id"),
		RequesterID: c.Query("requester_id"),
		Search:      c.Query("search"),
	}

	if overdueStr := c.Query("overdue"); overdueStr != "" {
		overdue, err := strconv.ParseBool(strings.TrimSpace(overdueStr))
		if err != nil {
			return filter, err
		}

		filter.Overdue = &overdue
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return filter, err
		}

		filter.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return filter, err
		}

		filter.Offset = offset
	}

	return filter, nil
}

func (h *APIHandlers) GetStats(c fiber.Ctx) error {
	stats, err := h.workflows.Stats(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(stats)
}

func (h *APIHandlers) ListTemplates(c fiber.Ctx) error {
	templates := h.templates.Templates()
	if templates == nil {
		templates = []*models.WorkflowTemplate{}
	}

	return c.JSON(templates)
}
