// Package main provides the LicenseHub API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/licensehub/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger    *slog.Logger
	workflows web.WorkflowService
	templates web.TemplateCatalog
	store     web.HealthChecker
	validate  *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	workflows web.WorkflowService,
	templates web.TemplateCatalog,
	store web.HealthChecker,
) *API {
	return &API{
		logger:    logger,
		workflows: workflows,
		templates: templates,
		store:     store,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.workflows, a.templates, a.store, a.validate, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("LicenseHub API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	a.logger.Info("Starting LicenseHub API", "port", port)

	return app.Listen(":" + strconv.Itoa(port))
}
