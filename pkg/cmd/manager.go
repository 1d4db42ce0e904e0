package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/licensehub/pkg/condition"
	"github.com/dukex/licensehub/pkg/directory"
	"github.com/dukex/licensehub/pkg/engine"
	"github.com/dukex/licensehub/pkg/eventbus"
	"github.com/dukex/licensehub/pkg/otelhelper"
	"github.com/dukex/licensehub/pkg/persistence"
	"github.com/dukex/licensehub/pkg/registry"
	"github.com/dukex/licensehub/pkg/workflow"
)

// Config selects the backends a binary wires the workflow manager to.
type Config struct {
	ServiceName   string
	DatabaseURL   string
	EventBus      string
	DirectoryURL  string
	DirectorySeed string
	TemplatesPath string
	MaxAttempts   int
	OTelEnabled   bool
}

// Runtime holds a wired manager and everything it must release on shutdown.
type Runtime struct {
	Manager     *workflow.Manager
	Registry    *registry.Registry
	Persistence persistence.Persistence
	EventBus    eventbus.EventBus

	logger  *slog.Logger
	closers []func(ctx context.Context) error
}

// NewRuntime opens every backend named in cfg. On error, whatever was
// already opened is closed.
func NewRuntime(ctx context.Context, logger *slog.Logger, cfg Config) (*Runtime, error) {
	rt := &Runtime{logger: logger}

	if err := rt.open(ctx, cfg); err != nil {
		_ = rt.Close(ctx)

		return nil, err
	}

	return rt, nil
}

func (rt *Runtime) open(ctx context.Context, cfg Config) error {
	conditions := condition.NewCache()

	reg, err := NewRegistry(rt.logger, conditions, cfg.TemplatesPath)
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	rt.Registry = reg

	dir, err := NewDirectory(ctx, rt.logger, cfg.DirectoryURL, cfg.DirectorySeed)
	if err != nil {
		return fmt.Errorf("failed to open directory: %w", err)
	}

	rt.closers = append(rt.closers, func(context.Context) error { return dir.Close() })

	store, err := NewPersistence(ctx, rt.logger, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open persistence: %w", err)
	}

	rt.Persistence = store
	rt.closers = append(rt.closers, store.Close)

	bus, err := NewEventBus(cfg.EventBus, cfg.ServiceName, rt.logger)
	if err != nil {
		return err
	}

	rt.EventBus = bus
	rt.closers = append(rt.closers, func(context.Context) error { return bus.Close() })

	opts := []workflow.Option{workflow.WithMaxAttempts(cfg.MaxAttempts)}

	if cfg.OTelEnabled {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, cfg.ServiceName)
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		rt.closers = append(rt.closers, shutdown)
		opts = append(opts, workflow.WithTracer(tracer))
	}

	resolver := directory.NewResolver(dir)
	eng := engine.New(resolver, conditions,
		engine.WithAuthorizer(directory.NewRoleAuthorizer(dir, directory.DefaultDelegations)),
	)

	rt.Manager = workflow.NewManager(workflow.Dependencies{
		Engine:     eng,
		Templates:  reg,
		Requesters: resolver,
		Instances:  store.Instances(),
		Audit:      store.Audit(),
		Publisher:  bus,
		Logger:     rt.logger.With("module", "workflow"),
	}, opts...)

	return nil
}

// Close releases backends in reverse order of opening.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error

	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			rt.logger.ErrorContext(ctx, "Failed to release backend", "error", err)
			errs = append(errs, err)
		}
	}

	rt.closers = nil

	return errors.Join(errs...)
}
