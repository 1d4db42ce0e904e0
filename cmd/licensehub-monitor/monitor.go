// Package main provides the LicenseHub overdue monitor, which periodically
// publishes step_overdue events for pending steps past their due date.
package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scanner publishes overdue notifications and reports how many it sent.
type Scanner interface {
	ScanOverdue(ctx context.Context) (int, error)
}

type Monitor struct {
	scanner  Scanner
	schedule string
	logger   *slog.Logger
}

func NewMonitor(scanner Scanner, schedule string, logger *slog.Logger) (*Monitor, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	return &Monitor{
		scanner:  scanner,
		schedule: schedule,
		logger:   logger,
	}, nil
}

// Run scans once, then on every tick of the schedule until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	entryID, err := c.AddFunc(m.schedule, func() { m.scan(ctx) })
	if err != nil {
		return fmt.Errorf("failed to schedule overdue scan: %w", err)
	}

	m.logger.InfoContext(ctx, "Starting overdue monitor", "schedule", m.schedule, "entry_id", entryID)

	m.scan(ctx)
	c.Start()

	<-ctx.Done()

	<-c.Stop().Done()

	m.logger.Info("Overdue monitor stopped")

	return nil
}

func (m *Monitor) scan(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	published, err := m.scanner.ScanOverdue(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "Overdue scan failed", "error", err)

		return
	}

	m.logger.InfoContext(ctx, "Overdue scan finished", "published", published)
}
