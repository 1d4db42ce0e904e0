package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/licensehub/pkg/cmd"
	"github.com/dukex/licensehub/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultSchedule = "*/15 * * * *"

func main() {
	command := &cli.Command{
		Name:                  "licensehub-monitor",
		Usage:                 "Publish notifications for overdue approval steps",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Persistence URL (file://, postgres://, redis:// or memory://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, memory, none)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "directory-url",
				Usage:    "Organizational directory: a redis:// URL or a YAML file",
				Required: true,
				Sources:  cli.EnvVars("DIRECTORY_URL"),
			},
			&cli.StringFlag{
				Name:    "templates-path",
				Usage:   "Directory of additional workflow template files",
				Sources: cli.EnvVars("TEMPLATES_PATH"),
			},
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "Cron expression for the overdue scan",
				Value:   defaultSchedule,
				Sources: cli.EnvVars("MONITOR_SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(log.Options{
				Level:   command.String("log-level"),
				Format:  command.String("log-format"),
				Service: "licensehub-monitor",
			})

			logger := log.WithModule("monitor")

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := cmd.NewRuntime(ctx, logger, cmd.Config{
				ServiceName:   "licensehub-monitor",
				DatabaseURL:   command.String("database-url"),
				EventBus:      command.String("event-bus"),
				DirectoryURL:  command.String("directory-url"),
				TemplatesPath: command.String("templates-path"),
				OTelEnabled:   command.Bool("otel-enabled"),
			})
			if err != nil {
				return err
			}

			defer func() {
				_ = rt.Close(context.WithoutCancel(ctx))
			}()

			monitor, err := NewMonitor(rt.Manager, command.String("schedule"), logger)
			if err != nil {
				return err
			}

			return monitor.Run(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("monitor").Error("Monitor stopped", "error", err)
		os.Exit(1)
	}
}
