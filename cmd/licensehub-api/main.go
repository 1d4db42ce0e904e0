package main

import (
	"context"
	"os"

	"github.com/dukex/licensehub/pkg/cmd"
	"github.com/dukex/licensehub/pkg/log"
	"github.com/dukex/licensehub/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "licensehub-api",
		Usage:                 "Serve the license approval workflow API",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Persistence URL (file://, postgres://, redis:// or memory://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, memory, none)",
				Value:   "none",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "directory-url",
				Usage:    "Organizational directory: a redis:// URL or a YAML file",
				Required: true,
				Sources:  cli.EnvVars("DIRECTORY_URL"),
			},
			&cli.StringFlag{
				Name:    "directory-seed",
				Usage:   "YAML file written into a Redis directory at startup",
				Sources: cli.EnvVars("DIRECTORY_SEED"),
			},
			&cli.StringFlag{
				Name:    "templates-path",
				Usage:   "Directory of additional workflow template files",
				Sources: cli.EnvVars("TEMPLATES_PATH"),
			},
			&cli.IntFlag{
				Name:    "max-attempts",
				Usage:   "Attempts per command before giving up on version conflicts",
				Value:   workflow.DefaultMaxAttempts,
				Sources: cli.EnvVars("MAX_ATTEMPTS"),
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
				Service: "licensehub-api",
			})

			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing LicenseHub API")

			rt, err := cmd.NewRuntime(ctx, logger, cmd.Config{
				ServiceName:   "licensehub-api",
				DatabaseURL:   command.String("database-url"),
				EventBus:      command.String("event-bus"),
				DirectoryURL:  command.String("directory-url"),
				DirectorySeed: command.String("directory-seed"),
				TemplatesPath: command.String("templates-path"),
				MaxAttempts:   command.Int("max-attempts"),
				OTelEnabled:   command.Bool("otel-enabled"),
			})
			if err != nil {
				return err
			}

			defer func() {
				_ = rt.Close(context.WithoutCancel(ctx))
			}()

			api := NewAPI(logger, rt.Manager, rt.Registry, rt.Persistence)

			return api.Start(command.Int("port"))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("api").Error("API stopped", "error", err)
		os.Exit(1)
	}
}
