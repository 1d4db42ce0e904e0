package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/licensehub/pkg/directory"
	goredis "github.com/redis/go-redis/v9"
)

// Directory is an organizational directory together with the function that
// releases its connection.
type Directory struct {
	directory.Directory

	Close func() error
}

// NewDirectory opens the directory at directoryURL: a redis:// URL, or the
// path of a YAML seed file. seedPath, when set, is written into a Redis
// directory before use.
func NewDirectory(ctx context.Context, logger *slog.Logger, directoryURL, seedPath string) (*Directory, error) {
	if !strings.HasPrefix(directoryURL, "redis://") && !strings.HasPrefix(directoryURL, "rediss://") {
		dir, err := directory.LoadMemoryDirectory(directoryURL)
		if err != nil {
			return nil, err
		}

		return &Directory{Directory: dir, Close: func() error { return nil }}, nil
	}

	opts, err := goredis.ParseURL(directoryURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse directory URL: %w", err)
	}

	client := goredis.NewClient(opts)
	dir := directory.NewRedisDirectory(client, logger)

	if err := dir.HealthCheck(ctx); err != nil {
		_ = client.Close()

		return nil, err
	}

	if seedPath != "" {
		seed, err := directory.ReadSeed(seedPath)
		if err != nil {
			_ = client.Close()

			return nil, err
		}

		if err := dir.Apply(ctx, seed); err != nil {
			_ = client.Close()

			return nil, fmt.Errorf("failed to seed directory: %w", err)
		}
	}

	return &Directory{Directory: dir, Close: client.Close}, nil
}
