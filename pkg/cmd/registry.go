package cmd

import (
	"log/slog"

	"github.com/dukex/licensehub/pkg/condition"
	"github.com/dukex/licensehub/pkg/registry"
)

// NewRegistry registers the built-in templates, then every template file
// under templatesPath when it is set. Files may add new versions of the
// built-in templates.
func NewRegistry(logger *slog.Logger, conditions *condition.Cache, templatesPath string) (*registry.Registry, error) {
	reg := registry.NewRegistry(logger, conditions)

	if err := reg.RegisterDefaults(); err != nil {
		return nil, err
	}

	if templatesPath == "" {
		return reg, nil
	}

	loaded, err := reg.LoadDirectory(templatesPath)
	if err != nil {
		return nil, err
	}

	logger.Info("Loaded workflow templates", "path", templatesPath, "count", loaded)

	return reg, nil
}
