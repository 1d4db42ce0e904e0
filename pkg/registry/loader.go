package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dukex/licensehub/pkg/models"
	"gopkg.in/yaml.v3"
)

// LoadDirectory registers every *.yaml / *.yml template file found directly
// under path, in file name order. Each file holds a single template.
func (r *Registry) LoadDirectory(path string) (int, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read templates directory %s: %w", path, err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}

	sort.Strings(files)

	for i, file := range files {
		tpl, err := readTemplateFile(file)
		if err != nil {
			return i, err
		}

		if err := r.Register(tpl); err != nil {
			return i, fmt.Errorf("%s: %w", file, err)
		}

		r.logger.Info("Loaded template", "file", file, "template_id", tpl.ID, "version", tpl.Version)
	}

	return len(files), nil
}

func readTemplateFile(file string) (*models.WorkflowTemplate, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file %s: %w", file, err)
	}

	var tpl models.WorkflowTemplate
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %w", ErrInvalidTemplate, file, err)
	}

	return &tpl, nil
}
