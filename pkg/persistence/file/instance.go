package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dukex/licensehub/pkg/models"
	"github.com/dukex/licensehub/pkg/persistence"
)

const instancesDir = "instances"

// InstanceRepository stores each instance as <root>/instances/<id>.json.
type InstanceRepository struct {
	root  string
	locks locks
}

func (ir *InstanceRepository) path(id string) (string, error) {
	name, err := documentName(id, ".json")
	if err != nil {
		return "", err
	}

	return filepath.Join(ir.root, instancesDir, name), nil
}

func (ir *InstanceRepository) Create(_ context.Context, inst *models.WorkflowInstance) error {
	path, err := ir.path(inst.ID)
	if err != nil {
		return persistence.NewInstanceError("Create", inst.ID, err)
	}

	unlock := ir.locks.lock(path)
	defer unlock()

	if _, err := os.Stat(path); err == nil {
		return persistence.NewInstanceError("Create", inst.ID, persistence.ErrInstanceExists)
	}

	inst.Version = 0

	return ir.write(path, inst)
}

func (ir *InstanceRepository) Load(_ context.Context, id string) (*models.WorkflowInstance, int64, error) {
	path, err := ir.path(id)
	if err != nil {
		return nil, 0, persistence.NewInstanceError("Load", id, persistence.ErrInstanceNotFound)
	}

	inst, err := ir.read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, persistence.NewInstanceError("Load", id, persistence.ErrInstanceNotFound)
		}

		return nil, 0, fmt.Errorf("failed to fetch workflow instance %s: %w", id, err)
	}

	return inst, inst.Version, nil
}

func (ir *InstanceRepository) CompareAndSwap(_ context.Context, id string, version int64, inst *models.WorkflowInstance) error {
	path, err := ir.path(id)
	if err != nil {
		return persistence.NewInstanceError("CompareAndSwap", id, persistence.ErrInstanceNotFound)
	}

	unlock := ir.locks.lock(path)
	defer unlock()

	stored, err := ir.read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return persistence.NewInstanceError("CompareAndSwap", id, persistence.ErrInstanceNotFound)
		}

		return fmt.Errorf("failed to fetch workflow instance %s: %w", id, err)
	}

	if stored.Version != version {
		return persistence.NewInstanceError("CompareAndSwap", id, persistence.ErrVersionConflict)
	}

	next := inst.Clone()
	next.Version = version + 1

	if err := ir.write(path, next); err != nil {
		return err
	}

	inst.Version = next.Version

	return nil
}

// List reads every instance document and filters in memory.
func (ir *InstanceRepository) List(_ context.Context, filter persistence.InstanceFilter) ([]*models.WorkflowInstance, error) {
	root := os.DirFS(filepath.Join(ir.root, instancesDir))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow instance files: %w", err)
	}

	all := make([]*models.WorkflowInstance, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		inst, err := ir.read(filepath.Join(ir.root, instancesDir, file))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return nil, fmt.Errorf("failed to load workflow instance %s: %w", file, err)
		}

		all = append(all, inst)
	}

	return filter.Apply(all), nil
}

func (ir *InstanceRepository) read(path string) (*models.WorkflowInstance, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var inst models.WorkflowInstance

	if err := json.Unmarshal(body, &inst); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}

	return &inst, nil
}

func (ir *InstanceRepository) write(path string, inst *models.WorkflowInstance) error {
	data, err := json.MarshalIndent(inst, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workflow instance %s: %w", inst.ID, err)
	}

	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write workflow instance %s: %w", inst.ID, err)
	}

	return nil
}
