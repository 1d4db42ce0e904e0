package file

import (
	"bufio"
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

const auditDir = "audit"

// AuditRepository appends entries to <root>/audit/<instance id>.jsonl.
type AuditRepository struct {
	root  string
	locks locks
}

func (ar *AuditRepository) path(instanceID string) (string, error) {
	name, err := documentName(instanceID, ".jsonl")
	if err != nil {
		return "", persistence.NewInstanceError("Audit", instanceID, err)
	}

	return filepath.Join(ar.root, auditDir, name), nil
}

func (ar *AuditRepository) Append(_ context.Context, entries ...models.AuditEntry) error {
	byInstance := make(map[string][]models.AuditEntry)
	order := make([]string, 0)

	for _, entry := range entries {
		if _, ok := byInstance[entry.InstanceID]; !ok {
			order = append(order, entry.InstanceID)
		}

		byInstance[entry.InstanceID] = append(byInstance[entry.InstanceID], entry)
	}

	for _, instanceID := range order {
		if err := ar.appendLines(instanceID, byInstance[instanceID]); err != nil {
			return err
		}
	}

	return nil
}

func (ar *AuditRepository) appendLines(instanceID string, entries []models.AuditEntry) error {
	path, err := ar.path(instanceID)
	if err != nil {
		return err
	}

	unlock := ar.locks.lock(path)
	defer unlock()

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open audit log of %s: %w", instanceID, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	encoder := json.NewEncoder(writer)

	for _, entry := range entries {
		if err := encoder.Encode(entry); err != nil {
			return fmt.Errorf("failed to encode audit entry %s: %w", entry.ID, err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to write audit log of %s: %w", instanceID, err)
	}

	return nil
}

func (ar *AuditRepository) ByInstance(_ context.Context, instanceID string) ([]models.AuditEntry, error) {
	path, err := ar.path(instanceID)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []models.AuditEntry{}, nil
		}

		return nil, fmt.Errorf("failed to open audit log of %s: %w", instanceID, err)
	}
	defer file.Close()

	entries := make([]models.AuditEntry, 0)
	decoder := json.NewDecoder(file)

	for decoder.More() {
		var entry models.AuditEntry
		if err := decoder.Decode(&entry); err != nil {
			return nil, fmt.Errorf("failed to decode audit log of %s: %w", instanceID, err)
		}

		entries = append(entries, entry)
	}

	return entries, nil
}
