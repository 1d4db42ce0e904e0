// Package file provides file-based persistence: one JSON document per
// instance and one JSON lines file per instance audit trail.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/licensehub/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root         string
	instanceRepo *InstanceRepository
	auditRepo    *AuditRepository
}

// NewPersistence creates the instances and audit directories under root,
// which may carry a file:// prefix.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	for _, dir := range []string{instancesDir, auditDir} {
		if err := os.MkdirAll(filepath.Join(cleanRoot, dir), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}

	return &Persistence{
		root:         cleanRoot,
		instanceRepo: &InstanceRepository{root: cleanRoot},
		auditRepo:    &AuditRepository{root: cleanRoot},
	}, nil
}

func (fp *Persistence) Instances() persistence.InstanceStore {
	return fp.instanceRepo
}

func (fp *Persistence) Audit() persistence.AuditLog {
	return fp.auditRepo
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// writeFileAtomic writes data next to path and renames it into place so
// readers never see a partial document.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return err
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return err
	}

	return os.Rename(tmp.Name(), path)
}

// locks serializes writers of the same file within the process.
type locks struct {
	mu sync.Map // path -> *sync.Mutex
}

func (l *locks) lock(path string) func() {
	m, _ := l.mu.LoadOrStore(path, &sync.Mutex{})
	mutex := m.(*sync.Mutex)
	mutex.Lock()

	return mutex.Unlock
}

// documentName returns the file name for id under a store directory. IDs
// that could escape that directory are rejected.
func documentName(id, ext string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return "", persistence.ErrInvalidInstanceID
	}

	return id + ext, nil
}
