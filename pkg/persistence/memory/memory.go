// Package memory provides an in-process persistence backend.
package memory

import (
	"context"
	"sync"

	"github.com/dukex/licensehub/pkg/models"
	"github.com/dukex/licensehub/pkg/persistence"
)

// Persistence keeps instances and audit entries in maps guarded by a mutex.
// Everything going in or out is deep copied.
type Persistence struct {
	mu        sync.RWMutex
	instances map[string]*models.WorkflowInstance
	audit     map[string][]models.AuditEntry
}

func NewPersistence() *Persistence {
	return &Persistence{
		instances: make(map[string]*models.WorkflowInstance),
		audit:     make(map[string][]models.AuditEntry),
	}
}

func (p *Persistence) Instances() persistence.InstanceStore { return p }

func (p *Persistence) Audit() persistence.AuditLog { return auditLog{p} }

func (p *Persistence) HealthCheck(context.Context) error { return nil }

func (p *Persistence) Close(context.Context) error { return nil }

func (p *Persistence) Create(_ context.Context, inst *models.WorkflowInstance) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.instances[inst.ID]; exists {
		return persistence.NewInstanceError("Create", inst.ID, persistence.ErrInstanceExists)
	}

	inst.Version = 0
	p.instances[inst.ID] = inst.Clone()

	return nil
}

func (p *Persistence) Load(_ context.Context, id string) (*models.WorkflowInstance, int64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stored, ok := p.instances[id]
	if !ok {
		return nil, 0, persistence.NewInstanceError("Load", id, persistence.ErrInstanceNotFound)
	}

	return stored.Clone(), stored.Version, nil
}

func (p *Persistence) CompareAndSwap(_ context.Context, id string, version int64, inst *models.WorkflowInstance) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	stored, ok := p.instances[id]
	if !ok {
		return persistence.NewInstanceError("CompareAndSwap", id, persistence.ErrInstanceNotFound)
	}

	if stored.Version != version {
		return persistence.NewInstanceError("CompareAndSwap", id, persistence.ErrVersionConflict)
	}

	inst.Version = version + 1
	p.instances[id] = inst.Clone()

	return nil
}

func (p *Persistence) List(_ context.Context, filter persistence.InstanceFilter) ([]*models.WorkflowInstance, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	all := make([]*models.WorkflowInstance, 0, len(p.instances))
	for _, inst := range p.instances {
		all = append(all, inst)
	}

	matched := filter.Apply(all)

	out := make([]*models.WorkflowInstance, len(matched))
	for i, inst := range matched {
		out[i] = inst.Clone()
	}

	return out, nil
}

type auditLog struct {
	p *Persistence
}

func (a auditLog) Append(_ context.Context, entries ...models.AuditEntry) error {
	a.p.mu.Lock()
	defer a.p.mu.Unlock()

	for _, entry := range entries {
		a.p.audit[entry.InstanceID] = append(a.p.audit[entry.InstanceID], entry)
	}

	return nil
}

func (a auditLog) ByInstance(_ context.Context, instanceID string) ([]models.AuditEntry, error) {
	a.p.mu.RLock()
	defer a.p.mu.RUnlock()

	return append([]models.AuditEntry{}, a.p.audit[instanceID]...), nil
}
