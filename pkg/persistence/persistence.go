// Package persistence stores workflow instances and their audit trail.
package persistence

import (
	"context"

	"github.com/dukex/licensehub/pkg/models"
)

// InstanceStore persists workflow instances with optimistic concurrency. The
// version returned by Load is the token CompareAndSwap expects; a successful
// swap stores the instance at version+1 and sets inst.Version accordingly.
type InstanceStore interface {
	// Create stores a new instance at version 0.
	Create(ctx context.Context, inst *models.WorkflowInstance) error
	Load(ctx context.Context, id string) (*models.WorkflowInstance, int64, error)
	CompareAndSwap(ctx context.Context, id string, version int64, inst *models.WorkflowInstance) error
	// List returns matching instances, newest first.
	List(ctx context.Context, filter InstanceFilter) ([]*models.WorkflowInstance, error)
}

// AuditLog is an append-only record of transitions.
type AuditLog interface {
	Append(ctx context.Context, entries ...models.AuditEntry) error
	// ByInstance returns the entries of an instance in append order.
	ByInstance(ctx context.Context, instanceID string) ([]models.AuditEntry, error)
}

// Persistence bundles the stores of one backend.
type Persistence interface {
	Instances() InstanceStore
	Audit() AuditLog
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
