package mocks

import (
	"context"

	"github.com/dukex/licensehub/pkg/models"
	"github.com/dukex/licensehub/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockInstanceStore is a mock implementation of persistence.InstanceStore interface.
type MockInstanceStore struct {
	mock.Mock
}

func (m *MockInstanceStore) Create(ctx context.Context, inst *models.WorkflowInstance) error {
	args := m.Called(ctx, inst)

	return args.Error(0)
}

func (m *MockInstanceStore) Load(ctx context.Context, id string) (*models.WorkflowInstance, int64, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}

	return args.Get(0).(*models.WorkflowInstance).Clone(), args.Get(1).(int64), args.Error(2)
}

func (m *MockInstanceStore) CompareAndSwap(ctx context.Context, id string, version int64, inst *models.WorkflowInstance) error {
	args := m.Called(ctx, id, version, inst)

	return args.Error(0)
}

func (m *MockInstanceStore) List(ctx context.Context, filter persistence.InstanceFilter) ([]*models.WorkflowInstance, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowInstance), args.Error(1)
}

// MockAuditLog is a mock implementation of persistence.AuditLog interface.
type MockAuditLog struct {
	mock.Mock
}

func (m *MockAuditLog) Append(ctx context.Context, entries ...models.AuditEntry) error {
	args := m.Called(ctx, entries)

	return args.Error(0)
}

func (m *MockAuditLog) ByInstance(ctx context.Context, instanceID string) ([]models.AuditEntry, error) {
	args := m.Called(ctx, instanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.AuditEntry), args.Error(1)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	InstanceStore *MockInstanceStore
	AuditLog      *MockAuditLog
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		InstanceStore: &MockInstanceStore{},
		AuditLog:      &MockAuditLog{},
	}
}

func (m *MockPersistence) Instances() persistence.InstanceStore {
	return m.InstanceStore
}

func (m *MockPersistence) Audit() persistence.AuditLog {
	return m.AuditLog
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
