// Package redis stores workflow instances and their audit trail in Redis.
//
// Each instance is a JSON document under licensehub:instance:<id> carrying its
// version; licensehub:instances is a sorted set of instance IDs scored by
// creation time; licensehub:audit:<id> is a list of JSON audit entries.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/licensehub/pkg/models"
	"github.com/dukex/licensehub/pkg/persistence"
	redis "github.com/redis/go-redis/v9"
)

const (
	instanceKeyPrefix = "licensehub:instance:"
	instanceIndexKey  = "licensehub:instances"
	auditKeyPrefix    = "licensehub:audit:"
)

// Persistence implements persistence.Persistence on top of a Redis client.
type Persistence struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// NewPersistence connects to the Redis server at redisURL.
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string) (*Persistence, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	p := NewPersistenceFromClient(redis.NewClient(options), logger)

	err = p.HealthCheck(ctx)
	if err != nil {
		_ = p.client.Close()

		return nil, err
	}

	return p, nil
}

func NewPersistenceFromClient(client redis.UniversalClient, logger *slog.Logger) *Persistence {
	return &Persistence{
		client: client,
		logger: logger.With("module", "redis_persistence"),
	}
}

func (p *Persistence) Instances() persistence.InstanceStore {
	return p
}

func (p *Persistence) Audit() persistence.AuditLog {
	return &auditLog{client: p.client}
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (p *Persistence) Close(context.Context) error {
	return p.client.Close()
}

func instanceKey(id string) string {
	return instanceKeyPrefix + id
}

func (p *Persistence) Create(ctx context.Context, inst *models.WorkflowInstance) error {
	inst.Version = 0

	data, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow instance %s: %w", inst.ID, err)
	}

	created, err := p.client.SetNX(ctx, instanceKey(inst.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to store workflow instance %s: %w", inst.ID, err)
	}

	if !created {
		return persistence.NewInstanceError("Create", inst.ID, persistence.ErrInstanceExists)
	}

	err = p.client.ZAdd(ctx, instanceIndexKey, redis.Z{
		Score:  float64(inst.CreatedAt.UnixMilli()),
		Member: inst.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to index workflow instance %s: %w", inst.ID, err)
	}

	return nil
}

func (p *Persistence) Load(ctx context.Context, id string) (*models.WorkflowInstance, int64, error) {
	data, err := p.client.Get(ctx, instanceKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, 0, persistence.NewInstanceError("Load", id, persistence.ErrInstanceNotFound)
		}

		return nil, 0, fmt.Errorf("failed to read workflow instance %s: %w", id, err)
	}

	inst, err := decode(data)
	if err != nil {
		return nil, 0, err
	}

	return inst, inst.Version, nil
}

// CompareAndSwap watches the instance key so a write racing between the
// version check and the transaction aborts it.
func (p *Persistence) CompareAndSwap(ctx context.Context, id string, version int64, inst *models.WorkflowInstance) error {
	key := instanceKey(id)

	next := inst.Clone()
	next.Version = version + 1

	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow instance %s: %w", id, err)
	}

	err = p.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return persistence.NewInstanceError("CompareAndSwap", id, persistence.ErrInstanceNotFound)
			}

			return fmt.Errorf("failed to read workflow instance %s: %w", id, err)
		}

		stored, err := decode(current)
		if err != nil {
			return err
		}

		if stored.Version != version {
			return persistence.NewInstanceError("CompareAndSwap", id, persistence.ErrVersionConflict)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)

			return nil
		})

		return err
	}, key)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return persistence.NewInstanceError("CompareAndSwap", id, persistence.ErrVersionConflict)
		}

		return err
	}

	inst.Version = next.Version

	return nil
}

// List loads every indexed instance and filters in process.
func (p *Persistence) List(ctx context.Context, filter persistence.InstanceFilter) ([]*models.WorkflowInstance, error) {
	ids, err := p.client.ZRevRange(ctx, instanceIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read instance index: %w", err)
	}

	if len(ids) == 0 {
		return []*models.WorkflowInstance{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = instanceKey(id)
	}

	values, err := p.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow instances: %w", err)
	}

	all := make([]*models.WorkflowInstance, 0, len(values))

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			p.logger.WarnContext(ctx, "Indexed instance is missing", "instance_id", ids[i])

			continue
		}

		inst, err := decode([]byte(raw))
		if err != nil {
			return nil, err
		}

		all = append(all, inst)
	}

	return filter.Apply(all), nil
}

func decode(data []byte) (*models.WorkflowInstance, error) {
	var inst models.WorkflowInstance

	if err := json.Unmarshal(data, &inst); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow instance: %w", err)
	}

	return &inst, nil
}

type auditLog struct {
	client redis.UniversalClient
}

func (a *auditLog) Append(ctx context.Context, entries ...models.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	_, err := a.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, entry := range entries {
			data, err := json.Marshal(entry)
			if err != nil {
				return fmt.Errorf("failed to marshal audit entry %s: %w", entry.ID, err)
			}

			pipe.RPush(ctx, auditKeyPrefix+entry.InstanceID, data)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append audit entries: %w", err)
	}

	return nil
}

func (a *auditLog) ByInstance(ctx context.Context, instanceID string) ([]models.AuditEntry, error) {
	values, err := a.client.LRange(ctx, auditKeyPrefix+instanceID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read audit entries: %w", err)
	}

	entries := make([]models.AuditEntry, 0, len(values))

	for _, value := range values {
		var entry models.AuditEntry
		if err := json.Unmarshal([]byte(value), &entry); err != nil {
			return nil, fmt.Errorf("failed to decode audit entry: %w", err)
		}

		entries = append(entries, entry)
	}

	return entries, nil
}
