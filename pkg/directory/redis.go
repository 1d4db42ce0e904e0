package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	redis "github.com/redis/go-redis/v9"
)

const (
	redisUsersKey    = "licensehub:directory:users"
	redisManagersKey = "licensehub:directory:managers"
	redisRolesKey    = "licensehub:directory:roles"
)

// RedisDirectory reads the directory from three Redis hashes: users by ID
// (JSON), managers by company/department and role holders by company/role.
type RedisDirectory struct {
	client redis.UniversalClient
	logger *slog.Logger
}

func NewRedisDirectory(client redis.UniversalClient, logger *slog.Logger) *RedisDirectory {
	return &RedisDirectory{
		client: client,
		logger: logger.With("module", "redis_directory"),
	}
}

// Apply writes seed in a single transaction.
func (d *RedisDirectory) Apply(ctx context.Context, seed Seed) error {
	_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, user := range seed.Users {
			data, err := json.Marshal(user)
			if err != nil {
				return fmt.Errorf("failed to marshal user %s: %w", user.ID, err)
			}

			pipe.HSet(ctx, redisUsersKey, user.ID, data)

			for _, role := range user.Roles {
				if role == RoleDepartmentManager {
					pipe.HSet(ctx, redisManagersKey, Key(user.Company, user.Department), user.ID)

					continue
				}

				pipe.HSet(ctx, redisRolesKey, Key(user.Company, role), user.ID)
			}
		}

		for key, userID := range seed.Managers {
			pipe.HSet(ctx, redisManagersKey, key, userID)
		}

		for key, userID := range seed.Roles {
			pipe.HSet(ctx, redisRolesKey, key, userID)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write directory seed: %w", err)
	}

	d.logger.InfoContext(ctx, "Directory seeded", "users", len(seed.Users))

	return nil
}

func (d *RedisDirectory) User(ctx context.Context, id string) (*User, error) {
	data, err := d.client.HGet(ctx, redisUsersKey, id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
		}

		return nil, fmt.Errorf("failed to read user %s: %w", id, err)
	}

	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to decode user %s: %w", id, err)
	}

	return &user, nil
}

func (d *RedisDirectory) ManagerOf(ctx context.Context, company, department string) (*User, error) {
	return d.lookup(ctx, redisManagersKey, Key(company, department))
}

func (d *RedisDirectory) RoleHolder(ctx context.Context, company, role string) (*User, error) {
	return d.lookup(ctx, redisRolesKey, Key(company, role))
}

func (d *RedisDirectory) lookup(ctx context.Context, hash, field string) (*User, error) {
	userID, err := d.client.HGet(ctx, hash, field).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, field)
		}

		return nil, fmt.Errorf("failed to read %s: %w", field, err)
	}

	return d.User(ctx, userID)
}

// HealthCheck pings the Redis server.
func (d *RedisDirectory) HealthCheck(ctx context.Context) error {
	return d.client.Ping(ctx).Err()
}
