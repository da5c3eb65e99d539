package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"collab-engine/internal/config"
	"collab-engine/internal/domain"
)

const redisSnapshotKey = "workspace:snapshots"

// RedisStore keeps workspace snapshots in a single redis hash,
// field = workspace id, value = JSON snapshot.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to redis and verifies the connection with a ping.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing client, used by tests.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Load(ctx context.Context) (map[uuid.UUID]*domain.Workspace, error) {
	fields, err := s.client.HGetAll(ctx, redisSnapshotKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load: %w", err)
	}
	out := make(map[uuid.UUID]*domain.Workspace, len(fields))
	for field, value := range fields {
		id, err := uuid.Parse(field)
		if err != nil {
			continue
		}
		var ws domain.Workspace
		if err := json.Unmarshal([]byte(value), &ws); err != nil {
			return nil, fmt.Errorf("decode snapshot %s: %w", field, err)
		}
		ws.RebuildAppliedIndex()
		out[id] = &ws
	}
	return out, nil
}

func (s *RedisStore) Save(ctx context.Context, ws *domain.Workspace) error {
	data, err := json.Marshal(ws)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.client.HSet(ctx, redisSnapshotKey, ws.ID.String(), data).Err(); err != nil {
		return fmt.Errorf("redis save: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.client.HDel(ctx, redisSnapshotKey, id.String()).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}
