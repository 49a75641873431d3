package repo

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	perr "detention/internal/platform/errors"
	"detention/internal/services/batch/domain"
)

// DefaultRedisKey is where the snapshot lives unless configured otherwise
const DefaultRedisKey = "detention:batch:snapshot"

// Redis keeps the snapshot under one key. TTL bounds how long a stale run survives
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedis builds a redis snapshot store. ttl <= 0 keeps the key forever
func NewRedis(client *redis.Client, key string, ttl time.Duration) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}
	return &Redis{client: client, key: key, ttl: ttl}
}

// Load implements domain.SnapshotStore
func (r *Redis) Load(ctx context.Context) (*domain.Snapshot, error) {
	b, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeDB, "redis: load snapshot")
	}
	return decode(b)
}

// Save implements domain.SnapshotStore
func (r *Redis) Save(ctx context.Context, s domain.Snapshot) error {
	b, err := encode(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, b, max(r.ttl, 0)).Err(); err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "redis: save snapshot")
	}
	return nil
}

// Clear implements domain.SnapshotStore
func (r *Redis) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "redis: clear snapshot")
	}
	return nil
}
