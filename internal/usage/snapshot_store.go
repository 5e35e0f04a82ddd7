package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultSnapshotKey is the Redis key holding the persisted ledger.
const DefaultSnapshotKey = "ai-chat-router:usage:snapshot"

// RedisSnapshotStore persists ledger counters so a restart keeps today's numbers.
type RedisSnapshotStore struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewRedisSnapshotStore returns nil when rdb is nil so callers can skip persistence.
func NewRedisSnapshotStore(rdb *redis.Client, key string) *RedisSnapshotStore {
	if rdb == nil {
		return nil
	}
	if key == "" {
		key = DefaultSnapshotKey
	}
	return &RedisSnapshotStore{rdb: rdb, key: key, ttl: 48 * time.Hour}
}

// Save writes the counters as JSON.
func (s *RedisSnapshotStore) Save(ctx context.Context, c Counters) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("op=usage.snapshot.save: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key, b, s.ttl).Err(); err != nil {
		return fmt.Errorf("op=usage.snapshot.save: %w", err)
	}
	return nil
}

// Load reads the persisted counters. The bool is false when nothing is stored.
func (s *RedisSnapshotStore) Load(ctx context.Context) (Counters, bool, error) {
	if s == nil {
		return Counters{}, false, nil
	}
	b, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Counters{}, false, nil
	}
	if err != nil {
		return Counters{}, false, fmt.Errorf("op=usage.snapshot.load: %w", err)
	}
	var c Counters
	if err := json.Unmarshal(b, &c); err != nil {
		return Counters{}, false, fmt.Errorf("op=usage.snapshot.load: %w", err)
	}
	return c, true, nil
}

// Warm restores the ledger from the store when a same-day snapshot exists.
func Warm(ctx context.Context, l *Ledger, s *RedisSnapshotStore) {
	if s == nil || l == nil {
		return
	}
	c, ok, err := s.Load(ctx)
	if err != nil {
		slog.Warn("usage snapshot load failed", slog.Any("error", err))
		return
	}
	if !ok {
		return
	}
	if l.Restore(c) {
		slog.Info("usage ledger restored from snapshot", slog.Int("day", c.LastResetDay))
	}
}
