package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"AuraFM/core/playback"

	"github.com/go-redis/redis/v8"
)

const (
	playbackSessionKey = "playback:session:%d"

	defaultSessionTTL = 24 * time.Hour
)

// RedisSessionStore 播放会话快照的 Redis 存储
// 每次状态变更整快照覆写，过期即视为没有会话
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore 创建播放会话存储
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisSessionStore{client: client, ttl: ttl}
}

func (s *RedisSessionStore) Load(ctx context.Context, userID int64) (*playback.Snapshot, error) {
	if s.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	data, err := s.client.Get(ctx, fmt.Sprintf(playbackSessionKey, userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load playback session: %w", err)
	}

	var snap playback.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal playback session: %w", err)
	}
	return &snap, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, userID int64, snap *playback.Snapshot) error {
	if s.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal playback session: %w", err)
	}

	// 每次写入都续期，活跃用户的会话不会过期
	err = s.client.Set(ctx, fmt.Sprintf(playbackSessionKey, userID), data, s.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to save playback session: %w", err)
	}
	return nil
}
