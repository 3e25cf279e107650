package backup

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSlot keeps the backup under one key per device.
type RedisSlot struct {
	client *redis.Client
	key    string
}

func NewRedisSlot(client *redis.Client, deviceID string) *RedisSlot {
	return &RedisSlot{client: client, key: redisKey(deviceID)}
}

func (s *RedisSlot) Load(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load backup: %w", err)
	}
	return data, nil
}

func (s *RedisSlot) Save(ctx context.Context, data []byte) error {
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("save backup: %w", err)
	}
	return nil
}

func (s *RedisSlot) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear backup: %w", err)
	}
	return nil
}

func redisKey(deviceID string) string {
	return "traillog:backup:" + deviceID
}
