package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"PgLogPump/internal/config"
)

const redisTimeout = 5 * time.Second

// RedisStore хранит смещения в hash: поле - путь файла, значение - offset
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(cfg *config.RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("не удалось подключиться к Redis: %w", err)
	}
	key := cfg.Key
	if key == "" {
		key = config.DefaultRedisKey
	}
	return &RedisStore{client: rdb, key: key}, nil
}

func (r *RedisStore) Load() (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}
	processed := make(map[string]int64, len(fields))
	for path, raw := range fields {
		off, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("offset %q для %s: %w", raw, path, err)
		}
		processed[path] = off
	}
	return processed, nil
}

// Save записывает все смещения одной командой HSET
func (r *RedisStore) Save(data map[string]int64) error {
	if len(data) == 0 {
		return nil
	}
	values := make([]any, 0, len(data)*2)
	for path, off := range data {
		values = append(values, path, off)
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	return r.client.HSet(ctx, r.key, values...).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
