package aliasstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces every alias key so the store can share a
// Redis instance with other applications.
const redisKeyPrefix = "PostSRSd/"

type redisStore struct {
	client *redis.Client
}

func openRedis(target string) (Store, error) {
	var opts *redis.Options
	if len(target) > 0 && target[0] == '/' {
		opts = &redis.Options{Network: "unix", Addr: target}
	} else {
		addr := target
		if len(addr) >= 2 && addr[0] == '/' && addr[1] == '/' {
			addr = addr[2:]
		}
		opts = &redis.Options{Network: "tcp", Addr: addr}
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &redisStore{client: client}, nil
}

func (s *redisStore) Read(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (s *redisStore) Write(ctx context.Context, key, value string, lifetime time.Duration) error {
	return s.client.SetEx(ctx, redisKeyPrefix+key, value, lifetime).Err()
}

// Expire is a no-op: Redis expires SETEX keys natively.
func (s *redisStore) Expire(ctx context.Context) error {
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
