package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v7"
)

type Redis struct {
	Client *redis.Client
}

type NewRedisOpts struct {
	Addr     string
	Username string
	Password string
}

func NewRedis(opts NewRedisOpts) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       0,
	})
	if err := client.Ping().Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at addr[%s]: %w", opts.Addr, err)
	}
	return &Redis{Client: client}, nil
}

func (c *Redis) Set(key string, value string, ttl time.Duration) error {
	if status := c.Client.Set(key, value, ttl); status.Err() != nil {
		return fmt.Errorf("failed to set key[%s]: %w", key, status.Err())
	}
	return nil
}

func (c *Redis) Get(key string) (string, error) {
	res := c.Client.Get(key)
	if res.Err() != nil {
		if errors.Is(res.Err(), redis.Nil) {
			return "", fmt.Errorf("failed to get key[%s]: %w", key, ErrorKeyNotFound)
		}
		return "", fmt.Errorf("failed to get key[%s]: %w", key, res.Err())
	}
	return res.Val(), nil
}

func (c *Redis) Increment(key string, ttl time.Duration) (int64, error) {
	count, err := c.Client.Incr(key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment key[%s]: %w", key, err)
	}
	if count == 1 && ttl > 0 {
		if status := c.Client.Expire(key, ttl); status.Err() != nil {
			return count, fmt.Errorf("failed to set ttl on key[%s]: %w", key, status.Err())
		}
	}
	return count, nil
}

func (c *Redis) Del(key string) error {
	if res := c.Client.Unlink(key); res.Err() != nil {
		return fmt.Errorf("failed to unlink key[%s]: %w", key, res.Err())
	}
	return nil
}

var _ Cache = (*Redis)(nil)
