// Copyright (c) 2025 Northbound System
package config

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds a go-redis client from RedisConfig and pings it,
// shared by the job queue and the rate limiter so both adapters agree on
// one connection configuration.
func (c RedisConfig) NewRedisClient(ctx context.Context) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		DB:       c.DB,
		Password: c.Password,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis at %s: %w", c.Addr, err)
	}

	return client, nil
}
