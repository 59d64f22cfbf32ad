package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/northbound/codewatch/internal/logger"
)

// RedisQueue implements Queue using Redis Lists.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue creates a new Redis-backed queue.
// client: the Redis client to use
// key: the Redis key name for the queue (e.g., "jobs:default")
func NewRedisQueue(client *redis.Client, key string) (Queue, error) {
	if key == "" {
		key = "jobs:default"
	}

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.GetDefault().Error("redis queue ping failed", zap.String("key", key), zap.Error(err))
		return nil, err
	}

	return &RedisQueue{
		client: client,
		key:    key,
	}, nil
}

// Enqueue adds a job to the queue using RPUSH.
func (r *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	if err := r.client.RPush(ctx, r.key, data).Err(); err != nil {
		return fmt.Errorf("rpush to %s: %w", r.key, err)
	}

	logger.GetDefault().Debug("enqueued job", zap.String("key", r.key), zap.String("type", job.Type))
	return nil
}

// Dequeue blocks until a job is available using BLPOP, then returns it.
func (r *RedisQueue) Dequeue(ctx context.Context) (Job, error) {
	type result struct {
		val []string
		err error
	}
	resultChan := make(chan result, 1)

	go func() {
		val, err := r.client.BLPop(ctx, 0, r.key).Result()
		resultChan <- result{val: val, err: err}
	}()

	select {
	case <-ctx.Done():
		return Job{}, ctx.Err()
	case res := <-resultChan:
		if res.err != nil {
			if res.err == redis.Nil {
				return Job{}, ctx.Err()
			}
			return Job{}, fmt.Errorf("blpop from %s: %w", r.key, res.err)
		}

		if len(res.val) < 2 {
			return Job{}, fmt.Errorf("invalid blpop result from %s: expected 2 elements, got %d", r.key, len(res.val))
		}

		var job Job
		if err := json.Unmarshal([]byte(res.val[1]), &job); err != nil {
			return Job{}, fmt.Errorf("unmarshal job: %w", err)
		}

		logger.GetDefault().Debug("dequeued job", zap.String("key", r.key), zap.String("type", job.Type))
		return job, nil
	}
}

