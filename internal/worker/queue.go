package worker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEmpty is returned by a Queue when nothing arrived in time.
var ErrEmpty = errors.New("queue empty")

// Queue is a FIFO of JSON payloads.
type Queue interface {
	// Pop blocks up to timeout for the next payload.
	Pop(ctx context.Context, timeout time.Duration) (string, error)
	// TryPop returns the next payload without blocking.
	TryPop(ctx context.Context) (string, error)
	Push(ctx context.Context, payload string) error
	Name() string
}

// RedisQueue is a Queue backed by a Redis list.
type RedisQueue struct {
	rdb *redis.Client
	key string
}

func NewRedisQueue(rdb *redis.Client, key string) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: key}
}

func (q *RedisQueue) Name() string { return q.key }

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrEmpty
	}
	if err != nil {
		return "", err
	}
	if len(res) < 2 {
		return "", ErrEmpty
	}
	return res[1], nil
}

func (q *RedisQueue) TryPop(ctx context.Context) (string, error) {
	res, err := q.rdb.LPop(ctx, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrEmpty
	}
	return res, err
}

func (q *RedisQueue) Push(ctx context.Context, payload string) error {
	return q.rdb.RPush(ctx, q.key, payload).Err()
}
