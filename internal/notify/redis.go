package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisTransport publishes deliveries on a pub/sub channel for live clients.
type RedisTransport struct {
	client  *redis.Client
	channel string
}

// NewRedisTransport builds the transport.
func NewRedisTransport(client *redis.Client, channel string) *RedisTransport {
	return &RedisTransport{client: client, channel: channel}
}

func (t *RedisTransport) Name() string { return "redis" }

func (t *RedisTransport) Deliver(ctx context.Context, d Delivery) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return t.client.Publish(ctx, t.channel, payload).Err()
}

// RedisRetryQueue keeps failed deliveries in a Redis list so any worker
// process can redeliver them.
type RedisRetryQueue struct {
	client *redis.Client
	key    string
}

// NewRedisRetryQueue builds the queue stored under key.
func NewRedisRetryQueue(client *redis.Client, key string) *RedisRetryQueue {
	return &RedisRetryQueue{client: client, key: key}
}

func (q *RedisRetryQueue) Push(ctx context.Context, item RetryItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, q.key, payload).Err()
}

func (q *RedisRetryQueue) Pop(ctx context.Context) (*RetryItem, error) {
	raw, err := q.client.LPop(ctx, q.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var item RetryItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRetryItem, err)
	}
	return &item, nil
}

func (q *RedisRetryQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
