package notify

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-redis/redis/v8"
)

// DefaultQueueKey is the Redis list consumers pop notifications from
const DefaultQueueKey = "notifications:queue"

// RedisQueue pushes notifications onto a Redis list for an external worker
type RedisQueue struct {
	client redis.Cmdable
	key    string
}

// NewRedisQueue creates a queue dispatcher. An empty key uses DefaultQueueKey.
func NewRedisQueue(client redis.Cmdable, key string) *RedisQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisQueue{client: client, key: key}
}

// Dispatch implements Dispatcher
func (q *RedisQueue) Dispatch(ctx context.Context, n Notification) error {
	if len(n.UserIDs) == 0 {
		return nil
	}
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, q.key, b).Err()
}

// Ping checks the Redis connection
func (q *RedisQueue) Ping(ctx context.Context) error {
	if q.client == nil {
		return errors.New("redis client not configured")
	}
	return q.client.Ping(ctx).Err()
}
