package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper suppresses repeat escalation sends across server instances
// using SET NX with the dedup window as TTL. Failing open: when Redis is
// unreachable the notification is sent rather than dropped.
type RedisDeduper struct {
	client *redis.Client
}

// NewRedisDeduper creates a Redis-backed deduper
func NewRedisDeduper(client *redis.Client) *RedisDeduper {
	return &RedisDeduper{client: client}
}

func (d *RedisDeduper) ShouldSend(ctx context.Context, recipientID int, eventType string, window time.Duration) bool {
	key := fmt.Sprintf("fieldserve:dispatch:%d:%s", recipientID, eventType)
	ok, err := d.client.SetNX(ctx, key, 1, window).Result()
	if err != nil {
		return true
	}
	return ok
}

// AcquireLease takes a short-lived cross-instance lease on an arbitrary
// key. The escalation sweep uses it so only one server runs each scheduled
// pass. Fails open like ShouldSend.
func (d *RedisDeduper) AcquireLease(ctx context.Context, key string, ttl time.Duration) bool {
	ok, err := d.client.SetNX(ctx, "fieldserve:lease:"+key, 1, ttl).Result()
	if err != nil {
		return true
	}
	return ok
}
