package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/siteharbor/siteharbor/internal/platform"
)

// SnapshotCache keeps short-lived copies of platform service snapshots so
// status reads don't hammer the platform control API. Misses and redis
// failures fall through to a direct gateway read.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSnapshotCache(redisURL string, ttl time.Duration) *SnapshotCache {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{Addr: redisURL}
	}
	return &SnapshotCache{
		client: redis.NewClient(opt),
		ttl:    ttl,
	}
}

func (c *SnapshotCache) Get(ctx context.Context, name string) (*platform.ServiceSnapshot, bool) {
	data, err := c.client.Get(ctx, key(name)).Result()
	if err != nil {
		return nil, false
	}

	var snap platform.ServiceSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, false
	}
	return &snap, true
}

func (c *SnapshotCache) Set(ctx context.Context, name string, snap *platform.ServiceSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	c.client.Set(ctx, key(name), data, c.ttl)
}

func (c *SnapshotCache) Close() error {
	return c.client.Close()
}

func key(name string) string {
	return "service:snapshot:" + name
}
