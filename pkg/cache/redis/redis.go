package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const defaultPrefix = "topolord"

var lookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "topolord_redis_cache_requests_total",
		Help: "Redis lookup cache requests by result (hit|miss|error).",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(lookups)
}

// Cache is a lookup cache shared between topolord processes. Every key it
// writes is also tracked in a set so that InvalidateAll can drop exactly
// its own keys without a SCAN.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewCache wraps client. An empty prefix selects "topolord"; a non-positive
// ttl stores entries without expiry.
func NewCache(client *redis.Client, prefix string, ttl time.Duration) *Cache {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Cache{client: client, prefix: prefix, ttl: ttl}
}

func (c *Cache) makeKey(key string) string {
	return fmt.Sprintf("%s:lookup:%s", c.prefix, key)
}

func (c *Cache) keySet() string {
	return c.prefix + ":lookup-keys"
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, c.makeKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			lookups.WithLabelValues("miss").Inc()
			return nil, false
		}
		lookups.WithLabelValues("error").Inc()
		log.WithError(err).WithField("key", key).Warn("redis cache GET failed")
		return nil, false
	}
	lookups.WithLabelValues("hit").Inc()
	return data, true
}

func (c *Cache) Set(ctx context.Context, key string, value []byte) {
	k := c.makeKey(key)
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, k, value, c.ttl)
	pipe.SAdd(ctx, c.keySet(), k)
	if _, err := pipe.Exec(ctx); err != nil {
		log.WithError(err).WithField("key", key).Warn("redis cache SET failed")
	}
}

func (c *Cache) Invalidate(ctx context.Context, key string) {
	k := c.makeKey(key)
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, k)
	pipe.SRem(ctx, c.keySet(), k)
	if _, err := pipe.Exec(ctx); err != nil {
		log.WithError(err).WithField("key", key).Warn("redis cache DEL failed")
	}
}

// flushScript drops every tracked key and the tracking set in one step, so
// a key added by a concurrent Set is either flushed with its entry or kept
// with its entry.
var flushScript = redis.NewScript(`
local keys = redis.call('SMEMBERS', KEYS[1])
for i = 1, #keys, 500 do
	redis.call('DEL', unpack(keys, i, math.min(i + 499, #keys)))
end
redis.call('DEL', KEYS[1])
return #keys
`)

func (c *Cache) InvalidateAll(ctx context.Context) {
	n, err := flushScript.Run(ctx, c.client, []string{c.keySet()}).Int()
	if err != nil {
		log.WithError(err).Warnf("redis cache flush of %s failed", c.keySet())
		return
	}
	log.WithField("keys", n).Debug("redis cache flushed")
}

// Ping verifies the connection.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
