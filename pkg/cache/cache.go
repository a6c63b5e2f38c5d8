// Package cache holds the lookup cache the navigator consults before
// scanning the document store. Values are opaque bytes so the same contract
// can be served from process memory or from redis.
package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL matches the lifetime of one navigation session.
const DefaultTTL = 5 * time.Minute

// Cache is a keyed lookup cache with explicit invalidation.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	Invalidate(ctx context.Context, key string)
	InvalidateAll(ctx context.Context)
}

var cacheRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "topolord_cache_requests_total",
		Help: "Lookup cache requests by backend and result (hit|miss).",
	},
	[]string{"backend", "result"},
)

func init() {
	prometheus.MustRegister(cacheRequests)
}

func recordLookup(backend string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheRequests.WithLabelValues(backend, result).Inc()
}

// Memory is an expiring in-process cache.
type Memory struct {
	ttl   time.Duration
	cache *gocache.Cache
}

// NewMemory returns a Memory cache. A non-positive ttl selects DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		ttl:   ttl,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	v, ok := m.cache.Get(key)
	if !ok {
		recordLookup("memory", false)
		return nil, false
	}
	b, ok := v.([]byte)
	if !ok {
		log.WithField("key", key).Warnf("cache: unexpected value type %T, evicting", v)
		m.cache.Delete(key)
		recordLookup("memory", false)
		return nil, false
	}
	recordLookup("memory", true)
	return b, true
}

func (m *Memory) Set(_ context.Context, key string, value []byte) {
	m.cache.Set(key, value, m.ttl)
}

func (m *Memory) Invalidate(_ context.Context, key string) {
	m.cache.Delete(key)
}

func (m *Memory) InvalidateAll(_ context.Context) {
	m.cache.Flush()
}

// Len returns the number of unexpired entries.
func (m *Memory) Len() int {
	return m.cache.ItemCount()
}

// Noop never stores anything. Useful when caching is disabled.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (Noop) Set(context.Context, string, []byte)        {}
func (Noop) Invalidate(context.Context, string)         {}
func (Noop) InvalidateAll(context.Context)              {}

// Loader wraps a Cache so that concurrent misses on the same key share one
// load. A Loader is itself a Cache; invalidating through it also discards
// the results of loads that were in flight when the invalidation happened.
type Loader struct {
	cache Cache
	group singleflight.Group
	epoch atomic.Uint64
}

func NewLoader(c Cache) *Loader {
	if c == nil {
		c = Noop{}
	}
	return &Loader{cache: c}
}

// Cache returns the wrapped cache.
func (l *Loader) Cache() Cache {
	return l.cache
}

func (l *Loader) Get(ctx context.Context, key string) ([]byte, bool) {
	return l.cache.Get(ctx, key)
}

func (l *Loader) Set(ctx context.Context, key string, value []byte) {
	l.cache.Set(ctx, key, value)
}

// Invalidate drops key. A load for key already running is not stored.
func (l *Loader) Invalidate(ctx context.Context, key string) {
	epoch := l.epoch.Add(1)
	l.group.Forget(flightKey(epoch-1, key))
	l.cache.Invalidate(ctx, key)
}

// InvalidateAll drops every key. Loads already running are not stored.
func (l *Loader) InvalidateAll(ctx context.Context) {
	l.epoch.Add(1)
	l.cache.InvalidateAll(ctx)
}

// GetOrLoad returns the cached value for key, calling load on a miss and
// storing its result. Load errors are not cached, and neither is a result
// whose load overlapped an invalidation.
func (l *Loader) GetOrLoad(ctx context.Context, key string, load func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if v, ok := l.cache.Get(ctx, key); ok {
		return v, nil
	}
	// Callers arriving after an invalidation start a fresh flight.
	epoch := l.epoch.Load()
	v, err, _ := l.group.Do(flightKey(epoch, key), func() (interface{}, error) {
		if b, ok := l.cache.Get(ctx, key); ok {
			return b, nil
		}
		b, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if l.epoch.Load() == epoch {
			l.cache.Set(ctx, key, b)
		} else {
			log.WithField("key", key).Debug("cache invalidated during load, result not stored")
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func flightKey(epoch uint64, key string) string {
	return strconv.FormatUint(epoch, 10) + "/" + key
}

// GetOrLoadJSON is GetOrLoad for JSON encodable values.
func GetOrLoadJSON[T any](ctx context.Context, l *Loader, key string, load func(ctx context.Context) (T, error)) (T, error) {
	var out T
	b, err := l.GetOrLoad(ctx, key, func(ctx context.Context) ([]byte, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(b, &out); err != nil {
		l.Invalidate(ctx, key)
		return out, err
	}
	return out, nil
}
