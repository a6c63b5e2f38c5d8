package redis

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewCache(client, "test", ttl), mr
}

func TestRedisCache(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	t.Run("Get missing", func(t *testing.T) {
		if _, ok := c.Get(ctx, "rack-for-server:srv-1"); ok {
			t.Fatal("expected miss")
		}
	})

	t.Run("Set and Get", func(t *testing.T) {
		c.Set(ctx, "rack-for-server:srv-1", []byte(`{"id":"rack-a1","found":true}`))
		got, ok := c.Get(ctx, "rack-for-server:srv-1")
		if !ok {
			t.Fatal("expected hit")
		}
		if string(got) != `{"id":"rack-a1","found":true}` {
			t.Errorf("unexpected value %s", got)
		}
		if !mr.Exists("test:lookup:rack-for-server:srv-1") {
			t.Error("expected prefixed key in redis")
		}
		if ok, _ := mr.SIsMember("test:lookup-keys", "test:lookup:rack-for-server:srv-1"); !ok {
			t.Error("expected key to be tracked in the key set")
		}
	})

	t.Run("Invalidate", func(t *testing.T) {
		c.Set(ctx, "a", []byte("1"))
		c.Set(ctx, "b", []byte("2"))
		c.Invalidate(ctx, "a")
		if _, ok := c.Get(ctx, "a"); ok {
			t.Error("a should be gone")
		}
		if _, ok := c.Get(ctx, "b"); !ok {
			t.Error("b should remain")
		}
	})

	t.Run("InvalidateAll leaves foreign keys alone", func(t *testing.T) {
		if err := mr.Set("other:key", "keep"); err != nil {
			t.Fatal(err)
		}
		c.InvalidateAll(ctx)
		if _, ok := c.Get(ctx, "b"); ok {
			t.Error("b should be gone")
		}
		if !mr.Exists("other:key") {
			t.Error("InvalidateAll removed a key it does not own")
		}
		if mr.Exists("test:lookup-keys") {
			t.Error("key set should be removed")
		}
	})
}

func TestRedisCache_InvalidateAllManyKeys(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	// empty flush is a no-op
	c.InvalidateAll(ctx)

	for i := 0; i < 1201; i++ {
		c.Set(ctx, "server:"+strconv.Itoa(i), []byte("x"))
	}
	c.InvalidateAll(ctx)
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, "test:") {
			t.Fatalf("key %s survived the flush", k)
		}
	}
}

func TestRedisCache_InvalidateAllWithConcurrentSets(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.Set(ctx, "rack:"+strconv.Itoa(w)+":"+strconv.Itoa(i), []byte("v"))
			}
		}(w)
	}
	for i := 0; i < 20; i++ {
		c.InvalidateAll(ctx)
	}
	wg.Wait()

	// Every stored entry must still be tracked, or the next flush misses it.
	for _, k := range mr.Keys() {
		if !strings.HasPrefix(k, "test:lookup:") {
			continue
		}
		if ok, _ := mr.SIsMember("test:lookup-keys", k); !ok {
			t.Errorf("entry %s is not tracked", k)
		}
	}
	c.InvalidateAll(ctx)
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, "test:") {
			t.Fatalf("key %s survived the final flush", k)
		}
	}
}

func TestRedisCache_TTL(t *testing.T) {
	c, mr := newTestCache(t, time.Second)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"))
	mr.FastForward(2 * time.Second)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("expected entry to expire")
	}
}

func TestRedisCache_Unreachable(t *testing.T) {
	c, mr := newTestCache(t, 0)
	mr.Close()

	ctx := context.Background()
	// Failures degrade to misses and never panic.
	c.Set(ctx, "k", []byte("v"))
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("expected miss when redis is down")
	}
	if err := c.Ping(ctx); err == nil {
		t.Fatal("expected ping error when redis is down")
	}
}
