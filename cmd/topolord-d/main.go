package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/rmax-ai/topolord/pkg/api"
	"github.com/rmax-ai/topolord/pkg/cache"
	"github.com/rmax-ai/topolord/pkg/cache/redis"
	"github.com/rmax-ai/topolord/pkg/navigator"
	"github.com/rmax-ai/topolord/pkg/store"
	"github.com/rmax-ai/topolord/pkg/telemetry"
)

func main() {
	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "topolord-d: %v\n", err)
		os.Exit(2)
	}
	configureLogging(cfg.LogLevel, cfg.LogFormat)

	log.WithField("component", "topolord-d").Info("system_started")

	if err := run(cfg); err != nil {
		log.WithError(err).Fatal("daemon_failed")
	}
	log.Info("shutdown_complete")
}

func configureLogging(level, format string) {
	if format == "text" {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&log.JSONFormatter{})
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.WithField("log_level", level).Warn("unknown log level, using info")
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

// newCache builds the configured lookup cache and a function releasing it.
func newCache(ctx context.Context, cfg Config) (cache.Cache, func(), error) {
	switch cfg.CacheBackend {
	case "off":
		return cache.Noop{}, func() {}, nil
	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		log.WithField("addr", cfg.RedisAddr).Info("redis_cache_connected")
		return redis.NewCache(client, "", cfg.CacheTTL), func() { _ = client.Close() }, nil
	default:
		return cache.NewMemory(cfg.CacheTTL), func() {}, nil
	}
}

func run(cfg Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer telemetry.Shutdown(context.Background(), shutdownTracing)

	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.WithError(err).Error("failed_to_close_store")
		} else {
			log.Info("store_closed")
		}
	}()
	log.WithField("path", cfg.DBPath).Info("store_initialized")

	c, closeCache, err := newCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	loader := navigator.NewLoader(st, c)
	watcher := navigator.NewWatcher(st, loader.Cache(), cfg.PollInterval)
	go watcher.Start(ctx)

	srv := api.NewServer(loader, loader.Cache(), cfg.Addr)
	srv.SetReportSource(loader)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)

	for {
		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		case sig := <-sigs:
			if sig == syscall.SIGHUP {
				// flush cached documents so the next view re-reads the store
				loader.Cache().InvalidateAll(ctx)
				log.WithField("signal", sig.String()).Info("cache_flushed")
				continue
			}
			log.WithField("signal", sig.String()).Info("shutdown_initiated")
			cancel()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return srv.Stop(shutdownCtx)
		}
	}
}
