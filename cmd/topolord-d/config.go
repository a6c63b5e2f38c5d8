package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/rmax-ai/topolord/pkg/cache"
	"github.com/rmax-ai/topolord/pkg/navigator"
	"github.com/rmax-ai/topolord/pkg/telemetry"
)

const (
	defaultAddr         = "127.0.0.1:8091"
	defaultCacheBackend = "memory"
	defaultRedisAddr    = "127.0.0.1:6379"
)

type Config struct {
	DBPath       string
	Addr         string
	CacheBackend string
	CacheTTL     time.Duration
	RedisAddr    string
	PollInterval time.Duration
	LogLevel     string
	LogFormat    string
	Tracing      telemetry.TracingConfig
}

// fileConfig is the TOML layout. Durations are strings such as "5s".
type fileConfig struct {
	DBPath       string                  `toml:"db_path"`
	Addr         string                  `toml:"addr"`
	CacheBackend string                  `toml:"cache_backend"`
	CacheTTL     string                  `toml:"cache_ttl"`
	RedisAddr    string                  `toml:"redis_addr"`
	PollInterval string                  `toml:"poll_interval"`
	LogLevel     string                  `toml:"log_level"`
	LogFormat    string                  `toml:"log_format"`
	Tracing      telemetry.TracingConfig `toml:"tracing"`
}

// LoadConfig layers defaults, an optional TOML file, TOPOLORD_* variables
// and flags, in that order.
func LoadConfig(args []string) (Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("failed to get cwd: %w", err)
	}

	fc := fileConfig{
		DBPath:       filepath.Join(cwd, "topolord.db"),
		Addr:         defaultAddr,
		CacheBackend: defaultCacheBackend,
		CacheTTL:     cache.DefaultTTL.String(),
		RedisAddr:    defaultRedisAddr,
		PollInterval: navigator.DefaultPollInterval.String(),
		LogLevel:     "info",
		LogFormat:    "json",
		Tracing:      telemetry.TracingConfigFromEnv(),
	}

	configPath := configPathFromArgs(args, os.Getenv("TOPOLORD_CONFIG"))
	if configPath != "" {
		if _, err := toml.DecodeFile(resolvePath(configPath, cwd), &fc); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
		}
	}

	fc.DBPath = envOrDefault("TOPOLORD_DB_PATH", fc.DBPath)
	fc.Addr = addrFromEnv(fc.Addr)
	fc.CacheBackend = envOrDefault("TOPOLORD_CACHE_BACKEND", fc.CacheBackend)
	fc.CacheTTL = envOrDefault("TOPOLORD_CACHE_TTL", fc.CacheTTL)
	fc.RedisAddr = envOrDefault("TOPOLORD_REDIS_ADDR", fc.RedisAddr)
	fc.LogLevel = envOrDefault("TOPOLORD_LOG_LEVEL", fc.LogLevel)
	fc.LogFormat = envOrDefault("TOPOLORD_LOG_FORMAT", fc.LogFormat)
	if pollIntervalEnv := os.Getenv("TOPOLORD_POLL_INTERVAL"); pollIntervalEnv != "" {
		parsed, err := time.ParseDuration(pollIntervalEnv)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TOPOLORD_POLL_INTERVAL: %w", err)
		}
		if parsed <= 0 {
			return Config{}, errors.New("TOPOLORD_POLL_INTERVAL must be positive")
		}
		fc.PollInterval = pollIntervalEnv
	}

	flagSet := flag.NewFlagSet("topolord-d", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.String("config", configPath, "path to TOML config file")
	flagDB := flagSet.String("db", fc.DBPath, "path to SQLite database")
	flagAddr := flagSet.String("addr", fc.Addr, "HTTP listen address")
	flagCache := flagSet.String("cache", fc.CacheBackend, "lookup cache backend: memory|redis|off")
	flagCacheTTL := flagSet.String("cache-ttl", fc.CacheTTL, "lookup cache entry lifetime")
	flagRedis := flagSet.String("redis-addr", fc.RedisAddr, "redis address when cache=redis")
	flagPollInterval := flagSet.String("poll-interval", fc.PollInterval, "document change poll interval")
	flagLogLevel := flagSet.String("log-level", fc.LogLevel, "log level: debug|info|warn|error")
	flagLogFormat := flagSet.String("log-format", fc.LogFormat, "log format: json|text")
	flagTracing := flagSet.Bool("tracing", fc.Tracing.Enabled, "enable OpenTelemetry tracing")
	flagExporter := flagSet.String("tracing-exporter", fc.Tracing.Exporter, "span exporter: stdout|otlp")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagSet.SetOutput(os.Stdout)
			flagSet.PrintDefaults()
			return Config{}, err
		}
		return Config{}, err
	}

	pollInterval, err := time.ParseDuration(*flagPollInterval)
	if err != nil {
		return Config{}, fmt.Errorf("invalid poll interval: %w", err)
	}
	if pollInterval <= 0 {
		return Config{}, errors.New("poll interval must be positive")
	}
	cacheTTL, err := time.ParseDuration(*flagCacheTTL)
	if err != nil {
		return Config{}, fmt.Errorf("invalid cache ttl: %w", err)
	}

	tracing := fc.Tracing
	tracing.Enabled = *flagTracing
	tracing.Exporter = strings.ToLower(strings.TrimSpace(*flagExporter))

	config := Config{
		DBPath:       resolvePath(*flagDB, cwd),
		Addr:         strings.TrimSpace(*flagAddr),
		CacheBackend: normalizeCacheBackend(*flagCache),
		CacheTTL:     cacheTTL,
		RedisAddr:    strings.TrimSpace(*flagRedis),
		PollInterval: pollInterval,
		LogLevel:     strings.ToLower(strings.TrimSpace(*flagLogLevel)),
		LogFormat:    strings.ToLower(strings.TrimSpace(*flagLogFormat)),
		Tracing:      tracing,
	}

	if config.Addr == "" {
		return Config{}, errors.New("addr cannot be empty")
	}
	switch config.CacheBackend {
	case "memory", "off":
	case "redis":
		if config.RedisAddr == "" {
			return Config{}, errors.New("cache=redis requires redis-addr")
		}
	default:
		return Config{}, fmt.Errorf("unsupported cache backend: %s", config.CacheBackend)
	}
	if config.LogFormat != "json" && config.LogFormat != "text" {
		return Config{}, fmt.Errorf("unsupported log format: %s", config.LogFormat)
	}

	return config, nil
}

// configPathFromArgs finds -config before the full flag parse, since the
// file supplies the flag defaults.
func configPathFromArgs(args []string, fallback string) string {
	for i, arg := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return fallback
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func addrFromEnv(fallback string) string {
	if value := os.Getenv("TOPOLORD_ADDR"); value != "" {
		return value
	}
	if port := os.Getenv("TOPOLORD_PORT"); port != "" {
		if _, err := strconv.Atoi(port); err == nil {
			return fmt.Sprintf("127.0.0.1:%s", port)
		}
	}
	return fallback
}

func resolvePath(path string, cwd string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return trimmed
	}
	if filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(cwd, trimmed)
}

func normalizeCacheBackend(backend string) string {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "memory", "mem", "local":
		return "memory"
	case "off", "none", "disabled":
		return "off"
	default:
		return strings.ToLower(strings.TrimSpace(backend))
	}
}
