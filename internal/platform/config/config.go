package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config is the full process configuration.
type Config struct {
	Server   Server
	Store    StoreConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Registry RegistryConfig
	Health   HealthConfig
	CORS     CORSConfig
	LogLevel string
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Backend string
}

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type RedisConfig struct {
	URL          string
	KeyPrefix    string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables lifecycle events when Brokers is non-empty.
type KafkaConfig struct {
	Brokers    []string
	Topic      string
	BufferSize int

	// Consecutive send failures before the sink circuit opens, and how long
	// it stays open.
	BreakerFailures int
	BreakerCooldown time.Duration
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type RegistryConfig struct {
	// Path to a YAML registry file. Empty means the built-in registry.
	Path      string
	Watch     bool
	ClockSkew time.Duration
}

type HealthConfig struct {
	ProbeTimeout time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

// FromEnv builds the configuration from TRAFFICWATCH_* environment variables
// so main stays lean.
func FromEnv() (Config, error) {
	var errs []string
	dur := func(key string, def time.Duration) time.Duration {
		d, err := durationEnv(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return d
	}
	num := func(key string, def int) int {
		n, err := intEnv(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return n
	}

	cfg := Config{
		Server: Server{
			Addr:            stringEnv("TRAFFICWATCH_ADDR", ":8080"),
			ShutdownTimeout: dur("TRAFFICWATCH_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  dur("TRAFFICWATCH_REQUEST_TIMEOUT", 30*time.Second),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(stringEnv("TRAFFICWATCH_STORE", StoreMemory)),
		},
		Postgres: PostgresConfig{
			DSN:             os.Getenv("TRAFFICWATCH_POSTGRES_DSN"),
			MaxOpenConns:    num("TRAFFICWATCH_POSTGRES_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    num("TRAFFICWATCH_POSTGRES_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: dur("TRAFFICWATCH_POSTGRES_CONN_MAX_LIFETIME", 30*time.Minute),
			AutoMigrate:     boolEnv("TRAFFICWATCH_POSTGRES_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("TRAFFICWATCH_REDIS_URL"),
			KeyPrefix:    stringEnv("TRAFFICWATCH_REDIS_KEY_PREFIX", "trafficwatch:violations:"),
			PoolSize:     num("TRAFFICWATCH_REDIS_POOL_SIZE", 10),
			MinIdleConns: num("TRAFFICWATCH_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  dur("TRAFFICWATCH_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  dur("TRAFFICWATCH_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: dur("TRAFFICWATCH_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:         listEnv("TRAFFICWATCH_KAFKA_BROKERS", nil),
			Topic:           stringEnv("TRAFFICWATCH_KAFKA_TOPIC", "trafficwatch.violations"),
			BufferSize:      num("TRAFFICWATCH_EVENT_BUFFER", 1024),
			BreakerFailures: num("TRAFFICWATCH_KAFKA_BREAKER_FAILURES", 5),
			BreakerCooldown: dur("TRAFFICWATCH_KAFKA_BREAKER_COOLDOWN", 30*time.Second),
		},
		Registry: RegistryConfig{
			Path:      os.Getenv("TRAFFICWATCH_REGISTRY_FILE"),
			Watch:     boolEnv("TRAFFICWATCH_REGISTRY_WATCH", true),
			ClockSkew: dur("TRAFFICWATCH_CLOCK_SKEW", 2*time.Minute),
		},
		Health: HealthConfig{
			ProbeTimeout: dur("TRAFFICWATCH_HEALTH_TIMEOUT", 2*time.Second),
		},
		CORS: CORSConfig{
			AllowedOrigins: listEnv("TRAFFICWATCH_CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		},
		LogLevel: stringEnv("TRAFFICWATCH_LOG_LEVEL", "info"),
	}
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case StoreMemory:
	case StorePostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("config: TRAFFICWATCH_POSTGRES_DSN is required for the postgres store")
		}
	case StoreRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("config: TRAFFICWATCH_REDIS_URL is required for the redis store")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		return fmt.Errorf("config: TRAFFICWATCH_KAFKA_TOPIC must not be empty")
	}
	if c.Registry.ClockSkew < 0 {
		return fmt.Errorf("config: TRAFFICWATCH_CLOCK_SKEW must not be negative")
	}
	return nil
}

func stringEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func boolEnv(key string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

func intEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %q is not an integer", key, raw)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %q is not a duration", key, raw)
	}
	return d, nil
}

func listEnv(key string, def []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	seen := make(map[string]struct{})
	var out []string
	for _, part := range strings.Split(raw, ",") {
		p := strings.TrimSpace(part)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
