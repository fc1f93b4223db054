package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreBadger   = "badger"
)

// Destination derivation variants accepted by DESTINATION_VARIANT.
const (
	VariantBRC29  = "brc29"
	VariantSimple = "simple"
)

// Server captures process level configuration.
type Server struct {
	Addr      string
	Host      string // paymail domain, the part after '@'
	BaseURL   string // public origin advertised in the capability document
	AvatarURL string

	LogLevel  string
	LogFormat string

	StoreDriver        string
	BadgerDir          string
	DestinationVariant string
	SettlementTimeout  time.Duration
	// AuditOpsSampleRate is the share of operations audit events that are kept.
	AuditOpsSampleRate float64

	Postgres  PostgresConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Chain     ChainConfig
	RateLimit RateLimitConfig
}

// PostgresConfig configures the database/sql pool.
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the replay cache connection. Empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit sink. No brokers means audit events stay in memory.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
	ClientID   string
}

// ChainConfig configures the broadcaster, the chain-data client and the outbound fetch queue.
type ChainConfig struct {
	Network          string // "main" or "test"
	ArcURL           string
	ArcAPIKey        string
	WocAPIKey        string
	FetchMinInterval time.Duration
	FetchQueueSize   int
}

// RateLimitConfig configures inbound per-IP limiting. Each class shares PublicWindow.
type RateLimitConfig struct {
	Disabled        bool
	PublicLimit     int
	SettlementLimit int
	WalletLimit     int
	PublicWindow    time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	host := envOr("PAYMAIL_HOST", "localhost:8080")
	return Server{
		Addr:      envOr("PAYMAIL_BRIDGE_ADDR", ":8080"),
		Host:      host,
		BaseURL:   strings.TrimRight(envOr("PAYMAIL_BASE_URL", "https://"+host), "/"),
		AvatarURL: envOr("PAYMAIL_AVATAR_URL", "https://paymail.us/apple-touch-icon.png"),

		LogLevel:  envOr("LOG_LEVEL", "info"),
		LogFormat: envOr("LOG_FORMAT", "json"),

		StoreDriver:        strings.ToLower(envOr("STORE_DRIVER", StoreMemory)),
		BadgerDir:          envOr("BADGER_DIR", "./data/badger"),
		DestinationVariant: strings.ToLower(envOr("DESTINATION_VARIANT", VariantBRC29)),
		SettlementTimeout:  envDuration("SETTLEMENT_TIMEOUT", 2*time.Minute),
		AuditOpsSampleRate: envFloat("AUDIT_OPS_SAMPLE_RATE", 1),

		Postgres: PostgresConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    envList("KAFKA_BROKERS"),
			AuditTopic: envOr("KAFKA_AUDIT_TOPIC", "paymail-bridge.audit"),
			ClientID:   envOr("KAFKA_CLIENT_ID", "paymail-bridge"),
		},
		Chain: ChainConfig{
			Network:          strings.ToLower(envOr("BSV_NETWORK", "main")),
			ArcURL:           envOr("ARC_URL", "https://arc.taal.com"),
			ArcAPIKey:        os.Getenv("ARC_API_KEY"),
			WocAPIKey:        os.Getenv("WOC_API_KEY"),
			FetchMinInterval: envDuration("FETCH_MIN_INTERVAL", 334*time.Millisecond),
			FetchQueueSize:   envInt("FETCH_QUEUE_SIZE", 256),
		},
		RateLimit: RateLimitConfig{
			Disabled:        envBool("DISABLE_RATE_LIMITING", false),
			PublicLimit:     envInt("PUBLIC_RATE_LIMIT", 60),
			SettlementLimit: envInt("SETTLEMENT_RATE_LIMIT", 20),
			WalletLimit:     envInt("WALLET_RATE_LIMIT", 120),
			PublicWindow:    envDuration("PUBLIC_RATE_WINDOW", time.Minute),
		},
	}
}

// Validate rejects configurations the server cannot start with.
func (s Server) Validate() error {
	var errs []error
	if s.Host == "" {
		errs = append(errs, errors.New("PAYMAIL_HOST is required"))
	}
	switch s.StoreDriver {
	case StoreMemory, StoreBadger:
	case StorePostgres:
		if s.Postgres.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORE_DRIVER=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", s.StoreDriver))
	}
	if s.DestinationVariant != VariantBRC29 && s.DestinationVariant != VariantSimple {
		errs = append(errs, fmt.Errorf("unknown DESTINATION_VARIANT %q", s.DestinationVariant))
	}
	if s.Chain.Network != "main" && s.Chain.Network != "test" {
		errs = append(errs, fmt.Errorf("BSV_NETWORK must be main or test, got %q", s.Chain.Network))
	}
	if s.Chain.FetchMinInterval <= 0 {
		errs = append(errs, errors.New("FETCH_MIN_INTERVAL must be positive"))
	}
	if s.Chain.FetchQueueSize <= 0 {
		errs = append(errs, errors.New("FETCH_QUEUE_SIZE must be positive"))
	}
	if s.AuditOpsSampleRate < 0 || s.AuditOpsSampleRate > 1 {
		errs = append(errs, errors.New("AUDIT_OPS_SAMPLE_RATE must be between 0 and 1"))
	}
	if !s.RateLimit.Disabled {
		if s.RateLimit.PublicLimit <= 0 || s.RateLimit.SettlementLimit <= 0 || s.RateLimit.WalletLimit <= 0 {
			errs = append(errs, errors.New("rate limits must be positive unless DISABLE_RATE_LIMITING is set"))
		}
		if s.RateLimit.PublicWindow <= 0 {
			errs = append(errs, errors.New("PUBLIC_RATE_WINDOW must be positive"))
		}
	}
	return errors.Join(errs...)
}

// Mainnet reports whether addresses and chain lookups target mainnet.
func (c ChainConfig) Mainnet() bool {
	return c.Network == "main"
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
