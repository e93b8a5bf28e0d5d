// Package config loads service configuration from environment variables so
// main stays lean.
package config

import (
	"os"
	"strconv"
	"time"
)

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings. An empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	StatusTTL    time.Duration
}

// KafkaConfig holds audit event publishing settings. Empty brokers disable Kafka.
type KafkaConfig struct {
	Brokers    string
	AuditTopic string
}

// LedgerConfig holds settings for the anchoring gateway.
type LedgerConfig struct {
	BaseURL       string
	APIKey        string
	IssuerRef     string
	ConfirmWindow time.Duration
	PollInterval  time.Duration
}

// SkillsConfig holds settings for the claim analysis service.
// An empty BaseURL disables extraction.
type SkillsConfig struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	Required bool
}

// SealingConfig holds the at-rest encryption settings. An empty passphrase
// means payloads are stored in plain form.
type SealingConfig struct {
	Passphrase string
	Salt       string
}

// AuthConfig holds token validation settings.
type AuthConfig struct {
	JWTSigningKey string
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
}

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Ledger   LedgerConfig
	Skills   SkillsConfig
	Sealing  SealingConfig
	Auth     AuthConfig
}

// FromEnv builds the full configuration from environment variables.
func FromEnv() Config {
	return Config{
		Server: ServerConfig{
			Addr:            getEnv("ATTESTOR_ADDR", ":8080"),
			ReadTimeout:     getDuration("ATTESTOR_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDuration("ATTESTOR_WRITE_TIMEOUT", 30*time.Second),
			RequestTimeout:  getDuration("ATTESTOR_REQUEST_TIMEOUT", 25*time.Second),
			MaxBodyBytes:    getInt64("ATTESTOR_MAX_BODY_BYTES", 1<<20),
			ShutdownTimeout: getDuration("ATTESTOR_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			StatusTTL:    getDuration("REDIS_STATUS_TTL", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    os.Getenv("KAFKA_BROKERS"),
			AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "attestor.audit"),
		},
		Ledger: LedgerConfig{
			BaseURL:       os.Getenv("LEDGER_GATEWAY_URL"),
			APIKey:        os.Getenv("LEDGER_API_KEY"),
			IssuerRef:     os.Getenv("LEDGER_ISSUER_REF"),
			ConfirmWindow: getDuration("LEDGER_CONFIRM_WINDOW", 30*time.Second),
			PollInterval:  getDuration("LEDGER_POLL_INTERVAL", 2*time.Second),
		},
		Skills: SkillsConfig{
			BaseURL:  os.Getenv("SKILLS_SERVICE_URL"),
			APIKey:   os.Getenv("SKILLS_API_KEY"),
			Timeout:  getDuration("SKILLS_TIMEOUT", 10*time.Second),
			Required: os.Getenv("SKILLS_REQUIRED") == "true",
		},
		Sealing: SealingConfig{
			Passphrase: os.Getenv("SEALING_PASSPHRASE"),
			Salt:       os.Getenv("SEALING_SALT"),
		},
		Auth: AuthConfig{
			JWTSigningKey: getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:        getEnv("JWT_ISSUER", "https://attestor.local"),
			Audience:      getEnv("JWT_AUDIENCE", "attestor-api"),
			TokenTTL:      getDuration("TOKEN_TTL", 15*time.Minute),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
