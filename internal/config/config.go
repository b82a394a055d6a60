package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the coinscope service
type Config struct {
	Server    ServerConfig
	CoinGecko CoinGeckoConfig
	Session   SessionConfig
	Auth      AuthConfig
	Events    EventsConfig
	RateLimit RateLimitConfig
	Export    ExportConfig
	Logging   LoggingConfig
}

// ServerConfig holds server specific configuration
type ServerConfig struct {
	Port            string        `validate:"required,numeric"`
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gte=0"`
	IdleTimeout     time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
}

// CoinGeckoConfig holds configuration for the upstream market data API
type CoinGeckoConfig struct {
	BaseURL   string        `validate:"required,url"`
	Timeout   time.Duration `validate:"gt=0"`
	APIKey    string
	UserAgent string
}

// SessionConfig holds configuration for display sessions
type SessionConfig struct {
	IdleTimeout   time.Duration `validate:"gt=0"`
	SweepInterval time.Duration `validate:"gt=0"`
	MaxSessions   int           `validate:"gte=0"`
}

// AuthConfig holds session token configuration
type AuthConfig struct {
	JWTSecret     string        `validate:"required,min=16"`
	TokenDuration time.Duration `validate:"gt=0"`
}

// EventsConfig selects where controller reports are delivered
type EventsConfig struct {
	Publisher  string `validate:"oneof=log kafka"`
	BufferSize int    `validate:"gt=0"`
	Kafka      KafkaConfig
}

// KafkaConfig holds Kafka producer configuration
type KafkaConfig struct {
	Brokers        []string
	Topic          string
	ClientID       string
	MaxElapsedTime time.Duration
}

// RateLimitConfig limits requests that reach the upstream API
type RateLimitConfig struct {
	Enabled           bool
	Backend           string `validate:"oneof=memory redis"`
	RequestsPerMinute int    `validate:"gt=0"`
	BurstSize         int    `validate:"gt=0"`
	Redis             RedisConfig
}

// RedisConfig holds the connection used by the redis rate limit backend
type RedisConfig struct {
	URL       string
	KeyPrefix string
}

// ExportConfig holds configuration for CSV history exports
type ExportConfig struct {
	Storage StorageConfig
}

// StorageConfig selects the export sink
type StorageConfig struct {
	Type  string `validate:"oneof=local s3"`
	Local LocalStorageConfig
	S3    S3StorageConfig
}

// LocalStorageConfig holds local filesystem storage configuration
type LocalStorageConfig struct {
	BasePath    string
	Permissions string
}

// S3StorageConfig holds S3 storage configuration
type S3StorageConfig struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string
}

// LoggingConfig holds logging specific configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads the configuration from file and environment variables.
// A missing config file is not an error; defaults and the environment apply.
func LoadConfig(path string) (*Config, error) {
	// Optional .env file for local runs
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, statErr := os.Stat(path); !errors.Is(statErr, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Environment variables override, e.g. COINGECKO_BASEURL
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the struct tags of cfg and the cross-field rules
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if cfg.Events.Publisher == "kafka" {
		if len(cfg.Events.Kafka.Brokers) == 0 || cfg.Events.Kafka.Topic == "" {
			return errors.New("invalid config: kafka publisher needs brokers and a topic")
		}
	}

	if cfg.RateLimit.Enabled && cfg.RateLimit.Backend == "redis" && cfg.RateLimit.Redis.URL == "" {
		return errors.New("invalid config: redis rate limiting needs a url")
	}

	if cfg.Export.Storage.Type == "s3" && cfg.Export.Storage.S3.Bucket == "" {
		return errors.New("invalid config: s3 storage needs a bucket")
	}

	return nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", "10s")
	v.SetDefault("server.writeTimeout", "0s")
	v.SetDefault("server.idleTimeout", "120s")
	v.SetDefault("server.shutdownTimeout", "10s")

	// Upstream defaults
	v.SetDefault("coinGecko.baseURL", "https://api.coingecko.com/api/v3")
	v.SetDefault("coinGecko.timeout", "30s")
	v.SetDefault("coinGecko.apiKey", "")
	v.SetDefault("coinGecko.userAgent", "coinscope/1.0")

	// Session defaults
	v.SetDefault("session.idleTimeout", "30m")
	v.SetDefault("session.sweepInterval", "1m")
	v.SetDefault("session.maxSessions", 1000)

	// Auth defaults
	v.SetDefault("auth.jwtSecret", "")
	v.SetDefault("auth.tokenDuration", "24h")

	// Events defaults
	v.SetDefault("events.publisher", "log")
	v.SetDefault("events.bufferSize", 256)
	v.SetDefault("events.kafka.brokers", []string{})
	v.SetDefault("events.kafka.topic", "coinscope.events")
	v.SetDefault("events.kafka.clientID", "coinscope")
	v.SetDefault("events.kafka.maxElapsedTime", "30s")

	// Rate limit defaults
	v.SetDefault("rateLimit.enabled", false)
	v.SetDefault("rateLimit.backend", "memory")
	v.SetDefault("rateLimit.requestsPerMinute", 30)
	v.SetDefault("rateLimit.burstSize", 10)
	v.SetDefault("rateLimit.redis.url", "redis://localhost:6379/0")
	v.SetDefault("rateLimit.redis.keyPrefix", "coinscope:ratelimit")

	// Export defaults
	v.SetDefault("export.storage.type", "local")
	v.SetDefault("export.storage.local.basePath", "./exports")
	v.SetDefault("export.storage.local.permissions", "0644")
	v.SetDefault("export.storage.s3.region", "us-east-1")
	v.SetDefault("export.storage.s3.bucket", "")
	v.SetDefault("export.storage.s3.accessKey", "")
	v.SetDefault("export.storage.s3.secretKey", "")
	v.SetDefault("export.storage.s3.endpoint", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
