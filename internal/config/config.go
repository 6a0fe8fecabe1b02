// Package config loads search service configuration from the environment.
package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/trademart/search-service/pkg/config"
	"github.com/trademart/search-service/pkg/database"
	"github.com/trademart/search-service/pkg/tracing"
)

// Config holds all configuration for the search service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"SEARCH_HTTP_PORT" envDefault:"8010"`

	// Search engine selection (elasticsearch or memory)
	SearchEngine string `env:"SEARCH_ENGINE" envDefault:"elasticsearch"`

	// Elasticsearch
	ElasticsearchURLs       []string `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200" envSeparator:","`
	ElasticsearchUsername   string   `env:"ELASTICSEARCH_USERNAME"`
	ElasticsearchPassword   string   `env:"ELASTICSEARCH_PASSWORD"`
	ElasticsearchPrefix     string   `env:"ELASTICSEARCH_INDEX_PREFIX" envDefault:"marketplace"`
	ElasticsearchMaxRetries int      `env:"ELASTICSEARCH_MAX_RETRIES" envDefault:"3"`

	// Kafka
	KafkaBrokers    []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID    string   `env:"KAFKA_GROUP_ID" envDefault:"search-service"`
	KafkaDLQEnabled bool     `env:"KAFKA_DLQ_ENABLED" envDefault:"false"`

	// Redis, used for cross-restart event deduplication. When disabled the
	// consumers fall back to an in-process store.
	RedisEnabled   bool          `env:"REDIS_ENABLED" envDefault:"false"`
	RedisHost      string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort      int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	// PostgreSQL, read by the bulk reindex job.
	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"marketplace"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"marketplace_secret"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"marketplace"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`

	// OpenTelemetry
	TracingEnabled bool    `env:"OTEL_TRACING_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load search config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.SearchEngine != "elasticsearch" && c.SearchEngine != "memory" {
		return fmt.Errorf("invalid SEARCH_ENGINE: %q (want elasticsearch or memory)", c.SearchEngine)
	}
	if len(c.ElasticsearchURLs) == 0 {
		return fmt.Errorf("ELASTICSEARCH_URL is required")
	}
	if c.OTELSampleRate < 0.0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %g", c.OTELSampleRate)
	}
	return nil
}

// PostgresConfig builds the database pool configuration for the reindex job.
func (c *Config) PostgresConfig() database.PostgresConfig {
	pg := database.DefaultPostgresConfig()
	pg.Host = c.PostgresHost
	pg.Port = c.PostgresPort
	pg.User = c.PostgresUser
	pg.Password = c.PostgresPassword
	pg.DBName = c.PostgresDB
	pg.SSLMode = c.PostgresSSLMode
	return pg
}

// RedisConfig builds the Redis client configuration.
func (c *Config) RedisConfig() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// TracingConfig builds the OpenTelemetry configuration.
func (c *Config) TracingConfig() tracing.Config {
	cfg := tracing.DefaultConfig("search-service")
	cfg.Environment = c.Environment
	cfg.OTLPEndpoint = c.OTELEndpoint
	cfg.SampleRate = c.OTELSampleRate
	cfg.Enabled = c.TracingEnabled
	return cfg
}
