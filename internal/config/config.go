package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/fisschl/auth/pkg/config"
)

// Config holds all configuration for the auth service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"AUTH_HTTP_PORT" envDefault:"8010"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"auth"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"auth_secret"`
	PostgresDB   string `env:"AUTH_DB_NAME" envDefault:"auth_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINS" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINS" envDefault:"30"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Identity cache
	TokenCacheSize int           `env:"TOKEN_CACHE_SIZE" envDefault:"6144"`
	UserCacheSize  int           `env:"USER_CACHE_SIZE" envDefault:"1024"`
	CacheTTL       time.Duration `env:"CACHE_TTL" envDefault:"24h"`

	// Token retention and sweeping
	TokenRetention time.Duration `env:"TOKEN_RETENTION" envDefault:"1440h"` // 60 days
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"60s"`
	SweepBatchSize int           `env:"SWEEP_BATCH_SIZE" envDefault:"1024"`

	// Tracing
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load auth config: %w", err)
	}
	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid HTTP port: %d", cfg.HTTPPort)
	}
	if cfg.TokenCacheSize < 1 || cfg.UserCacheSize < 1 {
		return nil, fmt.Errorf("cache sizes must be positive: tokens=%d users=%d", cfg.TokenCacheSize, cfg.UserCacheSize)
	}
	if cfg.SweepBatchSize < 1 {
		return nil, fmt.Errorf("sweep batch size must be positive: %d", cfg.SweepBatchSize)
	}
	return cfg, nil
}
