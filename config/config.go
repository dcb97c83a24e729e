// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"bounty-escrow-system/utils"
)

// Store backends
const (
	BackendPostgres = "postgres"
	BackendLevelDB  = "leveldb"
	BackendBolt     = "bolt"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

type Config struct {
	HTTPAddr       string   `env:"HTTP_ADDR" envDefault:":5200"`
	ServiceToken   string   `env:"ESCROW_SERVICE_TOKEN,required"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	StoreBackend  string `env:"STORE_BACKEND" envDefault:"leveldb"`
	DatabaseURL   string `env:"DATABASE_URL"`
	LevelDBPath   string `env:"LEVELDB_PATH" envDefault:"./data/escrow.ldb"`
	BoltPath      string `env:"BOLT_PATH" envDefault:"./data/escrow.bolt"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"escrow:"`

	DefaultFeePercentage uint64 `env:"DEFAULT_FEE_PERCENTAGE" envDefault:"2"`

	LedgerURL           string        `env:"LEDGER_URL"`
	LedgerToken         string        `env:"LEDGER_TOKEN"`
	LedgerTimeout       time.Duration `env:"LEDGER_TIMEOUT" envDefault:"10s"`
	DispatchInterval    time.Duration `env:"DISPATCH_INTERVAL" envDefault:"10s"`
	DispatchBatch       int           `env:"DISPATCH_BATCH" envDefault:"50"`
	DispatchMaxAttempts int           `env:"DISPATCH_MAX_ATTEMPTS" envDefault:"10"`

	CloudflareAccountID string `env:"CLOUDFLARE_ACCOUNT_ID"`
	R2AccessKeyID       string `env:"R2_ACCESS_KEY_ID"`
	R2AccessKeySecret   string `env:"R2_ACCESS_KEY_SECRET"`
	R2BucketName        string `env:"R2_BUCKET_NAME"`
	R2Endpoint          string `env:"R2_ENDPOINT"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	return parse(env.Options{})
}

// FromMap parses cfg from environ only, ignoring the process environment.
func FromMap(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	for i, origin := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(origin)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the chosen backend and workers depend on.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s backend", c.StoreBackend)
		}
	case BackendLevelDB:
		if c.LevelDBPath == "" {
			return fmt.Errorf("LEVELDB_PATH is required for the %s backend", c.StoreBackend)
		}
	case BackendBolt:
		if c.BoltPath == "" {
			return fmt.Errorf("BOLT_PATH is required for the %s backend", c.StoreBackend)
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the %s backend", c.StoreBackend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.DefaultFeePercentage > 100 {
		return fmt.Errorf("DEFAULT_FEE_PERCENTAGE %d out of [0, 100]", c.DefaultFeePercentage)
	}
	if c.DispatchInterval <= 0 {
		return fmt.Errorf("DISPATCH_INTERVAL must be positive")
	}
	if c.DispatchMaxAttempts <= 0 {
		return fmt.Errorf("DISPATCH_MAX_ATTEMPTS must be positive")
	}
	if c.ArchiveEnabled() && c.CloudflareAccountID == "" && c.R2Endpoint == "" {
		return fmt.Errorf("CLOUDFLARE_ACCOUNT_ID or R2_ENDPOINT is required when R2_BUCKET_NAME is set")
	}
	return nil
}

// DispatchEnabled reports whether a ledger is configured.
func (c *Config) DispatchEnabled() bool {
	return c.LedgerURL != ""
}

// ArchiveEnabled reports whether settlement receipts are uploaded.
func (c *Config) ArchiveEnabled() bool {
	return c.R2BucketName != ""
}

func (c *Config) R2() utils.R2Config {
	return utils.R2Config{
		AccountID:       c.CloudflareAccountID,
		AccessKeyID:     c.R2AccessKeyID,
		AccessKeySecret: c.R2AccessKeySecret,
		Endpoint:        c.R2Endpoint,
	}
}
