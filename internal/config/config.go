package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the newsletter service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	SES        SESConfig        `yaml:"ses"`
	Newsletter NewsletterConfig `yaml:"newsletter"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port        int    `yaml:"port"`
	Host        string `yaml:"host"`
	Environment string `yaml:"environment"` // "production" or "development"
}

// GetHost returns the server host, with container detection.
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Production reports whether error responses should be non-leaking.
func (c ServerConfig) Production() bool {
	return c.Environment != "development"
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	ConnMaxIdleSecs int    `yaml:"conn_max_idle_secs"`
}

// RedisConfig holds the read-cache connection settings. An empty Addr
// disables redis; the service falls back to the in-memory cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SESConfig holds AWS SES credentials for the confirmation mailer.
type SESConfig struct {
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

// NewsletterConfig holds the tunables of the subscription core. None of these
// are correctness requirements; they bound staleness and memory.
type NewsletterConfig struct {
	TokenTTLHours       int    `yaml:"token_ttl_hours"`        // confirmation token lifetime
	CacheTTLSeconds     int    `yaml:"cache_ttl_seconds"`      // listing read cache
	SyncIntervalSeconds int    `yaml:"sync_interval_seconds"`  // unsubscribe registry re-sync
	SweepIntervalMins   int    `yaml:"sweep_interval_minutes"` // token fallback eviction
	StoreTimeoutMillis  int    `yaml:"store_timeout_millis"`   // per external call
	RequestTimeoutSecs  int    `yaml:"request_timeout_secs"`   // overall request deadline
	BackupFilePath      string `yaml:"backup_file_path"`       // append-only file fallback
	ConfirmBaseURL      string `yaml:"confirm_base_url"`       // link base for confirmation emails
	BrandName           string `yaml:"brand_name"`
}

// TokenTTL returns the confirmation token lifetime as a duration.
func (c NewsletterConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

// CacheTTL returns the read-cache TTL as a duration.
func (c NewsletterConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// SyncInterval returns the registry re-sync interval as a duration.
func (c NewsletterConfig) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSeconds) * time.Second
}

// SweepInterval returns the token fallback sweep interval as a duration.
func (c NewsletterConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMins) * time.Minute
}

// StoreTimeout returns the per-store call timeout as a duration.
func (c NewsletterConfig) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutMillis) * time.Millisecond
}

// RequestTimeout returns the caller-facing operation deadline.
func (c NewsletterConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// Load reads configuration from a YAML file and applies defaults. A missing
// file is not an error: everything can be supplied via env overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		var cfg Config
		applyDefaults(&cfg)
		return &cfg, nil
	}
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Environment == "" {
		cfg.Server.Environment = "production"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.ConnMaxIdleSecs == 0 {
		cfg.Database.ConnMaxIdleSecs = 60
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-west-2"
	}
	if cfg.Newsletter.TokenTTLHours == 0 {
		cfg.Newsletter.TokenTTLHours = 24
	}
	if cfg.Newsletter.CacheTTLSeconds == 0 {
		cfg.Newsletter.CacheTTLSeconds = 30
	}
	if cfg.Newsletter.SyncIntervalSeconds == 0 {
		cfg.Newsletter.SyncIntervalSeconds = 60
	}
	if cfg.Newsletter.SweepIntervalMins == 0 {
		cfg.Newsletter.SweepIntervalMins = 15
	}
	if cfg.Newsletter.StoreTimeoutMillis == 0 {
		cfg.Newsletter.StoreTimeoutMillis = 2000
	}
	if cfg.Newsletter.RequestTimeoutSecs == 0 {
		cfg.Newsletter.RequestTimeoutSecs = 5
	}
	if cfg.Newsletter.BackupFilePath == "" {
		cfg.Newsletter.BackupFilePath = "data/newsletter-backup.jsonl"
	}
	if cfg.Newsletter.BrandName == "" {
		cfg.Newsletter.BrandName = "Maison Doré"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if db := os.Getenv("REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			cfg.Redis.DB = n
		}
	}
	if accessKey := os.Getenv("AWS_SES_ACCESS_KEY"); accessKey != "" {
		cfg.SES.AccessKey = accessKey
	}
	if secretKey := os.Getenv("AWS_SES_SECRET_KEY"); secretKey != "" {
		cfg.SES.SecretKey = secretKey
	}
	if region := os.Getenv("AWS_SES_REGION"); region != "" {
		cfg.SES.Region = region
	}
	if from := os.Getenv("SES_FROM_EMAIL"); from != "" {
		cfg.SES.FromEmail = from
	}
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		cfg.Server.Environment = env
	}
	if base := os.Getenv("CONFIRM_BASE_URL"); base != "" {
		cfg.Newsletter.ConfirmBaseURL = base
	}
	if path := os.Getenv("BACKUP_FILE_PATH"); path != "" {
		cfg.Newsletter.BackupFilePath = path
	}

	return cfg, nil
}
