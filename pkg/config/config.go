// Package config loads photoroom settings from a TOML file and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sternrassler/photoroom-client/pkg/batch"
	"github.com/Sternrassler/photoroom-client/pkg/client"
	"github.com/Sternrassler/photoroom-client/pkg/logging"
	"github.com/Sternrassler/photoroom-client/pkg/ratelimit"
	"github.com/Sternrassler/photoroom-client/pkg/retry"
	"github.com/Sternrassler/photoroom-client/pkg/storage"
	"github.com/Sternrassler/photoroom-client/pkg/validation"
	"github.com/pelletier/go-toml/v2"
	"github.com/redis/go-redis/v9"
)

// Environment overrides.
const (
	EnvAPIKey    = client.APIKeyEnv
	EnvRedisAddr = "PHOTOROOM_REDIS_ADDR"
	EnvLogLevel  = "PHOTOROOM_LOG_LEVEL"
)

// Duration is a time.Duration written as "1.5s" or "2m" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config holds all application configuration
type Config struct {
	API        APIConfig        `toml:"api"`
	Retry      RetryConfig      `toml:"retry"`
	RateLimit  RateLimitConfig  `toml:"rate_limit"`
	Batch      BatchConfig      `toml:"batch"`
	Validation ValidationConfig `toml:"validation"`
	Redis      RedisConfig      `toml:"redis"`
	Storage    StorageConfig    `toml:"storage"`
	Log        LogConfig        `toml:"log"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

// APIConfig holds PhotoRoom API settings
type APIConfig struct {
	Key             string   `toml:"key"`
	SDKBaseURL      string   `toml:"sdk_base_url"`
	ImageAPIBaseURL string   `toml:"image_api_base_url"`
	UserAgent       string   `toml:"user_agent"`
	Timeout         Duration `toml:"timeout"`
}

// RetryConfig holds retry settings
type RetryConfig struct {
	MaxRetries           int      `toml:"max_retries"`
	BackoffFactor        float64  `toml:"backoff_factor"`
	RetryableStatusCodes []int    `toml:"retryable_status_codes"`
	MaxBackoff           Duration `toml:"max_backoff"`
	Jitter               bool     `toml:"jitter"`
}

// RateLimitConfig holds client-side rate limit settings; Rate 0 disables it
type RateLimitConfig struct {
	Rate             float64 `toml:"rate"`
	Burst            float64 `toml:"burst"`
	Strategy         string  `toml:"strategy"`
	LimitEachAttempt bool    `toml:"limit_each_attempt"`
	Shared           bool    `toml:"shared"`
	Key              string  `toml:"key"`
}

// BatchConfig holds batch settings
type BatchConfig struct {
	Concurrency   int    `toml:"concurrency"`
	OnError       string `toml:"on_error"`
	OutputDir     string `toml:"output_dir"`
	OutputPattern string `toml:"output_pattern"`
}

// ValidationConfig holds pre-upload image checks
type ValidationConfig struct {
	Enabled     bool `toml:"enabled"`
	AutoResize  bool `toml:"auto_resize"`
	AutoConvert bool `toml:"auto_convert"`
}

// RedisConfig enables the result cache and the shared rate limit bucket
type RedisConfig struct {
	Addr     string   `toml:"addr"`
	Password string   `toml:"password"`
	DB       int      `toml:"db"`
	CacheTTL Duration `toml:"cache_ttl"`
}

// StorageConfig sends batch outputs to S3-compatible storage instead of a directory
type StorageConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Location  string `toml:"location"`
	Prefix    string `toml:"prefix"`
	UseSSL    bool   `toml:"use_ssl"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

// MetricsConfig holds the optional metrics/health listener
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	r := retry.DefaultConfig()
	return &Config{
		API: APIConfig{
			SDKBaseURL:      client.DefaultSDKBaseURL,
			ImageAPIBaseURL: client.DefaultImageAPIBaseURL,
			UserAgent:       client.DefaultUserAgent,
			Timeout:         Duration{client.DefaultTimeout},
		},
		Retry: RetryConfig{
			MaxRetries:           r.MaxRetries,
			BackoffFactor:        r.BackoffFactor,
			RetryableStatusCodes: r.RetryableStatusCodes,
			MaxBackoff:           Duration{r.MaxBackoff},
			Jitter:               r.Jitter,
		},
		RateLimit: RateLimitConfig{
			Strategy: string(ratelimit.StrategyWait),
			Key:      ratelimit.RedisKeyBucket,
		},
		Batch: BatchConfig{
			Concurrency:   client.DefaultBatchConcurrency,
			OnError:       string(batch.Continue),
			OutputPattern: batch.DefaultPattern,
		},
		Validation: ValidationConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level: string(logging.LevelInfo),
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults,
// then applies environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(ExpandPath(path))
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.ApplyEnv()
	cfg.Batch.OutputDir = ExpandPath(cfg.Batch.OutputDir)

	return cfg, nil
}

// ApplyEnv overrides file values with PHOTOROOM_* variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.API.Key = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if _, err := retry.NewPolicy(c.retryConfig()); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if c.RateLimit.Rate < 0 {
		return fmt.Errorf("rate_limit.rate must be >= 0 (got %v)", c.RateLimit.Rate)
	}
	if c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit.burst must be >= 0 (got %v)", c.RateLimit.Burst)
	}
	if _, ok := ratelimit.ParseStrategy(c.RateLimit.Strategy); !ok {
		return fmt.Errorf("rate_limit.strategy must be wait or error (got %q)", c.RateLimit.Strategy)
	}
	if c.RateLimit.Shared && c.Redis.Addr == "" {
		return fmt.Errorf("rate_limit.shared requires redis.addr")
	}
	if c.Redis.CacheTTL.Duration > 0 && c.Redis.Addr == "" {
		return fmt.Errorf("redis.cache_ttl requires redis.addr")
	}
	if c.Batch.Concurrency < 1 {
		return fmt.Errorf("batch.concurrency must be >= 1 (got %d)", c.Batch.Concurrency)
	}
	if _, err := batch.ParseErrorStrategy(c.Batch.OnError); err != nil {
		return fmt.Errorf("batch.on_error: %w", err)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Storage.Endpoint != "" && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage.endpoint is set")
	}
	return nil
}

func (c *Config) retryConfig() retry.Config {
	return retry.Config{
		MaxRetries:           c.Retry.MaxRetries,
		BackoffFactor:        c.Retry.BackoffFactor,
		RetryableStatusCodes: c.Retry.RetryableStatusCodes,
		MaxBackoff:           c.Retry.MaxBackoff.Duration,
		Jitter:               c.Retry.Jitter,
	}
}

// RedisOptions returns connection options, nil when Redis is not configured.
func (c *Config) RedisOptions() *redis.Options {
	if c.Redis.Addr == "" {
		return nil
	}
	return &redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}
}

// ClientConfig converts c to a client.Config. redisClient may be nil.
func (c *Config) ClientConfig(redisClient *redis.Client) client.Config {
	cc := client.DefaultConfig(c.API.Key)
	cc.SDKBaseURL = c.API.SDKBaseURL
	cc.ImageAPIBaseURL = c.API.ImageAPIBaseURL
	cc.UserAgent = c.API.UserAgent
	cc.Timeout = c.API.Timeout.Duration
	cc.Retry = c.retryConfig()

	cc.RateLimit = ratelimit.Config{
		Rate:     c.RateLimit.Rate,
		Capacity: c.RateLimit.Burst,
		Strategy: ratelimit.Strategy(c.RateLimit.Strategy),
	}
	cc.LimitEachAttempt = c.RateLimit.LimitEachAttempt
	cc.RateLimitKey = c.RateLimit.Key

	if redisClient != nil {
		cc.Redis = redisClient
		cc.CacheTTL = c.Redis.CacheTTL.Duration
		if !c.RateLimit.Shared {
			cc.RateLimitKey = ""
		}
	}

	cc.ValidateImages = c.Validation.Enabled
	cc.Validation = validation.DefaultOptions()
	cc.Validation.AutoResize = c.Validation.AutoResize
	cc.Validation.AutoConvert = c.Validation.AutoConvert

	return cc
}

// BatchOptions converts the [batch] section.
func (c *Config) BatchOptions() client.BatchOptions {
	opts := client.DefaultBatchOptions()
	opts.Concurrency = c.Batch.Concurrency
	if strategy, err := batch.ParseErrorStrategy(c.Batch.OnError); err == nil {
		opts.OnError = strategy
	}
	opts.OutputDir = c.Batch.OutputDir
	if c.Batch.OutputPattern != "" {
		opts.OutputPattern = c.Batch.OutputPattern
	}
	return opts
}

// MinioConfig returns the storage settings, ok false when storage is not configured.
func (c *Config) MinioConfig() (storage.MinioConfig, bool) {
	if c.Storage.Endpoint == "" {
		return storage.MinioConfig{}, false
	}
	return storage.MinioConfig{
		Endpoint:  c.Storage.Endpoint,
		AccessKey: c.Storage.AccessKey,
		SecretKey: c.Storage.SecretKey,
		Bucket:    c.Storage.Bucket,
		Location:  c.Storage.Location,
		Prefix:    c.Storage.Prefix,
		UseSSL:    c.Storage.UseSSL,
	}, true
}

// LoggingConfig converts the [log] section; unknown levels fall back to info.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.Log.Level); err == nil {
		cfg.Level = level
	}
	cfg.Pretty = c.Log.Pretty
	return cfg
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "photoroom", "config.toml")
}
