// Package client provides the PhotoRoom HTTP client with rate limiting,
// retries, result caching, image validation, and batch helpers.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/photoroom-client/pkg/batch"
	"github.com/Sternrassler/photoroom-client/pkg/cache"
	"github.com/Sternrassler/photoroom-client/pkg/executor"
	"github.com/Sternrassler/photoroom-client/pkg/ratelimit"
	"github.com/Sternrassler/photoroom-client/pkg/retry"
	"github.com/Sternrassler/photoroom-client/pkg/validation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// API endpoints and defaults.
const (
	DefaultSDKBaseURL      = "https://sdk.photoroom.com"
	DefaultImageAPIBaseURL = "https://image-api.photoroom.com"
	DefaultUserAgent       = "photoroom-go/1.0"
	DefaultTimeout         = 120 * time.Second

	// APIKeyEnv is read when Config.APIKey is empty.
	APIKeyEnv = "PHOTOROOM_API_KEY"

	PathSegment = "/v1/segment"
	PathEdit    = "/v2/edit"
	PathAccount = "/v2/account"

	sandboxPrefix = "sandbox_"
)

// Prometheus metrics for PhotoRoom client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photoroom_requests_total",
		Help: "Total PhotoRoom requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "photoroom_request_duration_seconds",
		Help:    "PhotoRoom request duration in seconds by endpoint, including retries",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photoroom_errors_total",
		Help: "Total PhotoRoom errors by class",
	}, []string{"class"})
)

// Client is the PhotoRoom API client. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	redis      *redis.Client
	limiter    *ratelimit.Limiter
	executor   *executor.Executor
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// APIKey is sent as X-Api-Key. Empty means read PHOTOROOM_API_KEY.
	APIKey string

	UserAgent string

	// Base URLs; /v1/segment lives on the SDK host, /v2 on the image API host.
	SDKBaseURL      string
	ImageAPIBaseURL string

	// Timeout applies to each HTTP attempt.
	Timeout time.Duration

	// Retry
	Retry retry.Config

	// Rate Limiting
	RateLimit ratelimit.Config

	// LimitEachAttempt charges the limiter for every retry, not only the first attempt.
	LimitEachAttempt bool

	// Redis enables the shared rate limit bucket and the result cache.
	Redis *redis.Client

	// RateLimitKey is the Redis key of the shared bucket. Empty keeps the
	// bucket in process memory even when Redis is set.
	RateLimitKey string

	// CacheTTL keeps processed images in Redis; 0 disables the cache.
	CacheTTL time.Duration

	// Validation
	ValidateImages bool
	Validation     validation.Options

	// HTTPClient replaces the default client; Timeout is then ignored.
	HTTPClient *http.Client
}

// DefaultConfig returns a configuration with retries, validation and no
// rate limit.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:          apiKey,
		UserAgent:       DefaultUserAgent,
		SDKBaseURL:      DefaultSDKBaseURL,
		ImageAPIBaseURL: DefaultImageAPIBaseURL,
		Timeout:         DefaultTimeout,
		Retry:           retry.DefaultConfig(),
		RateLimit:       ratelimit.DefaultConfig(),
		RateLimitKey:    ratelimit.RedisKeyBucket,
		ValidateImages:  true,
		Validation:      validation.DefaultOptions(),
	}
}

// New creates a new PhotoRoom client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(APIKeyEnv)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: pass it in Config or set %s", ErrMissingAPIKey, APIKeyEnv)
	}

	if cfg.CacheTTL > 0 && cfg.Redis == nil {
		return nil, fmt.Errorf("redis client is required when cache_ttl is set")
	}
	if cfg.CacheTTL < 0 {
		return nil, fmt.Errorf("cache_ttl must be >= 0 (got %s)", cfg.CacheTTL)
	}

	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.SDKBaseURL == "" {
		cfg.SDKBaseURL = DefaultSDKBaseURL
	}
	if cfg.ImageAPIBaseURL == "" {
		cfg.ImageAPIBaseURL = DefaultImageAPIBaseURL
	}
	cfg.SDKBaseURL = strings.TrimRight(cfg.SDKBaseURL, "/")
	cfg.ImageAPIBaseURL = strings.TrimRight(cfg.ImageAPIBaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	// Initialize logger
	logger := log.With().Str("component", "photoroom-client").Logger()

	policy, err := retry.NewPolicy(cfg.Retry)
	if err != nil {
		return nil, fmt.Errorf("retry config: %w", err)
	}

	limiter, err := newLimiter(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("rate limit config: %w", err)
	}

	exec := executor.NewWithOptions(policy, limiter, executor.Options{
		LimitEachAttempt: cfg.LimitEachAttempt,
	}, logger)

	var cacheManager *cache.Manager
	if cfg.CacheTTL > 0 {
		cacheManager = cache.NewManager(cfg.Redis)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	c := &Client{
		httpClient: httpClient,
		redis:      cfg.Redis,
		limiter:    limiter,
		executor:   exec,
		cache:      cacheManager,
		config:     cfg,
		logger:     logger,
	}

	if c.IsSandbox() {
		logger.Warn().Msg("Using a sandbox API key; some features may be unavailable, use a production key for full access")
	}

	return c, nil
}

// newLimiter uses the shared Redis bucket when Redis and a key are configured.
func newLimiter(cfg Config, logger zerolog.Logger) (*ratelimit.Limiter, error) {
	if cfg.RateLimit.Rate <= 0 {
		return ratelimit.New(cfg.RateLimit, logger)
	}
	if cfg.Redis == nil || cfg.RateLimitKey == "" {
		return ratelimit.New(cfg.RateLimit, logger)
	}
	bucket := ratelimit.NewRedisBucket(cfg.Redis, cfg.RateLimitKey, cfg.RateLimit.Rate, cfg.RateLimit.Capacity, logger)
	return ratelimit.NewWithBucket(cfg.RateLimit, bucket, logger)
}

// IsSandbox reports whether the API key is a sandbox key.
func (c *Client) IsSandbox() bool {
	return strings.HasPrefix(c.config.APIKey, sandboxPrefix)
}

// Limiter returns the client's rate limiter; nil-safe methods apply when disabled.
func (c *Client) Limiter() *ratelimit.Limiter {
	return c.limiter
}

// Executor returns the executor every request runs through.
func (c *Client) Executor() *executor.Executor {
	return c.executor
}

// Close releases idle connections. The Redis client belongs to the caller.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// GetCache returns the cache manager, nil when caching is disabled.
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}

// requestSpec describes a request; it is rebuilt for every attempt so the
// body can be replayed.
type requestSpec struct {
	method      string
	url         string
	contentType string
	body        []byte
}

type rawResponse struct {
	status int
	header http.Header
	body   []byte
}

// send runs one logical request through the executor: rate limit, attempts,
// backoff between retryable failures.
func (c *Client) send(ctx context.Context, endpoint string, spec requestSpec) (*rawResponse, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	return executor.Execute(ctx, c.executor, func(ctx context.Context) (*rawResponse, error) {
		return c.attempt(ctx, endpoint, spec)
	})
}

// attempt performs a single HTTP exchange. Status >= 400 becomes *APIError;
// transport and body read failures are marked as network errors.
func (c *Client) attempt(ctx context.Context, endpoint string, spec requestSpec) (*rawResponse, error) {
	var body io.Reader
	if spec.body != nil {
		body = bytes.NewReader(spec.body)
	}

	// Step 1: Build request
	req, err := http.NewRequestWithContext(ctx, spec.method, spec.url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	// Step 2: Set headers
	req.Header.Set("X-Api-Key", c.config.APIKey)
	req.Header.Set("User-Agent", c.config.UserAgent)
	if spec.contentType != "" {
		req.Header.Set("Content-Type", spec.contentType)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", spec.method).
		Int("body_bytes", len(spec.body)).
		Msg("Executing PhotoRoom request")

	// Step 3: Execute
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s %s: %w", spec.method, endpoint, ctxErr)
		}
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		errorsTotal.WithLabelValues(string(retry.ClassNetwork)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, retry.Network(fmt.Errorf("%s %s: %w", spec.method, endpoint, err))
	}
	defer resp.Body.Close()

	// Step 4: Read body
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(retry.ClassNetwork)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, retry.Network(fmt.Errorf("read response body: %w", err))
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	// Step 5: Handle HTTP errors
	if resp.StatusCode >= 400 {
		apiErr := ParseErrorResponse(resp.StatusCode, data)
		errorsTotal.WithLabelValues(string(apiErr.Class)).Inc()

		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(apiErr.Class)).
			Str("message", apiErr.Message).
			Msg("PhotoRoom request error")

		return nil, apiErr
	}

	return &rawResponse{
		status: resp.StatusCode,
		header: resp.Header,
		body:   data,
	}, nil
}

// loadImage reads and, if enabled, validates an input image.
// fallbackName is used for raw bytes without a name.
func (c *Client) loadImage(in batch.Input, fallbackName string) ([]byte, string, error) {
	if in.IsFile() {
		data, err := validation.LoadFile(in.Path, c.config.ValidateImages, c.config.Validation)
		if err != nil {
			return nil, "", err
		}
		return data, filepath.Base(in.Path), nil
	}

	name := in.Name
	if name == "" {
		name = fallbackName
	}

	if !c.config.ValidateImages {
		if len(in.Data) == 0 {
			return nil, "", fmt.Errorf("%w: image data is empty", ErrInvalidParameter)
		}
		return in.Data, name, nil
	}

	data, err := validation.Prepare(in.Data, in.Name, c.config.Validation)
	if err != nil {
		return nil, "", err
	}
	return data, name, nil
}

// cachedImage returns a cached response or nil.
func (c *Client) cachedImage(ctx context.Context, key cache.Key) *ImageResponse {
	if c.cache == nil {
		return nil
	}

	entry, err := c.cache.Get(ctx, key)
	if err != nil {
		if err != cache.ErrCacheMiss {
			c.logger.Warn().Err(err).Str("endpoint", key.Endpoint).Msg("Cache get error")
		}
		return nil
	}

	c.logger.Debug().
		Str("endpoint", key.Endpoint).
		Dur("ttl", entry.TTL()).
		Msg("Serving image from cache")

	return &ImageResponse{
		Data:     entry.Data,
		Metadata: entry.Metadata,
		Cached:   true,
	}
}

// storeImage caches resp; failures are logged and otherwise ignored.
func (c *Client) storeImage(ctx context.Context, key cache.Key, resp *ImageResponse) {
	if c.cache == nil {
		return
	}

	entry := cache.NewEntry(resp.Data, resp.Metadata, c.config.CacheTTL)
	if err := c.cache.Set(ctx, key, entry); err != nil {
		c.logger.Warn().Err(err).Str("endpoint", key.Endpoint).Msg("Failed to cache response")
		return
	}

	c.logger.Debug().
		Str("endpoint", key.Endpoint).
		Int("bytes", len(resp.Data)).
		Dur("ttl", c.config.CacheTTL).
		Msg("Cached response")
}
