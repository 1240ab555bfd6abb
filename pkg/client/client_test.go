package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/photoroom-client/internal/testutil"
	"github.com/Sternrassler/photoroom-client/pkg/batch"
	"github.com/Sternrassler/photoroom-client/pkg/ratelimit"
	"github.com/Sternrassler/photoroom-client/pkg/validation"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a test Redis client.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	// Flush test DB
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

// newTestClient points a client at mock with millisecond backoffs.
func newTestClient(t *testing.T, mock *testutil.MockPhotoRoom, mutate ...func(*Config)) *Client {
	t.Helper()

	cfg := DefaultConfig("test-key")
	cfg.SDKBaseURL = mock.URL()
	cfg.ImageAPIBaseURL = mock.URL()
	cfg.Retry.MaxBackoff = time.Millisecond
	cfg.Retry.Jitter = false
	for _, m := range mutate {
		m(&cfg)
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNew_Validation(t *testing.T) {
	t.Setenv(APIKeyEnv, "")

	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid config",
			config: DefaultConfig("key"),
		},
		{
			name:        "missing api key",
			config:      DefaultConfig(""),
			expectError: true,
			errorMsg:    "api key is required",
		},
		{
			name: "cache without redis",
			config: func() Config {
				c := DefaultConfig("key")
				c.CacheTTL = time.Hour
				return c
			}(),
			expectError: true,
			errorMsg:    "redis client is required",
		},
		{
			name: "negative retries",
			config: func() Config {
				c := DefaultConfig("key")
				c.Retry.MaxRetries = -1
				return c
			}(),
			expectError: true,
			errorMsg:    "max_retries must be >= 0",
		},
		{
			name: "zero values filled in",
			config: Config{
				APIKey: "key",
				Retry:  DefaultConfig("").Retry,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.errorMsg)
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("error = %q, want it to contain %q", err.Error(), tt.errorMsg)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if client == nil {
				t.Fatal("expected client, got nil")
			}
		})
	}
}

func TestNew_APIKeyFromEnvironment(t *testing.T) {
	t.Setenv(APIKeyEnv, "sandbox_from-env")

	c, err := New(DefaultConfig(""))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.config.APIKey != "sandbox_from-env" {
		t.Errorf("APIKey = %q, want value from %s", c.config.APIKey, APIKeyEnv)
	}
	if !c.IsSandbox() {
		t.Error("IsSandbox() = false for sandbox_ key")
	}
}

func TestNew_MissingKeyIsSentinel(t *testing.T) {
	t.Setenv(APIKeyEnv, "")

	_, err := New(DefaultConfig(""))
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("New() error = %v, want ErrMissingAPIKey", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("key")

	if cfg.Timeout != 120*time.Second {
		t.Errorf("Timeout = %v, want 120s", cfg.Timeout)
	}
	if cfg.Retry.MaxRetries != 3 {
		t.Errorf("Retry.MaxRetries = %d, want 3", cfg.Retry.MaxRetries)
	}
	if cfg.RateLimit.Rate != 0 {
		t.Errorf("RateLimit.Rate = %v, want disabled", cfg.RateLimit.Rate)
	}
	if !cfg.ValidateImages {
		t.Error("ValidateImages should default to true")
	}
	if cfg.SDKBaseURL != DefaultSDKBaseURL || cfg.ImageAPIBaseURL != DefaultImageAPIBaseURL {
		t.Errorf("base URLs = %q, %q", cfg.SDKBaseURL, cfg.ImageAPIBaseURL)
	}
}

func TestRemoveBackground_Request(t *testing.T) {
	mock := testutil.NewMockPhotoRoom()
	defer mock.Close()

	c := newTestClient(t, mock)
	image := testutil.PNG(8, 8)

	opts := DefaultRemoveBackgroundOptions()
	opts.BgColor = "white"
	opts.Crop = true

	resp, err := c.RemoveBackground(context.Background(), batch.Input{Data: image, Name: "shoe.png"}, opts)
	if err != nil {
		t.Fatalf("RemoveBackground() error = %v", err)
	}

	req, ok := mock.LastRequest()
	if !ok {
		t.Fatal("no request recorded")
	}
	if req.Method != http.MethodPost || req.Path != PathSegment {
		t.Errorf("request = %s %s, want POST %s", req.Method, req.Path, PathSegment)
	}
	if got := req.Header.Get("X-Api-Key"); got != "test-key" {
		t.Errorf("X-Api-Key = %q, want test-key", got)
	}
	if got := req.Header.Get("User-Agent"); got != DefaultUserAgent {
		t.Errorf("User-Agent = %q, want %q", got, DefaultUserAgent)
	}

	wantFields := map[string]string{
		"format":   "png",
		"channels": "rgba",
		"size":     "full",
		"bg_color": "white",
		"crop":     "true",
		"despill":  "false",
	}
	for k, v := range wantFields {
		if req.Fields[k] != v {
			t.Errorf("field %s = %q, want %q", k, req.Fields[k], v)
		}
	}
	if string(req.Files["image_file"]) != string(image) {
		t.Error("image_file part does not contain the uploaded image")
	}

	if seed, ok := resp.BackgroundSeed(); !ok || seed != 42 {
		t.Errorf("BackgroundSeed() = %d, %v, want 42", seed, ok)
	}
	if resp.ContentType() != "image/png" {
		t.Errorf("ContentType() = %q", resp.ContentType())
	}
}

func TestRemoveBackground_InvalidOptions(t *testing.T) {
	mock := testutil.NewMockPhotoRoom()
	defer mock.Close()

	c := newTestClient(t, mock)

	opts := DefaultRemoveBackgroundOptions()
	opts.Size = "huge"

	_, err := c.RemoveBackground(context.Background(), batch.Input{Data: testutil.PNG(2, 2)}, opts)
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("error = %v, want ErrInvalidParameter", err)
	}
	if mock.GetRequestCount() != 0 {
		t.Errorf("RequestCount = %d, want 0", mock.GetRequestCount())
	}
}

func TestRemoveBackground_ValidationRejectsBeforeSending(t *testing.T) {
	mock := testutil.NewMockPhotoRoom()
	defer mock.Close()

	c := newTestClient(t, mock)

	_, err := c.RemoveBackground(context.Background(), batch.Input{Data: testutil.PNG(5001, 1)}, DefaultRemoveBackgroundOptions())
	if !errors.Is(err, validation.ErrInvalidImage) {
		t.Errorf("error = %v, want validation.ErrInvalidImage", err)
	}
	if mock.GetRequestCount() != 0 {
		t.Errorf("RequestCount = %d, want 0", mock.GetRequestCount())
	}
}

func TestRemoveBackground_FromFile(t *testing.T) {
	mock := testutil.NewMockPhotoRoom()
	defer mock.Close()

	path := filepath.Join(t.TempDir(), "product.png")
	if err := os.WriteFile(path, testutil.PNG(3, 3), 0o644); err != nil {
		t.Fatal(err)
	}

	c := newTestClient(t, mock)
	if _, err := c.RemoveBackground(context.Background(), batch.Input{Path: path}, DefaultRemoveBackgroundOptions()); err != nil {
		t.Fatalf("RemoveBackground() error = %v", err)
	}

	req, _ := mock.LastRequest()
	if len(req.Files["image_file"]) == 0 {
		t.Error("file was not uploaded")
	}
}

func TestDo_RetryOnServerError(t *testing.T) {
	mock := testutil.NewMockPhotoRoom()
	defer mock.Close()

	mock.SetSequence(PathSegment,
		testutil.NewServerErrorResponse(),
		testutil.NewUnavailableResponse(),
		testutil.NewImageResponse(testutil.PNG(1, 1), nil),
	)

	c := newTestClient(t, mock)
	resp, err := c.RemoveBackground(context.Background(), batch.Input{Data: testutil.PNG(2, 2)}, DefaultRemoveBackgroundOptions())
	if err != nil {
		t.Fatalf("RemoveBackground() error = %v", err)
	}
	if resp.Size() == 0 {
		t.Error("empty response")
	}
	if got := mock.GetRequestCount(); got != 3 {
		t.Errorf("RequestCount = %d, want 3", got)
	}
}

func TestDo_NoRetryOnClientError(t *testing.T) {
	tests := []struct {
		name     string
		response testutil.MockResponse
		sentinel error
	}{
		{
			name:     "bad request",
			response: testutil.NewErrorResponse(400, "imageFile is missing"),
			sentinel: ErrBadRequest,
		},
		{
			name:     "payment required",
			response: testutil.NewErrorResponse(402, "no credits left"),
			sentinel: ErrPaymentRequired,
		},
		{
			name:     "forbidden",
			response: testutil.NewDetailErrorResponse(403, "Invalid API key"),
			sentinel: ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockPhotoRoom()
			defer mock.Close()
			mock.SetResponse(PathSegment, tt.response)

			c := newTestClient(t, mock)
			_, err := c.RemoveBackground(context.Background(), batch.Input{Data: testutil.PNG(2, 2)}, DefaultRemoveBackgroundOptions())

			if !errors.Is(err, tt.sentinel) {
				t.Errorf("error = %v, want %v", err, tt.sentinel)
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.Payload == nil {
				t.Errorf("error %v does not carry the response payload", err)
			}
			if got := mock.GetRequestCount(); got != 1 {
				t.Errorf("RequestCount = %d, want 1 (no retry)", got)
			}
		})
	}
}

func TestDo_RetryExhausted(t *testing.T) {
	mock := testutil.NewMockPhotoRoom()
	defer mock.Close()
	mock.SetResponse(PathAccount, testutil.NewUnavailableResponse())

	c := newTestClient(t, mock, func(cfg *Config) { cfg.Retry.MaxRetries = 2 })

	_, err := c.GetAccount(context.Background())
	if !errors.Is(err, ErrServer) {
		t.Fatalf("error = %v, want ErrServer", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 503 {
		t.Errorf("error = %v, want *APIError with status 503", err)
	}
	if apiErr != nil && apiErr.Message != "upstream unavailable" {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if got := mock.GetRequestCount(); got != 3 {
		t.Errorf("RequestCount = %d, want 3 (1 + 2 retries)", got)
	}
}

// testTransport fails the first failures round trips with a transport error.
type testTransport struct {
	failures int32
	calls    atomic.Int32
	next     http.RoundTripper
}

func (t *testTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.calls.Add(1) <= t.failures {
		return nil, io.ErrUnexpectedEOF
	}
	return t.next.RoundTrip(req)
}

func TestDo_RetryOnNetworkError(t *testing.T) {
	mock := testutil.NewMockPhotoRoom()
	defer mock.Close()

	transport := &testTransport{failures: 2, next: http.DefaultTransport}
	c := newTestClient(t, mock, func(cfg *Config) {
		cfg.HTTPClient = &http.Client{Transport: transport}
	})

	if _, err := c.GetAccount(context.Background()); err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if got := transport.calls.Load(); got != 3 {
		t.Errorf("round trips = %d, want 3", got)
	}
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("RequestCount = %d, want 1", got)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	mock := testutil.NewMockPhotoRoom()
	defer mock.Close()
	mock.SetResponse(PathAccount, testutil.MockResponse{StatusCode: 200, Delay: 200 * time.Millisecond})

	c := newTestClient(t, mock)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.GetAccount(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
}

func TestDo_RateLimitErrorStrategy(t *testing.T) {
	mock := testutil.NewMockPhotoRoom()
	defer mock.Close()

	c := newTestClient(t, mock, func(cfg *Config) {
		cfg.RateLimit = ratelimit.Config{Rate: 0.5, Capacity: 1, Strategy: ratelimit.StrategyError}
	})

	if _, err := c.GetAccount(context.Background()); err != nil {
		t.Fatalf("first GetAccount() error = %v", err)
	}

	_, err := c.GetAccount(context.Background())
	if !errors.Is(err, ratelimit.ErrRateLimitExceeded) {
		t.Errorf("second GetAccount() error = %v, want ErrRateLimitExceeded", err)
	}
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("RequestCount = %d, want 1", got)
	}
}

func TestGetAccount(t *testing.T) {
	mock := testutil.NewMockPhotoRoom()
	defer mock.Close()
	mock.SetResponse(PathAccount, testutil.NewAccountResponse("Basic", 40, 250))

	c := newTestClient(t, mock)
	info, err := c.GetAccount(context.Background())
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}

	if info.Plan != "Basic" || info.Images.Available != 40 || info.Images.Subscription != 250 {
		t.Errorf("GetAccount() = %+v", info)
	}
	if info.Used() != 210 {
		t.Errorf("Used() = %d, want 210", info.Used())
	}

	req, _ := mock.LastRequest()
	if req.Method != http.MethodGet || req.Path != PathAccount {
		t.Errorf("request = %s %s", req.Method, req.Path)
	}
}

func TestGetAccount_MalformedBody(t *testing.T) {
	mock := testutil.NewMockPhotoRoom()
	defer mock.Close()
	mock.SetResponse(PathAccount, testutil.MockResponse{StatusCode: 200, Body: []byte("not json")})

	c := newTestClient(t, mock)
	if _, err := c.GetAccount(context.Background()); err == nil {
		t.Error("GetAccount() error = nil for malformed body")
	}
}

func TestEditImage_Upload(t *testing.T) {
	mock := testutil.NewMockPhotoRoom()
	defer mock.Close()
	mock.SetResponse(PathEdit, testutil.NewImageResponse(testutil.PNG(2, 2), map[string]string{
		HeaderEditFurtherURL:        "https://app.photoroom.com/edit/123",
		HeaderUnsupportedAttributes: "lighting.mode, shadow.mode",
	}))

	c := newTestClient(t, mock)

	background := batch.Input{Data: testutil.PNG(4, 4), Name: "beach.png"}
	resp, err := c.EditImage(context.Background(), EditRequest{
		Image:           batch.Input{Data: testutil.PNG(6, 6)},
		BackgroundImage: &background,
		Params: EditParams{}.
			Set("shadow_mode", "ai.soft").
			Set("padding", 0.1).
			Set("background_seed", 7).
			Set("export_format", "webp"),
	})
	if err != nil {
		t.Fatalf("EditImage() error = %v", err)
	}

	req, _ := mock.LastRequest()
	if req.Method != http.MethodPost || req.Path != PathEdit {
		t.Errorf("request = %s %s", req.Method, req.Path)
	}

	wantFields := map[string]string{
		"removeBackground": "true",
		"export.format":    "webp",
		"shadow.mode":      "ai.soft",
		"padding":          "0.1",
		"background.seed":  "7",
	}
	for k, v := range wantFields {
		if req.Fields[k] != v {
			t.Errorf("field %s = %q, want %q", k, req.Fields[k], v)
		}
	}
	if len(req.Files["imageFile"]) == 0 {
		t.Error("imageFile part missing")
	}
	if len(req.Files["background.imageFile"]) == 0 {
		t.Error("background.imageFile part missing")
	}

	if resp.EditFurtherURL() != "https://app.photoroom.com/edit/123" {
		t.Errorf("EditFurtherURL() = %q", resp.EditFurtherURL())
	}
	if attrs := resp.UnsupportedAttributes(); len(attrs) != 2 || attrs[1] != "shadow.mode" {
		t.Errorf("UnsupportedAttributes() = %v", attrs)
	}
}

func TestEditImage_ByURL(t *testing.T) {
	mock := testutil.NewMockPhotoRoom()
	defer mock.Close()

	c := newTestClient(t, mock)
	_, err := c.EditImage(context.Background(), EditRequest{
		ImageURL: "https://example.com/cat.jpg",
		Params:   EditParams{"background_prompt": "on a beach at sunset", "remove_background": ""},
	})
	if err != nil {
		t.Fatalf("EditImage() error = %v", err)
	}

	req, _ := mock.LastRequest()
	if req.Method != http.MethodGet {
		t.Errorf("Method = %s, want GET", req.Method)
	}
	if got := req.Query["imageUrl"]; len(got) != 1 || got[0] != "https://example.com/cat.jpg" {
		t.Errorf("imageUrl = %v", got)
	}
	if got := req.Query["background.prompt"]; len(got) != 1 || got[0] != "on a beach at sunset" {
		t.Errorf("background.prompt = %v", got)
	}
	if _, ok := req.Query["removeBackground"]; ok {
		t.Error("removeBackground default was not dropped")
	}
}

func TestEditImage_Validation(t *testing.T) {
	mock := testutil.NewMockPhotoRoom()
	defer mock.Close()

	c := newTestClient(t, mock)
	bg := batch.Input{Data: testutil.PNG(1, 1)}

	tests := []struct {
		name string
		req  EditRequest
	}{
		{name: "no image", req: EditRequest{}},
		{name: "both image and url", req: EditRequest{Image: batch.Input{Data: testutil.PNG(1, 1)}, ImageURL: "https://x/y.png"}},
		{name: "background upload with url", req: EditRequest{ImageURL: "https://x/y.png", BackgroundImage: &bg}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.EditImage(context.Background(), tt.req); !errors.Is(err, ErrInvalidParameter) {
				t.Errorf("EditImage() error = %v, want ErrInvalidParameter", err)
			}
		})
	}
	if mock.GetRequestCount() != 0 {
		t.Errorf("RequestCount = %d, want 0", mock.GetRequestCount())
	}
}

func TestEditImage_UpscaleDimensions(t *testing.T) {
	mock := testutil.NewMockPhotoRoom()
	defer mock.Close()

	c := newTestClient(t, mock)
	_, err := c.EditImage(context.Background(), EditRequest{
		Image:  batch.Input{Data: testutil.PNG(600, 10)},
		Params: EditParams{"upscale_mode": "ai.slow"},
	})
	if !errors.Is(err, validation.ErrInvalidImage) {
		t.Errorf("EditImage() error = %v, want validation.ErrInvalidImage", err)
	}
	if mock.GetRequestCount() != 0 {
		t.Errorf("RequestCount = %d, want 0", mock.GetRequestCount())
	}
}

func TestBatchRemoveBackground(t *testing.T) {
	mock := testutil.NewMockPhotoRoom()
	defer mock.Close()

	// Images named "bad" are rejected by the API.
	mock.SetHandler(PathSegment, func(w http.ResponseWriter, r *http.Request) {
		_, header, err := r.FormFile("image_file")
		if err == nil && strings.HasPrefix(header.Filename, "bad") {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"detail": "unreadable image"}`))
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(testutil.PNG(1, 1))
	})

	c := newTestClient(t, mock)
	inputs := []batch.Input{
		{Data: testutil.PNG(2, 2), Name: "a.png"},
		{Data: testutil.PNG(2, 2), Name: "bad.png"},
		{Data: testutil.PNG(2, 2), Name: "c.png"},
		{Data: testutil.PNG(2, 2)},
	}

	bopts := DefaultBatchOptions()
	bopts.OutputDir = t.TempDir()

	result, err := c.BatchRemoveBackground(context.Background(), inputs, DefaultRemoveBackgroundOptions(), bopts)
	if err != nil {
		t.Fatalf("BatchRemoveBackground() error = %v", err)
	}

	if result.Total() != 4 || result.SuccessfulCount() != 3 || result.FailedCount() != 1 {
		t.Errorf("result = %s", result)
	}

	failed := result.Failed()
	if len(failed) != 1 || failed[0].Index != 1 || !errors.Is(failed[0].Err, ErrBadRequest) {
		t.Errorf("Failed() = %+v", failed)
	}

	for _, name := range []string{"0_a.png", "2_c.png", "3_image_3.png"} {
		if _, err := os.Stat(filepath.Join(bopts.OutputDir, name)); err != nil {
			t.Errorf("missing output %s: %v", name, err)
		}
	}
}

func TestBatchEditImage_FailFast(t *testing.T) {
	mock := testutil.NewMockPhotoRoom()
	defer mock.Close()
	mock.SetResponse(PathEdit, testutil.NewErrorResponse(402, "no credits left"))

	c := newTestClient(t, mock)

	bopts := DefaultBatchOptions()
	bopts.Concurrency = 1
	bopts.OnError = batch.FailFast

	inputs := batch.FromBytes(testutil.PNG(1, 1), testutil.PNG(1, 1), testutil.PNG(1, 1))
	result, err := c.BatchEditImage(context.Background(), inputs, EditRequest{}, bopts)

	if result != nil {
		t.Errorf("result = %v, want nil on abort", result)
	}
	var abort *batch.AbortError
	if !errors.As(err, &abort) || abort.Index != 0 {
		t.Fatalf("error = %v, want *batch.AbortError at index 0", err)
	}
	if !errors.Is(err, ErrPaymentRequired) {
		t.Errorf("error = %v, want to wrap ErrPaymentRequired", err)
	}
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("RequestCount = %d, want 1", got)
	}
}

func TestResultCache(t *testing.T) {
	redisClient := setupTestRedis(t)

	mock := testutil.NewMockPhotoRoom()
	defer mock.Close()

	c := newTestClient(t, mock, func(cfg *Config) {
		cfg.Redis = redisClient
		cfg.CacheTTL = time.Minute
	})

	in := batch.Input{Data: testutil.PNG(3, 3)}
	first, err := c.RemoveBackground(context.Background(), in, DefaultRemoveBackgroundOptions())
	if err != nil {
		t.Fatalf("first call error = %v", err)
	}
	second, err := c.RemoveBackground(context.Background(), in, DefaultRemoveBackgroundOptions())
	if err != nil {
		t.Fatalf("second call error = %v", err)
	}

	if !second.Cached || first.Cached {
		t.Errorf("Cached = %v, %v, want false, true", first.Cached, second.Cached)
	}
	if string(first.Data) != string(second.Data) {
		t.Error("cached data differs")
	}
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("RequestCount = %d, want 1", got)
	}

	// Different parameters miss the cache.
	opts := DefaultRemoveBackgroundOptions()
	opts.Size = "preview"
	if _, err := c.RemoveBackground(context.Background(), in, opts); err != nil {
		t.Fatal(err)
	}
	if got := mock.GetRequestCount(); got != 2 {
		t.Errorf("RequestCount = %d, want 2", got)
	}
}
