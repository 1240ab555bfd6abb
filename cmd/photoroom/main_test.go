package main

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sternrassler/photoroom-client/internal/testutil"
	"github.com/Sternrassler/photoroom-client/pkg/batch"
	"github.com/Sternrassler/photoroom-client/pkg/client"
	"github.com/Sternrassler/photoroom-client/pkg/config"
	"github.com/Sternrassler/photoroom-client/pkg/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// writeTestConfig points both API base URLs at the mock and keeps retries fast.
func writeTestConfig(t *testing.T, mock *testutil.MockPhotoRoom, apiKey string) string {
	t.Helper()

	t.Setenv(config.EnvAPIKey, "")
	t.Setenv(config.EnvRedisAddr, "")
	t.Setenv(config.EnvLogLevel, "")

	content := `
[api]
key = "` + apiKey + `"
sdk_base_url = "` + mock.URL() + `"
image_api_base_url = "` + mock.URL() + `"

[retry]
max_retries = 1
max_backoff = "1ms"
jitter = false

[log]
level = "disabled"
`
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func writeImages(t *testing.T, names ...string) []string {
	t.Helper()

	dir := t.TempDir()
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
		if err := os.WriteFile(paths[i], testutil.PNG(8, 8), 0o644); err != nil {
			t.Fatalf("write image: %v", err)
		}
	}
	return paths
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    client.EditParams
		wantErr bool
	}{
		{
			name:  "values",
			pairs: []string{"shadow.mode=ai.soft", "background.prompt=a marble table"},
			want:  client.EditParams{"shadow.mode": "ai.soft", "background.prompt": "a marble table"},
		},
		{
			name:  "value containing equals",
			pairs: []string{"background.prompt=x=y"},
			want:  client.EditParams{"background.prompt": "x=y"},
		},
		{
			name:  "empty value drops a default",
			pairs: []string{"remove_background="},
			want:  client.EditParams{"remove_background": ""},
		},
		{name: "missing equals", pairs: []string{"shadow.mode"}, wantErr: true},
		{name: "missing name", pairs: []string{"=value"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseParams(tt.pairs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseParams() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseParams() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("params[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestRemoveBgCommand(t *testing.T) {
	mock := testutil.NewMockPhotoRoom()
	defer mock.Close()

	cfgPath := writeTestConfig(t, mock, "sk_test")
	images := writeImages(t, "a.png", "b.png")
	outDir := t.TempDir()

	out, err := execute(t, "remove-bg", "--config", cfgPath, "-o", outDir, "--size", "hd", images[0], images[1])
	if err != nil {
		t.Fatalf("remove-bg error = %v\n%s", err, out)
	}

	if !strings.Contains(out, "2 succeeded, 0 failed") {
		t.Errorf("output missing summary:\n%s", out)
	}
	for _, name := range []string{"0_a.png", "1_b.png"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("expected output file %s: %v", name, err)
		}
	}

	req, ok := mock.LastRequest()
	if !ok {
		t.Fatal("no request recorded")
	}
	if req.Path != testutil.PathSegment {
		t.Errorf("Path = %s, want %s", req.Path, testutil.PathSegment)
	}
	if got := req.Fields["size"]; got != "hd" {
		t.Errorf("size = %q, want hd", got)
	}
}

func TestRemoveBgCommand_PartialFailure(t *testing.T) {
	mock := testutil.NewMockPhotoRoom()
	defer mock.Close()
	mock.SetResponse(testutil.PathSegment, testutil.NewErrorResponse(http.StatusBadRequest, "unsupported image"))

	cfgPath := writeTestConfig(t, mock, "sk_test")
	images := writeImages(t, "a.png")

	out, err := execute(t, "remove-bg", "--config", cfgPath, "-o", t.TempDir(), images[0])

	if !errors.Is(err, batch.ErrPartialFailure) {
		t.Errorf("error = %v, want ErrPartialFailure", err)
	}
	if !strings.Contains(out, "FAIL") || !strings.Contains(out, "unsupported image") {
		t.Errorf("output missing failure line:\n%s", out)
	}
}

func TestRemoveBgCommand_InvalidOptions(t *testing.T) {
	mock := testutil.NewMockPhotoRoom()
	defer mock.Close()

	cfgPath := writeTestConfig(t, mock, "sk_test")
	images := writeImages(t, "a.png")

	_, err := execute(t, "remove-bg", "--config", cfgPath, "--format", "gif", images[0])
	if !errors.Is(err, client.ErrInvalidParameter) {
		t.Errorf("error = %v, want ErrInvalidParameter", err)
	}
	if got := mock.GetRequestCount(); got != 0 {
		t.Errorf("RequestCount = %d, want 0", got)
	}
}

func TestEditCommand_ImageURL(t *testing.T) {
	mock := testutil.NewMockPhotoRoom()
	defer mock.Close()

	cfgPath := writeTestConfig(t, mock, "sk_test")
	output := filepath.Join(t.TempDir(), "edited.png")

	out, err := execute(t, "edit", "--config", cfgPath,
		"--image-url", "https://example.com/shoe.jpg",
		"-p", "shadow.mode=ai.soft",
		"-O", output)
	if err != nil {
		t.Fatalf("edit error = %v", err)
	}

	if _, err := os.Stat(output); err != nil {
		t.Errorf("expected output file: %v", err)
	}
	if !strings.Contains(out, "Background seed: 42") {
		t.Errorf("output missing seed:\n%s", out)
	}

	req, _ := mock.LastRequest()
	if req.Method != http.MethodGet {
		t.Errorf("Method = %s, want GET", req.Method)
	}
	if got := url.Values(req.Query).Get("shadow.mode"); got != "ai.soft" {
		t.Errorf("shadow.mode = %q, want ai.soft", got)
	}
	if got := url.Values(req.Query).Get("imageUrl"); got != "https://example.com/shoe.jpg" {
		t.Errorf("imageUrl = %q", got)
	}
}

func TestEditCommand_Files(t *testing.T) {
	mock := testutil.NewMockPhotoRoom()
	defer mock.Close()

	cfgPath := writeTestConfig(t, mock, "sk_test")
	images := writeImages(t, "a.png", "b.png", "c.png")
	outDir := t.TempDir()

	out, err := execute(t, "edit", "--config", cfgPath, "-o", outDir, "-j", "2", "-p", "padding=0.1", images[0], images[1], images[2])
	if err != nil {
		t.Fatalf("edit error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "3 succeeded") {
		t.Errorf("output missing summary:\n%s", out)
	}
	if got := mock.GetRequestCount(); got != 3 {
		t.Errorf("RequestCount = %d, want 3", got)
	}
}

func TestEditCommand_Arguments(t *testing.T) {
	mock := testutil.NewMockPhotoRoom()
	defer mock.Close()

	cfgPath := writeTestConfig(t, mock, "sk_test")

	tests := []struct {
		name string
		args []string
	}{
		{name: "no image", args: []string{"edit", "--config", cfgPath}},
		{name: "url and files", args: []string{"edit", "--config", cfgPath, "--image-url", "https://example.com/a.jpg", "a.png"}},
		{name: "bad param", args: []string{"edit", "--config", cfgPath, "--image-url", "https://example.com/a.jpg", "-p", "padding"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
	if got := mock.GetRequestCount(); got != 0 {
		t.Errorf("RequestCount = %d, want 0", got)
	}
}

func TestAccountCommand(t *testing.T) {
	mock := testutil.NewMockPhotoRoom()
	defer mock.Close()
	mock.SetResponse(testutil.PathAccount, testutil.NewAccountResponse("Plus", 1200, 5000))

	cfgPath := writeTestConfig(t, mock, "sk_test")

	out, err := execute(t, "account", "--config", cfgPath)
	if err != nil {
		t.Fatalf("account error = %v", err)
	}

	for _, want := range []string{"Plus", "1,200 of 5,000", "Used:      3,800"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "sandbox") {
		t.Errorf("live key reported as sandbox:\n%s", out)
	}
}

func TestAccountCommand_Errors(t *testing.T) {
	mock := testutil.NewMockPhotoRoom()
	defer mock.Close()

	t.Run("missing key", func(t *testing.T) {
		cfgPath := writeTestConfig(t, mock, "")
		_, err := execute(t, "account", "--config", cfgPath)
		if !errors.Is(err, client.ErrMissingAPIKey) {
			t.Errorf("error = %v, want ErrMissingAPIKey", err)
		}
	})

	t.Run("invalid log level", func(t *testing.T) {
		cfgPath := writeTestConfig(t, mock, "sk_test")
		_, err := execute(t, "account", "--config", cfgPath, "--log-level", "loud")
		if err == nil || !strings.Contains(err.Error(), "log.level") {
			t.Errorf("error = %v, want log.level error", err)
		}
	})
}

func TestBatchOptions(t *testing.T) {
	sink := batch.DirSink{Dir: "unused"}

	tests := []struct {
		name      string
		sink      batch.Sink
		flags     batchFlags
		wantDir   string
		wantSink  bool
		wantOnErr batch.ErrorStrategy
	}{
		{name: "default directory", wantDir: defaultOutputDir, wantOnErr: batch.Continue},
		{name: "flag directory", flags: batchFlags{outputDir: "out"}, wantDir: "out", wantOnErr: batch.Continue},
		{name: "storage sink", sink: sink, wantSink: true, wantOnErr: batch.Continue},
		{name: "flag wins over storage", sink: sink, flags: batchFlags{outputDir: "out"}, wantDir: "out", wantOnErr: batch.Continue},
		{name: "fail fast", flags: batchFlags{failFast: true}, wantDir: defaultOutputDir, wantOnErr: batch.FailFast},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &app{cfg: config.Default(), logger: zerolog.Nop(), sink: tt.sink}
			opts := a.batchOptions(tt.flags)

			if opts.OutputDir != tt.wantDir {
				t.Errorf("OutputDir = %q, want %q", opts.OutputDir, tt.wantDir)
			}
			if (opts.Sink != nil) != tt.wantSink {
				t.Errorf("Sink = %v, want set %v", opts.Sink, tt.wantSink)
			}
			if opts.OnError != tt.wantOnErr {
				t.Errorf("OnError = %q, want %q", opts.OnError, tt.wantOnErr)
			}
			if opts.Reporter == nil {
				t.Error("Reporter not set")
			}
		})
	}
}

func TestReadyChecks(t *testing.T) {
	t.Run("no redis", func(t *testing.T) {
		a := &app{logger: zerolog.Nop()}
		w := httptest.NewRecorder()
		metrics.NewMux(a.readyChecks()).ServeHTTP(w, httptest.NewRequest("GET", "/ready", nil))

		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})

	t.Run("redis down", func(t *testing.T) {
		rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
		defer rdb.Close()

		a := &app{logger: zerolog.Nop(), redis: rdb}
		w := httptest.NewRecorder()
		metrics.NewMux(a.readyChecks()).ServeHTTP(w, httptest.NewRequest("GET", "/ready", nil))

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", w.Code)
		}
		if !strings.Contains(w.Body.String(), "redis not ready") {
			t.Errorf("body = %q", w.Body.String())
		}
	})
}
