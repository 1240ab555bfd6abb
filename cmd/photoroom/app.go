package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Sternrassler/photoroom-client/pkg/batch"
	"github.com/Sternrassler/photoroom-client/pkg/client"
	"github.com/Sternrassler/photoroom-client/pkg/config"
	"github.com/Sternrassler/photoroom-client/pkg/logging"
	"github.com/Sternrassler/photoroom-client/pkg/metrics"
	"github.com/Sternrassler/photoroom-client/pkg/storage"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// app bundles the long-lived dependencies of one command invocation.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	client  *client.Client
	redis   *redis.Client
	sink    batch.Sink
	metrics *http.Server
}

// loadConfig reads the config file and applies flag overrides.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	path := o.configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.metricsAddr != "" {
		cfg.Metrics.Addr = o.metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newApp connects Redis and object storage when configured and builds the client.
func newApp(ctx context.Context, cfg *config.Config, logOutput io.Writer) (*app, error) {
	lc := cfg.LoggingConfig()
	lc.Output = logOutput
	lc.Service = "photoroom-cli"
	logger := logging.Setup(lc)

	a := &app{cfg: cfg, logger: logger}

	if opts := cfg.RedisOptions(); opts != nil {
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
		}
		logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
		a.redis = rdb
	}

	c, err := client.New(cfg.ClientConfig(a.redis))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.client = c

	if mc, ok := cfg.MinioConfig(); ok {
		sink, err := storage.NewMinioSink(ctx, mc, logging.NewLogger("storage"))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.sink = sink
	}

	if cfg.Metrics.Addr != "" {
		a.metrics = a.serveMetrics(cfg.Metrics.Addr)
	}

	return a, nil
}

func (a *app) readyChecks() map[string]metrics.ReadyCheck {
	checks := map[string]metrics.ReadyCheck{}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		}
	}
	return checks
}

func (a *app) serveMetrics(addr string) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           metrics.NewMux(a.readyChecks()),
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()
	a.logger.Info().Str("addr", addr).Msg("Serving metrics")

	return srv
}

// Close stops the metrics server and releases connections.
func (a *app) Close() error {
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.metrics.Shutdown(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Metrics server shutdown")
		}
	}
	if a.client != nil {
		a.client.Close()
	}
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}

// batchFlags are the batch overrides shared by remove-bg and edit.
type batchFlags struct {
	outputDir   string
	concurrency int
	failFast    bool
}

// defaultOutputDir is used when neither flags, config nor storage name a destination.
const defaultOutputDir = "photoroom-output"

func (a *app) batchOptions(f batchFlags) client.BatchOptions {
	opts := a.cfg.BatchOptions()
	if f.outputDir != "" {
		opts.OutputDir = f.outputDir
	}
	if f.concurrency > 0 {
		opts.Concurrency = f.concurrency
	}
	if f.failFast {
		opts.OnError = batch.FailFast
	}

	switch {
	case a.sink != nil && f.outputDir == "":
		opts.Sink = a.sink
	case opts.OutputDir == "":
		opts.OutputDir = defaultOutputDir
	}

	opts.Reporter = batch.LogReporter(a.logger, 10)
	return opts
}
