package client

import (
	"context"

	"github.com/Sternrassler/photoroom-client/pkg/batch"
)

// DefaultBatchConcurrency is the worker count used when BatchOptions leaves it unset.
const DefaultBatchConcurrency = 5

// BatchOptions controls a batch call.
type BatchOptions struct {
	Concurrency int
	OnError     batch.ErrorStrategy
	Reporter    batch.Reporter

	// Runner overrides the default worker pool.
	Runner batch.Runner

	// OutputDir and OutputPattern persist successful images to disk.
	OutputDir     string
	OutputPattern string

	// Sink overrides OutputDir, e.g. with a storage.MinioSink.
	Sink batch.Sink
}

// DefaultBatchOptions returns five workers, Continue, no persistence.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{
		Concurrency:   DefaultBatchConcurrency,
		OnError:       batch.Continue,
		OutputPattern: batch.DefaultPattern,
	}
}

func (c *Client) coordinator(opts BatchOptions) *batch.Coordinator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultBatchConcurrency
	}
	logger := c.logger.With().Str("component", "photoroom-batch").Logger()

	// Every item already runs through the client's executor, so the
	// coordinator gets none of its own.
	return batch.NewCoordinator(batch.Config{
		Concurrency:   opts.Concurrency,
		OnError:       opts.OnError,
		Reporter:      opts.Reporter,
		Runner:        opts.Runner,
		OutputDir:     opts.OutputDir,
		OutputPattern: opts.OutputPattern,
		Sink:          opts.Sink,
		Logger:        &logger,
	})
}

// BatchRemoveBackground removes backgrounds from many images concurrently.
func (c *Client) BatchRemoveBackground(ctx context.Context, inputs []batch.Input, opts RemoveBackgroundOptions, bopts BatchOptions) (*batch.Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	return c.coordinator(bopts).Run(ctx, inputs, func(ctx context.Context, in batch.Input) (batch.Artifact, error) {
		resp, err := c.RemoveBackground(ctx, in, opts)
		if err != nil {
			return nil, err
		}
		return resp, nil
	})
}

// BatchEditImage applies the same edit to many images concurrently.
// template.Image and template.ImageURL are ignored; each input takes their place.
func (c *Client) BatchEditImage(ctx context.Context, inputs []batch.Input, template EditRequest, bopts BatchOptions) (*batch.Result, error) {
	return c.coordinator(bopts).Run(ctx, inputs, func(ctx context.Context, in batch.Input) (batch.Artifact, error) {
		req := template
		req.Image = in
		req.ImageURL = ""

		resp, err := c.EditImage(ctx, req)
		if err != nil {
			return nil, err
		}
		return resp, nil
	})
}
