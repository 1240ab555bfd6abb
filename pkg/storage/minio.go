// Package storage provides batch sinks backed by S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/Sternrassler/photoroom-client/pkg/batch"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// MinioConfig holds object storage connection settings.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Location  string
	Prefix    string
	UseSSL    bool
}

// byteser is implemented by artifacts that expose their encoded bytes.
type byteser interface {
	Bytes() []byte
}

// MinioSink uploads batch artifacts to a bucket. It implements batch.Sink.
type MinioSink struct {
	client *minio.Client
	bucket string
	prefix string
	logger zerolog.Logger
}

var _ batch.Sink = (*MinioSink)(nil)

// NewMinioSink connects to the endpoint and creates the bucket if needed.
func NewMinioSink(ctx context.Context, cfg MinioConfig, logger zerolog.Logger) (*MinioSink, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("storage endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Location}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		logger.Info().Str("bucket", cfg.Bucket).Msg("Created output bucket")
	}

	return &MinioSink{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger,
	}, nil
}

// ObjectName returns the object key used for a file name.
func (s *MinioSink) ObjectName(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Save implements batch.Sink. It returns the location as bucket/object.
func (s *MinioSink) Save(ctx context.Context, name string, a batch.Artifact) (string, error) {
	object := s.ObjectName(name)
	opts := minio.PutObjectOptions{ContentType: contentType(name)}

	if b, ok := a.(byteser); ok {
		data := b.Bytes()
		if _, err := s.client.PutObject(ctx, s.bucket, object, bytes.NewReader(data), int64(len(data)), opts); err != nil {
			return "", fmt.Errorf("put object %s: %w", object, err)
		}
	} else {
		tmp, err := os.MkdirTemp("", "photoroom-upload-*")
		if err != nil {
			return "", fmt.Errorf("create temp dir: %w", err)
		}
		defer os.RemoveAll(tmp)

		local := filepath.Join(tmp, filepath.Base(name))
		if err := a.Persist(local); err != nil {
			return "", fmt.Errorf("stage artifact: %w", err)
		}
		if _, err := s.client.FPutObject(ctx, s.bucket, object, local, opts); err != nil {
			return "", fmt.Errorf("upload object %s: %w", object, err)
		}
	}

	location := s.bucket + "/" + object
	s.logger.Debug().
		Str("location", location).
		Int("bytes", a.Size()).
		Msg("Uploaded artifact")
	return location, nil
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
