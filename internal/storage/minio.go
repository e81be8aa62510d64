package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/roaa-mamdouh/mermaid-studio/internal/apperror"
)

// MinIOConfig holds the connection settings for an S3-compatible endpoint.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIO stores files as objects in a single bucket.
type MinIO struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

var _ FileStore = (*MinIO)(nil)

// NewMinIO connects to the endpoint and makes sure the bucket exists.
func NewMinIO(ctx context.Context, cfg MinIOConfig, logger *slog.Logger) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: creating minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("storage: checking bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("storage: creating bucket %s: %w", cfg.Bucket, err)
		}
		logger.Info("bucket created", slog.String("bucket", cfg.Bucket))
	}

	logger.Info("minio file store ready",
		slog.String("endpoint", cfg.Endpoint),
		slog.String("bucket", cfg.Bucket),
	)
	return &MinIO{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

func (m *MinIO) Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) (*File, error) {
	key := newKey(name)
	if size <= 0 {
		size = -1
	}
	info, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: uploading %s: %w", key, err)
	}

	m.logger.Debug("file uploaded", slog.String("key", key), slog.Int64("size", info.Size))

	return &File{
		Name:        BaseName(key),
		URL:         URLPrefix + key,
		ContentType: contentType,
		Size:        info.Size,
	}, nil
}

// Open streams an object. GetObject is lazy, so a Stat call is made first to
// turn a missing key into a not-found error instead of a failed first Read.
func (m *MinIO) Open(ctx context.Context, fileURL string) (io.ReadCloser, error) {
	key, err := KeyFromURL(fileURL)
	if err != nil {
		return nil, err
	}

	if _, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, apperror.Missing("file not found")
		}
		return nil, fmt.Errorf("storage: stat %s: %w", key, err)
	}

	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("storage: opening %s: %w", key, err)
	}
	return obj, nil
}
