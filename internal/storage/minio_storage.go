package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/SAP-F-2025/enrollment-service/internal/config"
)

// MinioStorage writes to any S3-compatible bucket
type MinioStorage struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
	logger        *slog.Logger
}

func NewMinioStorage(cfg config.StorageConfig, logger *slog.Logger) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}

	return &MinioStorage{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(baseURL, "/"),
		logger:        logger,
	}, nil
}

func (s *MinioStorage) Upload(ctx context.Context, dir, filename string, r io.Reader, size int64, contentType string) (*Object, error) {
	key, err := ObjectKey(dir, filename)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return nil, fmt.Errorf("failed to upload object: %w", err)
	}

	s.logger.Info("Object uploaded", "key", info.Key, "size", info.Size)
	return &Object{Key: key, URL: s.publicBaseURL + "/" + key}, nil
}

// Ping checks that the bucket exists
func (s *MinioStorage) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to reach storage: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", s.bucket)
	}
	return nil
}
