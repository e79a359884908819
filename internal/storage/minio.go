package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig holds configuration for a MinIO deployment.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// MinIOStorage keeps uploaded documents in a private MinIO bucket.
type MinIOStorage struct {
	client  *minio.Client
	bucket  string
	baseURL url.URL
}

// NewMinIOStorage creates a MinIO client. No request is made until first use.
func NewMinIOStorage(cfg *MinIOConfig) (*MinIOStorage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return &MinIOStorage{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: url.URL{Scheme: scheme, Host: cfg.Endpoint, Path: "/" + cfg.Bucket},
	}, nil
}

// EnsureBucket creates the document bucket on first start. No bucket policy is
// set, so objects stay private.
func (s *MinIOStorage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	logger.CtxInfo(ctx, "Created document bucket %s", s.bucket)
	return nil
}

// Upload stores a document's original bytes under key.
func (s *MinIOStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	start := time.Now()
	info, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	logger.With(logger.Fields{
		logger.FieldSize: info.Size,
		"storage_key":    key,
	}).WithDuration(start).Debug(ctx, "Stored document in minio")
	return nil
}

// Download opens a stored document. The object is stat'ed first because
// GetObject defers every error, including a missing key, to the first read.
func (s *MinIOStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	return obj, nil
}

// GetURL returns the path-style URL of key. The bucket is private, so the URL
// only works with credentials.
func (s *MinIOStorage) GetURL(key string) string {
	u := s.baseURL
	u.Path = path.Join(u.Path, key)
	return u.String()
}

// Delete removes a stored document. Removing a missing key succeeds.
func (s *MinIOStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	logger.With(logger.Fields{"storage_key": key}).Debug(ctx, "Removed document from minio")
	return nil
}

// Exists reports whether key is stored.
func (s *MinIOStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isMinIONotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", key, err)
}

func isMinIONotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
