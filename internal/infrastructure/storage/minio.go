package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

// Client adapts an S3-compatible object store to the ingest and import
// services.
type Client struct {
	client *minio.Client
	logger *zap.Logger
}

func NewClient(cfg Config, l *zap.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("object storage endpoint is required")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}
	l.Info("Object storage client initialized", zap.String("endpoint", cfg.Endpoint), zap.Bool("ssl", cfg.UseSSL))
	return &Client{client: mc, logger: l}, nil
}

// GetObject streams the object; read errors surface from the returned body.
func (c *Client) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := c.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s/%s: %w", bucket, key, err)
	}
	return obj, nil
}

func (c *Client) CopyObject(ctx context.Context, bucket, srcKey, dstKey string) error {
	_, err := c.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: bucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: bucket, Object: srcKey},
	)
	if err != nil {
		return fmt.Errorf("failed to copy %s/%s to %s: %w", bucket, srcKey, dstKey, err)
	}
	c.logger.Debug("Object copied", zap.String("bucket", bucket), zap.String("src", srcKey), zap.String("dst", dstKey))
	return nil
}

func (c *Client) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := c.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", bucket, key, err)
	}
	c.logger.Debug("Object deleted", zap.String("bucket", bucket), zap.String("key", key))
	return nil
}

// PresignUpload returns a URL that allows a single PUT of bucket/key until
// ttl elapses.
func (c *Client) PresignUpload(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	u, err := c.client.PresignedPutObject(ctx, bucket, key, ttl)
	if err != nil {
		return "", fmt.Errorf("failed to presign upload for %s/%s: %w", bucket, key, err)
	}
	return u.String(), nil
}
