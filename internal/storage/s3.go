package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Client implements Client using minio-go. Buckets live in fixed
// regions, so one underlying client is kept per region.
type S3Client struct {
	cfg Config

	mu      sync.Mutex
	clients map[string]*minio.Client
}

// NewS3Client creates a destination store client.
func NewS3Client(cfg Config) (*S3Client, error) {
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("storage credentials are required")
	}
	if cfg.DefaultRegion == "" {
		return nil, fmt.Errorf("default region is required")
	}
	return &S3Client{
		cfg:     cfg,
		clients: make(map[string]*minio.Client),
	}, nil
}

// RegionOf resolves a bucket to its region via the static table.
func (c *S3Client) RegionOf(bucket string) string {
	if region, ok := c.cfg.BucketRegions[bucket]; ok {
		return region
	}
	return c.cfg.DefaultRegion
}

func (c *S3Client) endpoint(region string) string {
	if c.cfg.Endpoint != "" {
		return c.cfg.Endpoint
	}
	return fmt.Sprintf("s3.%s.amazonaws.com", region)
}

func (c *S3Client) clientFor(bucket string) (*minio.Client, error) {
	region := c.RegionOf(bucket)

	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[region]; ok {
		return client, nil
	}

	client, err := minio.New(c.endpoint(region), &minio.Options{
		Creds:  credentials.NewStaticV4(c.cfg.AccessKey, c.cfg.SecretKey, ""),
		Secure: c.cfg.Secure,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create client for region %s: %w", region, err)
	}

	c.clients[region] = client
	return client, nil
}

// Upload streams content into bucket/key. minio-go switches to
// multipart automatically for unknown or large sizes, so the source is
// never buffered to disk.
func (c *S3Client) Upload(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) (string, error) {
	client, err := c.clientFor(bucket)
	if err != nil {
		return "", err
	}

	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := client.PutObject(ctx, bucket, key, reader, size, opts); err != nil {
		return "", fmt.Errorf("upload %s/%s: %w", bucket, key, err)
	}

	return c.PublicURL(bucket, key), nil
}

// Exists probes bucket/key. Not-found responses are reported as a plain
// false, never an error.
func (c *S3Client) Exists(ctx context.Context, bucket, key string) (bool, error) {
	client, err := c.clientFor(bucket)
	if err != nil {
		return false, err
	}

	_, err = client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
			return false, nil
		}
		return false, fmt.Errorf("probe %s/%s: %w", bucket, key, err)
	}

	return true, nil
}

// PublicURL returns the virtual-hosted public URL for bucket/key.
func (c *S3Client) PublicURL(bucket, key string) string {
	if c.cfg.Endpoint != "" {
		scheme := "https"
		if !c.cfg.Secure {
			scheme = "http"
		}
		return fmt.Sprintf("%s://%s/%s/%s", scheme, c.cfg.Endpoint, bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, c.RegionOf(bucket), key)
}
