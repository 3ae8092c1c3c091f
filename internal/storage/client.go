package storage

import (
	"context"
	"io"
)

// Client defines the operations the migration needs against the
// S3-compatible destination store.
type Client interface {
	// Upload streams content into bucket/key and returns the public
	// object URL. Size may be -1 when unknown; the upload then falls
	// back to streaming multipart.
	Upload(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) (string, error)

	// Exists probes bucket/key with a metadata request. A missing
	// object is (false, nil), not an error.
	Exists(ctx context.Context, bucket, key string) (bool, error)

	// PublicURL returns the public location URL for bucket/key without
	// touching the network.
	PublicURL(bucket, key string) string
}

// Config contains destination store configuration.
type Config struct {
	AccessKey     string
	SecretKey     string
	Endpoint      string // optional override; derived from region when empty
	Secure        bool
	DefaultRegion string
	// BucketRegions is the static bucket->region table; buckets not
	// listed fall back to DefaultRegion.
	BucketRegions map[string]string
}
