package migrate

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"photomigrate/internal/storage"
)

// Downloader streams source content from the transform CDN or an
// external host.
type Downloader interface {
	Download(ctx context.Context, rawURL string) (body io.ReadCloser, size int64, contentType string, err error)
}

// ObjectMover copies one source asset into the destination store and
// returns its canonical location URL.
type ObjectMover interface {
	Move(ctx context.Context, downloadURL, bucket, key, format string) (string, error)
}

// Mover streams CDN content directly into the destination store; the
// source is never spooled to a local file. In dry-run mode it computes
// the destination URL without touching either side.
type Mover struct {
	cdn    Downloader
	store  storage.Client
	dryRun bool
	logger *zap.Logger
}

// NewMover creates a Mover.
func NewMover(cdn Downloader, store storage.Client, dryRun bool, logger *zap.Logger) *Mover {
	return &Mover{cdn: cdn, store: store, dryRun: dryRun, logger: logger}
}

// Move streams downloadURL into bucket/key.
func (m *Mover) Move(ctx context.Context, downloadURL, bucket, key, format string) (string, error) {
	if m.dryRun {
		m.logger.Info("dry run, skipping object move",
			zap.String("source", downloadURL),
			zap.String("bucket", bucket),
			zap.String("key", key))
		return m.store.PublicURL(bucket, key), nil
	}

	m.logger.Info("moving object",
		zap.String("source", downloadURL),
		zap.String("bucket", bucket),
		zap.String("key", key))

	body, size, _, err := m.cdn.Download(ctx, downloadURL)
	if err != nil {
		return "", fmt.Errorf("move %s: %w", downloadURL, err)
	}
	defer body.Close()

	location, err := m.store.Upload(ctx, bucket, key, body, size, contentTypeFor(format))
	if err != nil {
		return "", fmt.Errorf("move %s: %w", downloadURL, err)
	}

	return location, nil
}

func contentTypeFor(format string) string {
	switch strings.ToLower(format) {
	case "":
		return "application/octet-stream"
	case "pdf":
		return "application/pdf"
	case "svg":
		return "image/svg+xml"
	case "jpg":
		return "image/jpeg"
	case "zip":
		return "application/zip"
	default:
		return "image/" + strings.ToLower(format)
	}
}
