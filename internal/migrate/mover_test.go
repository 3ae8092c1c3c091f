package migrate

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDownloader struct {
	content string
	err     error
	calls   int
}

func (d *fakeDownloader) Download(context.Context, string) (io.ReadCloser, int64, string, error) {
	d.calls++
	if d.err != nil {
		return nil, 0, "", d.err
	}
	return io.NopCloser(strings.NewReader(d.content)), int64(len(d.content)), "image/jpeg", nil
}

type uploadRecord struct {
	bucket      string
	key         string
	body        string
	size        int64
	contentType string
}

type recordingStore struct {
	uploads []uploadRecord
}

func (s *recordingStore) Upload(_ context.Context, bucket, key string, reader io.Reader, size int64, contentType string) (string, error) {
	body, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	s.uploads = append(s.uploads, uploadRecord{bucket, key, string(body), size, contentType})
	return s.PublicURL(bucket, key), nil
}

func (s *recordingStore) Exists(context.Context, string, string) (bool, error) { return false, nil }

func (s *recordingStore) PublicURL(bucket, key string) string {
	return fmt.Sprintf("https://%s.s3.us-west-2.amazonaws.com/%s", bucket, key)
}

func TestMoveStreamsContent(t *testing.T) {
	dl := &fakeDownloader{content: "image-bytes"}
	store := &recordingStore{}
	m := NewMover(dl, store, false, zap.NewNop())

	location, err := m.Move(context.Background(), "https://res.cloudinary.com/demo/image/upload/abc123.jpg",
		"photos-transformed", "abc123_migrated.jpg", "jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://photos-transformed.s3.us-west-2.amazonaws.com/abc123_migrated.jpg", location)

	require.Len(t, store.uploads, 1)
	up := store.uploads[0]
	assert.Equal(t, "photos-transformed", up.bucket)
	assert.Equal(t, "image-bytes", up.body)
	assert.Equal(t, int64(11), up.size)
	assert.Equal(t, "image/jpeg", up.contentType)
}

func TestMoveDryRunTouchesNeitherSide(t *testing.T) {
	dl := &fakeDownloader{content: "image-bytes"}
	store := &recordingStore{}
	m := NewMover(dl, store, true, zap.NewNop())

	location, err := m.Move(context.Background(), "https://res.cloudinary.com/demo/image/upload/abc123.jpg",
		"photos-transformed", "abc123_migrated.jpg", "jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://photos-transformed.s3.us-west-2.amazonaws.com/abc123_migrated.jpg", location)

	assert.Zero(t, dl.calls)
	assert.Empty(t, store.uploads)
}

func TestMoveDownloadFailure(t *testing.T) {
	dl := &fakeDownloader{err: fmt.Errorf("connection reset")}
	m := NewMover(dl, &recordingStore{}, false, zap.NewNop())

	_, err := m.Move(context.Background(), "https://res.cloudinary.com/demo/image/upload/abc123.jpg",
		"photos-transformed", "abc123_migrated.jpg", "jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"jpg", "image/jpeg"},
		{"png", "image/png"},
		{"pdf", "application/pdf"},
		{"svg", "image/svg+xml"},
		{"SVG", "image/svg+xml"},
		{"", "application/octet-stream"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, contentTypeFor(tt.format), tt.format)
	}
}
