// Package cdn talks to the image-transform CDN: streaming downloads of
// hosted content, the rate-limited admin metadata API, and asset
// destruction for the purge worker.
package cdn

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when the admin API rejects a call for
// exceeding the hourly budget. Callers requeue the affected record
// instead of failing the date.
var ErrRateLimited = errors.New("cdn: admin api rate limited")

// ErrNotFound is returned when the CDN has no content for an identifier.
var ErrNotFound = errors.New("cdn: resource not found")

// Config holds CDN credentials and throttling.
type Config struct {
	CloudName       string
	APIKey          string
	APISecret       string
	AdminRatePerSec float64
}

// Client is the transform-CDN client. Safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger

	// Overridable in tests.
	apiBase      string
	deliveryBase string
}

// New creates a CDN client.
func New(cfg Config, logger *zap.Logger) *Client {
	perSec := cfg.AdminRatePerSec
	if perSec <= 0 {
		perSec = 1
	}
	return &Client{
		cfg:          cfg,
		http:         &http.Client{Timeout: 5 * time.Minute},
		limiter:      rate.NewLimiter(rate.Limit(perSec), 1),
		logger:       logger,
		apiBase:      "https://api.cloudinary.com/v1_1",
		deliveryBase: "https://res.cloudinary.com",
	}
}

// UploadURL returns the delivery URL of a CDN-hosted original.
func (c *Client) UploadURL(publicID string) string {
	return fmt.Sprintf("%s/%s/image/upload/%s", c.deliveryBase, c.cfg.CloudName, publicID)
}

// Download streams the content behind rawURL. The caller must close the
// returned body. Size is -1 when the source sends no Content-Length.
func (c *Client) Download(ctx context.Context, rawURL string) (io.ReadCloser, int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, "", fmt.Errorf("download %s: %w", rawURL, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, 0, "", fmt.Errorf("download %s: %w", rawURL, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, "", fmt.Errorf("download %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	return resp.Body, resp.ContentLength, resp.Header.Get("Content-Type"), nil
}

type resourceResponse struct {
	PublicID string `json:"public_id"`
	Format   string `json:"format"`
	URL      string `json:"url"`
}

// ResolveFormat looks up an asset's format and download URL via the
// admin API. Rate-limited; use only when the reference URL carries no
// extension.
func (c *Client) ResolveFormat(ctx context.Context, publicID string) (string, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", "", err
	}

	endpoint := fmt.Sprintf("%s/%s/resources/image/upload/%s", c.apiBase, c.cfg.CloudName, url.PathEscape(publicID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", "", err
	}
	req.SetBasicAuth(c.cfg.APIKey, c.cfg.APISecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("resource lookup %s: %w", publicID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", "", fmt.Errorf("resource lookup %s: %w", publicID, ErrNotFound)
	case http.StatusTooManyRequests, 420:
		return "", "", fmt.Errorf("resource lookup %s: %w", publicID, ErrRateLimited)
	default:
		return "", "", fmt.Errorf("resource lookup %s: unexpected status %d", publicID, resp.StatusCode)
	}

	var res resourceResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", "", fmt.Errorf("resource lookup %s: decode: %w", publicID, err)
	}

	return res.Format, res.URL, nil
}

// DestroyResult is the CDN's verdict on a destroy call.
type DestroyResult string

const (
	DestroyOK          DestroyResult = "ok"
	DestroyNotFound    DestroyResult = "not found"
	DestroyRateLimited DestroyResult = "rate limited"
	DestroyUnexpected  DestroyResult = "unexpected"
)

// Destroy removes a CDN-hosted asset via the signed upload API.
func (c *Client) Destroy(ctx context.Context, publicID string) (DestroyResult, error) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	payload := url.Values{
		"public_id": {publicID},
		"timestamp": {ts},
		"api_key":   {c.cfg.APIKey},
		"signature": {c.sign("public_id=" + publicID + "&timestamp=" + ts)},
	}

	endpoint := fmt.Sprintf("%s/%s/image/destroy", c.apiBase, c.cfg.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
	if err != nil {
		return DestroyUnexpected, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return DestroyUnexpected, fmt.Errorf("destroy %s: %w", publicID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 420 {
		return DestroyRateLimited, nil
	}

	var body struct {
		Result string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return DestroyUnexpected, fmt.Errorf("destroy %s: decode: %w", publicID, err)
	}

	switch body.Result {
	case "ok":
		return DestroyOK, nil
	case "not found":
		return DestroyNotFound, nil
	default:
		c.logger.Warn("unexpected destroy result",
			zap.String("public_id", publicID),
			zap.String("result", body.Result))
		return DestroyUnexpected, nil
	}
}

func (c *Client) sign(toSign string) string {
	sum := sha1.Sum([]byte(toSign + c.cfg.APISecret))
	return hex.EncodeToString(sum[:])
}
