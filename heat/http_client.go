package heat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"
)

const (
	// DefaultFetchTimeout is the default HTTP request timeout for point fetches.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of attempts.
	DefaultMaxRetries = 3

	defaultBaseBackoff = 500 * time.Millisecond

	// maxRetryAfter caps how long a Retry-After header may stall a fetch.
	maxRetryAfter = 30 * time.Second

	// maxResponseBytes limits a point payload to 50 MB.
	maxResponseBytes = 50 << 20

	geoJSONContentType = "application/geo+json"
)

// FetchOption configures FetchPointsFromAPI behavior.
type FetchOption func(*fetchConfig)

type fetchConfig struct {
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	client      *http.Client
	plane       Plane
}

func defaultFetchConfig() fetchConfig {
	return fetchConfig{
		timeout:     DefaultFetchTimeout,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
		plane:       PlaneXZ,
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) FetchOption {
	return func(c *fetchConfig) {
		c.timeout = d
	}
}

// WithMaxRetries sets the maximum number of attempts. Values below 1 still
// make one attempt.
func WithMaxRetries(n int) FetchOption {
	return func(c *fetchConfig) {
		c.maxRetries = n
	}
}

// WithBaseBackoff sets the delay before the second attempt; it doubles for
// each one after that.
func WithBaseBackoff(d time.Duration) FetchOption {
	return func(c *fetchConfig) {
		c.baseBackoff = d
	}
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) FetchOption {
	return func(c *fetchConfig) {
		c.client = client
	}
}

// WithPlane sets the ground plane used to lift GeoJSON responses back into
// 3D points.
func WithPlane(plane Plane) FetchOption {
	return func(c *fetchConfig) {
		c.plane = plane
	}
}

// statusError is a non-200 response. Server errors, 408 and 429 are worth
// retrying; other client errors are not.
type statusError struct {
	url        string
	status     int
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP GET %s: status %d", e.url, e.status)
}

func (e *statusError) retryable() bool {
	return e.status >= 500 || e.status == http.StatusRequestTimeout || e.status == http.StatusTooManyRequests
}

// pointResponse is one successful fetch before decoding.
type pointResponse struct {
	body        []byte
	contentType string
}

// FetchPointsFromAPI fetches a point set from the given URL.
func FetchPointsFromAPI(apiURL string, opts ...FetchOption) ([]WeightedPoint, error) {
	return FetchPointsFromAPIWithContext(context.Background(), apiURL, opts...)
}

// FetchPointsFromAPIWithContext fetches a point set from apiURL. JSON
// (optionally zlib-compressed) and GeoJSON responses are accepted, the latter
// selected by an application/geo+json content type. Network failures and
// retryable statuses are retried with exponential backoff, or after the
// server's Retry-After when it asks for longer. Decode errors and other
// client errors fail at once.
func FetchPointsFromAPIWithContext(ctx context.Context, apiURL string, opts ...FetchOption) ([]WeightedPoint, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("fetch points: API URL is empty")
	}

	cfg := defaultFetchConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	attempts := max(cfg.maxRetries, 1)

	client := cfg.client
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout}
	}

	var lastErr error
	delay := cfg.baseBackoff
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := getPoints(ctx, client, apiURL)
		if err == nil {
			points, err := resp.decode(cfg.plane)
			if err != nil {
				return nil, fmt.Errorf("fetch points: %w", err)
			}
			return points, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch points: %w", ctx.Err())
		}

		lastErr = err
		wait := delay
		var se *statusError
		if errors.As(err, &se) {
			if !se.retryable() {
				return nil, fmt.Errorf("fetch points: %w", err)
			}
			wait = max(wait, se.retryAfter)
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("fetch points: %w", ctx.Err())
		case <-time.After(wait):
		}
		delay *= 2
	}

	return nil, fmt.Errorf("fetch points: all %d attempts failed: %w", attempts, lastErr)
}

func getPoints(ctx context.Context, client *http.Client, url string) (*pointResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json, "+geoJSONContentType)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{url: url, status: resp.StatusCode, retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	if len(body) > maxResponseBytes {
		return nil, &statusError{url: url, status: http.StatusRequestEntityTooLarge}
	}
	return &pointResponse{body: body, contentType: resp.Header.Get("Content-Type")}, nil
}

func (r *pointResponse) decode(plane Plane) ([]WeightedPoint, error) {
	mediaType, _, _ := mime.ParseMediaType(r.contentType)
	if mediaType == geoJSONContentType {
		return UnmarshalGeoJSON(r.body, plane)
	}
	return DecodePointData(r.body)
}

// parseRetryAfter reads a Retry-After header given in seconds. HTTP dates and
// malformed values are ignored.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter)
}
