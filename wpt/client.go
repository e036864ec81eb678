// Package wpt is an HTTP client for the WebPageTest API.
//
// Every call returns a types.Envelope. HTTP-level failures (transport errors,
// non-2xx responses, undecodable bodies) are returned as errors; API-level
// status lives in the envelope and is left for the caller to classify.
package wpt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pithecene-io/wptdiff/iox"
	"github.com/pithecene-io/wptdiff/types"
)

// DefaultHost is the public WebPageTest instance.
const DefaultHost = "www.webpagetest.org"

// DefaultTimeout is the per-request HTTP timeout.
const DefaultTimeout = 30 * time.Second

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 32 << 20

// apiKeyHeader carries the API key alongside the k query parameter.
const apiKeyHeader = "X-WPT-API-KEY"

// Config configures the client.
type Config struct {
	// Host is the WebPageTest host, optionally with scheme (default https).
	Host string
	// APIKey is passed through on every request when set.
	APIKey string
	// Timeout is the per-request timeout (default 30s).
	Timeout time.Duration
	// HTTPClient overrides the underlying client (Timeout is then ignored).
	HTTPClient *http.Client
}

// Client talks to one WebPageTest host.
type Client struct {
	base   *url.URL
	host   string
	apiKey string
	http   *http.Client
}

// New creates a client from cfg.
func New(cfg Config) (*Client, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = DefaultHost
	}

	raw := host
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("wpt: invalid host %q: %w", host, err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("wpt: invalid host %q: missing hostname", host)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		base:   base,
		host:   host,
		apiKey: cfg.APIKey,
		http:   httpClient,
	}, nil
}

// Host returns the configured host as given.
func (c *Client) Host() string {
	return c.host
}

// StartTest submits a test for pageURL.
func (c *Client) StartTest(ctx context.Context, pageURL string, opts types.LaunchOptions) (types.Envelope, error) {
	q := url.Values{}
	q.Set("url", pageURL)
	if loc := locationParam(opts.Location, opts.Connectivity); loc != "" {
		q.Set("location", loc)
	}
	setFlag(q, "mobile", opts.Mobile)
	setFlag(q, "bodies", opts.Bodies)
	setFlag(q, "timeline", opts.Timeline)
	setFlag(q, "tcpdump", opts.TCPDump)
	setFlag(q, "video", opts.Video)
	setFlag(q, "private", opts.Private)
	if opts.Label != "" {
		q.Set("label", opts.Label)
	}
	return c.getEnvelope(ctx, "runtest.php", q, envelopeOnly)
}

// GetStatus reads the status of a test.
func (c *Client) GetStatus(ctx context.Context, testID string) (types.Envelope, error) {
	q := url.Values{}
	q.Set("test", testID)
	return c.getEnvelope(ctx, "testStatus.php", q, envelopeOnly)
}

// GetResults reads the full result detail of a finished test.
func (c *Client) GetResults(ctx context.Context, testID string) (types.Envelope, error) {
	q := url.Values{}
	q.Set("test", testID)
	return c.getEnvelope(ctx, "jsonResult.php", q, allowBare)
}

// CreateVideo requests a comparison video for comma-joined test ids.
func (c *Client) CreateVideo(ctx context.Context, testIDs string, opts types.VideoOptions) (types.Envelope, error) {
	q := url.Values{}
	q.Set("tests", testIDs)
	if opts.End != "" {
		q.Set("end", opts.End)
	}
	return c.getEnvelope(ctx, "video/create.php", q, envelopeOnly)
}

// FetchJSON reads an absolute URL whose body is an envelope-shaped JSON document.
// Used for the video status and player descriptor returned by CreateVideo.
func (c *Client) FetchJSON(ctx context.Context, rawURL string) (types.Envelope, error) {
	target, err := c.base.Parse(rawURL)
	if err != nil {
		return types.Envelope{}, fmt.Errorf("wpt: invalid url %q: %w", rawURL, err)
	}
	return c.do(ctx, target.String(), envelopeOnly)
}

func (c *Client) getEnvelope(ctx context.Context, endpoint string, q url.Values, mode bodyMode) (types.Envelope, error) {
	q.Set("f", "json")
	if c.apiKey != "" {
		q.Set("k", c.apiKey)
	}
	target := c.base.JoinPath(endpoint)
	target.RawQuery = q.Encode()
	return c.do(ctx, target.String(), mode)
}

func (c *Client) do(ctx context.Context, target string, mode bodyMode) (types.Envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return types.Envelope{}, fmt.Errorf("wpt: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = redact(req.URL)
		}
		return types.Envelope{}, fmt.Errorf("wpt: %w", err)
	}
	defer iox.DrainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.Envelope{}, &StatusError{Code: resp.StatusCode, URL: redact(req.URL)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return types.Envelope{}, fmt.Errorf("wpt: read response: %w", err)
	}
	return decodeEnvelope(body, resp.StatusCode, mode)
}

// bodyMode selects how a body without a statusCode field is read.
type bodyMode int

const (
	// envelopeOnly leaves a missing statusCode at zero, which classifies
	// as Pending.
	envelopeOnly bodyMode = iota
	// allowBare wraps a bare result document as data under the HTTP status.
	allowBare
)

// decodeEnvelope parses a response body into an Envelope.
func decodeEnvelope(body []byte, httpStatus int, mode bodyMode) (types.Envelope, error) {
	var head struct {
		StatusCode *int            `json:"statusCode"`
		StatusText string          `json:"statusText"`
		Data       json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return types.Envelope{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	if head.StatusCode == nil {
		if mode == envelopeOnly {
			return types.Envelope{StatusText: head.StatusText, Data: head.Data}, nil
		}
		return types.Envelope{
			StatusCode: httpStatus,
			StatusText: http.StatusText(httpStatus),
			Data:       json.RawMessage(body),
		}, nil
	}

	return types.Envelope{
		StatusCode: *head.StatusCode,
		StatusText: head.StatusText,
		Data:       head.Data,
	}, nil
}

// ErrInvalidResponse indicates a body that is not JSON.
var ErrInvalidResponse = errors.New("wpt: invalid JSON response")

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("wpt: unexpected HTTP status %d from %s", e.Code, e.URL)
}

// locationParam joins location and connectivity the way runtest.php expects.
func locationParam(location, connectivity string) string {
	switch {
	case location == "":
		return ""
	case connectivity == "":
		return location
	default:
		return location + "." + connectivity
	}
}

func setFlag(q url.Values, name string, on bool) {
	if on {
		q.Set(name, "1")
	}
}

// redact strips the API key from a URL before it reaches logs or errors.
func redact(u *url.URL) string {
	clone := *u
	q := clone.Query()
	if q.Has("k") {
		q.Set("k", "REDACTED")
		clone.RawQuery = q.Encode()
	}
	return clone.String()
}
