// Package httpx is the JSON HTTP transport shared by source adapters.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/0xsequence/token-directory/internal/domain"
	"github.com/0xsequence/token-directory/internal/observability"
)

// DefaultTimeout is the per-request timeout.
const DefaultTimeout = 30 * time.Second

// maxErrorBody bounds the response body kept on a failed request.
const maxErrorBody = 512

// Client performs JSON requests with retries and optional pacing.
type Client struct {
	client  *http.Client
	headers http.Header
	retry   RetryPolicy
	limiter *rate.Limiter
	log     logrus.FieldLogger
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers.Set(key, value)
	}
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retry = p
	}
}

// WithPacing allows at most one request per interval. Zero disables pacing.
func WithPacing(interval time.Duration) ClientOption {
	return func(c *Client) {
		if interval <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(log logrus.FieldLogger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient creates a client with the default retry policy.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		client:  &http.Client{Timeout: DefaultTimeout},
		headers: make(http.Header),
		retry:   DefaultRetryPolicy(),
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetJSON issues a GET and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, out any) error {
	body, err := c.do(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	return decode(rawURL, body, out)
}

// PostJSON posts in as JSON and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, rawURL string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	body, err := c.do(ctx, http.MethodPost, rawURL, payload)
	if err != nil {
		return err
	}
	return decode(rawURL, body, out)
}

// GetBytes issues a GET and returns the raw body.
func (c *Client) GetBytes(ctx context.Context, rawURL string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, rawURL, nil)
}

func (c *Client) do(ctx context.Context, method, rawURL string, payload []byte) ([]byte, error) {
	host := hostOf(rawURL)
	var out []byte
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		b, err := c.once(ctx, method, rawURL, host, payload)
		if err != nil {
			return err
		}
		out = b
		return nil
	}, func(attempt int, err error) {
		observability.RecordHTTPRetry(host)
		c.log.WithFields(logrus.Fields{
			"host":    host,
			"attempt": attempt + 1,
		}).Warnf("retrying request: %v", err)
	})
	return out, err
}

func (c *Client) once(ctx context.Context, method, rawURL, host string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		observability.RecordHTTPRequest(host, 0, time.Since(start).Seconds())
		return nil, &domain.TransportError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()
	observability.RecordHTTPRequest(host, resp.StatusCode, time.Since(start).Seconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{URL: rawURL, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &domain.TransportError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body)),
		}
	}
	return body, nil
}

func decode(rawURL string, body []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &domain.TransportError{URL: rawURL, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
