package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

// DefaultRetryConfig is used when no retry settings are configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second, Jitter: true}
}

// Client issues JSON requests to provider APIs with a hard timeout and
// bounded retries on transient failures.
type Client struct {
	http  *http.Client
	retry RetryConfig
	log   logrus.FieldLogger
}

func NewClient(timeout time.Duration, retry RetryConfig, log logrus.FieldLogger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	if retry.BaseDelay <= 0 {
		retry.BaseDelay = 100 * time.Millisecond
	}
	if retry.MaxDelay <= 0 {
		retry.MaxDelay = 5 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{http: &http.Client{Timeout: timeout}, retry: retry, log: log}
}

type request struct {
	method string
	url    string
	bearer string
	body   any
	header http.Header
}

type response struct {
	StatusCode int
	Body       []byte
}

func (r *response) decode(v any) error {
	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.UseNumber()
	return dec.Decode(v)
}

func (r *response) success() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

func (c *Client) do(ctx context.Context, req request) (*response, error) {
	var payload []byte
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		payload = b
	}
	var lastErr error
	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		resp, err := c.once(ctx, req, payload)
		retry := false
		switch {
		case err != nil:
			lastErr = err
			retry = retryableError(req.method, err)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%s %s: status %d", req.method, req.url, resp.StatusCode)
			retry = req.method == http.MethodGet || resp.StatusCode == http.StatusTooManyRequests
			if !retry {
				return resp, nil
			}
		default:
			return resp, nil
		}
		if !retry || attempt == c.retry.MaxAttempts-1 {
			break
		}
		delay := c.backoff(attempt)
		c.log.WithFields(logrus.Fields{"url": req.url, "attempt": attempt + 1, "delay": delay}).
			Warnf("provider request failed, retrying: %v", lastErr)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrProvider, ctx.Err())
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrProvider, lastErr)
}

func (c *Client) once(ctx context.Context, req request, payload []byte) (*response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.bearer)
	}
	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &response{StatusCode: resp.StatusCode, Body: b}, nil
}

// retryableError reports whether a transport error may be retried. Writes are
// only retried when the connection was never established.
func retryableError(method string, err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	if method != http.MethodGet {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

func (c *Client) backoff(attempt int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt))) * c.retry.BaseDelay
	if delay > c.retry.MaxDelay {
		delay = c.retry.MaxDelay
	}
	if c.retry.Jitter {
		jitter := time.Duration(rand.Float64() * float64(delay) * 0.3)
		delay = delay + jitter - time.Duration(float64(delay)*0.15)
	}
	return delay
}
