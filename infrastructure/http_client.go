package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const maxResponseBytes = 16 << 20

type httpStatusError struct {
	Service    string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("%s request: http %d: %s", e.Service, e.StatusCode, snippet(e.Body))
}

func (e *httpStatusError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// baseClient holds what every provider client shares: the HTTP client, the
// per-credential rate limiter and the retry policy for throttling and 5xx.
type baseClient struct {
	service  string
	http     *http.Client
	limiter  *rate.Limiter
	attempts int
	backoff  time.Duration
	sleep    func(context.Context, time.Duration) error
}

// ClientOption customizes a provider client.
type ClientOption func(*baseClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *baseClient) {
		if client != nil {
			c.http = client
		}
	}
}

// WithRetry sets how many times a throttled or failing request is sent.
func WithRetry(attempts int, backoff time.Duration) ClientOption {
	return func(c *baseClient) {
		c.attempts = attempts
		c.backoff = backoff
	}
}

// WithSleeper replaces the wait between polls and retries (useful for tests).
func WithSleeper(sleep func(context.Context, time.Duration) error) ClientOption {
	return func(c *baseClient) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

func newBaseClient(service string, timeout time.Duration, rps float64, opts []ClientOption) baseClient {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	c := baseClient{
		service:  service,
		http:     &http.Client{Timeout: timeout},
		limiter:  limiter,
		attempts: 2,
		backoff:  time.Second,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.attempts < 1 {
		c.attempts = 1
	}
	return c
}

// do sends the request built by newReq, retrying throttled and transient
// failures, and decodes a JSON body into out when out is not nil.
func (c *baseClient) do(ctx context.Context, newReq func(context.Context) (*http.Request, error), out any) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		status, err := c.once(ctx, newReq, out)
		if err == nil {
			return status, nil
		}
		lastErr = err
		if attempt == c.attempts || !retryable(ctx, err) {
			break
		}
		delay := c.backoff * time.Duration(attempt)
		var statusErr *httpStatusError
		if errors.As(err, &statusErr) && statusErr.RetryAfter > delay {
			delay = statusErr.RetryAfter
		}
		if err := c.sleep(ctx, delay); err != nil {
			return 0, err
		}
	}
	return 0, lastErr
}

func (c *baseClient) once(ctx context.Context, newReq func(context.Context) (*http.Request, error), out any) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("%s request: rate limit wait: %w", c.service, err)
	}
	req, err := newReq(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s request: new request: %w", c.service, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s request: http error (timeout=%s): %w", c.service, c.http.Timeout, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%s request: read body: %w", c.service, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return resp.StatusCode, &httpStatusError{
			Service:    c.service,
			StatusCode: resp.StatusCode,
			Body:       string(body),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, fmt.Errorf("%s request: decode response: %w (body=%s)", c.service, err, snippet(string(body)))
		}
	}
	return resp.StatusCode, nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.retryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	const limit = 300
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
