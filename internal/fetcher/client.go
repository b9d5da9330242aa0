// Package fetcher provides resilient HTTP fetching for marketplace pages:
// politeness delays with jitter, bounded retry on transient statuses, URL
// fallback chains, and click-tracker redirect resolution.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jonesrussell/ml-inventory/internal/logger"
	"github.com/jonesrussell/ml-inventory/internal/metrics"
	"github.com/jonesrussell/ml-inventory/internal/retry"
)

// Status codes with dedicated handling.
const (
	statusTooManyReqs  = 429
	statusServerErrLow = 500
)

// maxResponseBodyBytes limits the size of fetched page responses.
const maxResponseBodyBytes = 10 * 1024 * 1024 // 10 MB

// defaultUserAgent is a browser-like UA; bare Go UAs get blocked outright.
const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// StatusError reports a non-2xx response. 429 and 5xx are retryable;
// everything else is fatal for that call.
type StatusError struct {
	Code int
	URL  string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d for %s", e.Code, e.URL)
}

// Retryable reports whether the status is worth retrying.
func (e *StatusError) Retryable() bool {
	return e.Code == statusTooManyReqs || e.Code >= statusServerErrLow
}

// IsRetryable classifies an error for the retry policy: retryable statuses
// and transport-level failures retry, other statuses do not.
func IsRetryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	// Network-level errors (timeouts, resets) are transient by assumption.
	return err != nil
}

// Config configures the fetch client.
type Config struct {
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `yaml:"timeout" env:"HTTP_TIMEOUT"`
	// MinDelay is the minimum inter-request delay.
	MinDelay time.Duration `yaml:"min_delay" env:"HTTP_MIN_DELAY"`
	// Jitter is the upper bound of the random delay added to MinDelay.
	Jitter time.Duration `yaml:"jitter" env:"HTTP_JITTER"`
	// MaxRPS optionally caps the request rate on top of the delay; 0 disables.
	MaxRPS float64 `yaml:"max_rps" env:"HTTP_MAX_RPS"`
	// UserAgent overrides the browser-like default.
	UserAgent string `yaml:"user_agent" env:"HTTP_USER_AGENT"`
	// AcceptLanguage is sent on every request.
	AcceptLanguage string `yaml:"accept_language" env:"HTTP_ACCEPT_LANGUAGE"`
}

// NewConfig returns a config with production defaults.
func NewConfig() Config {
	return Config{
		Timeout:        25 * time.Second,
		MinDelay:       1200 * time.Millisecond,
		Jitter:         time.Second,
		UserAgent:      defaultUserAgent,
		AcceptLanguage: "es-MX,es;q=0.9,en;q=0.8",
	}
}

// Client fetches marketplace pages. Safe for concurrent use: the politeness
// state (last-call timestamp) is shared process-wide and mutex-protected.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	policy     retry.Policy
	log        logger.Interface

	minDelay       time.Duration
	jitter         time.Duration
	userAgent      string
	acceptLanguage string

	mu       sync.Mutex
	lastCall time.Time
}

// New creates a fetch client with the given config and retry policy.
func New(cfg Config, policy retry.Policy, log logger.Interface) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if policy.IsRetryable == nil {
		policy.IsRetryable = IsRetryable
	}

	var limiter *rate.Limiter
	if cfg.MaxRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxRPS), 1)
	}

	return &Client{
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		limiter:        limiter,
		policy:         policy,
		log:            log,
		minDelay:       cfg.MinDelay,
		jitter:         cfg.Jitter,
		userAgent:      cfg.UserAgent,
		acceptLanguage: cfg.AcceptLanguage,
	}
}

// Fetch retrieves a page body. Each attempt waits out the politeness delay;
// 429 and 5xx responses are retried per the client's policy, any other
// non-2xx status fails the call immediately.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	err := retry.Do(ctx, c.policy, func() error {
		b, fetchErr := c.fetchOnce(ctx, url)
		if fetchErr != nil {
			return fetchErr
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	return body, nil
}

// FetchWithFallback tries URLs in order with a single attempt each: a 404
// advances to the next URL, any other error is recorded and also advances.
// When the list is exhausted, the last error is returned.
func (c *Client) FetchWithFallback(ctx context.Context, url string, fallbackURLs []string) ([]byte, error) {
	urls := append([]string{url}, fallbackURLs...)

	var lastErr error
	for _, candidate := range urls {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		body, err := c.fetchOnce(ctx, candidate)
		if err == nil {
			return body, nil
		}

		lastErr = err
		c.log.Debug("fallback candidate failed", "url", candidate, "error", err.Error())
	}

	return nil, fmt.Errorf("all %d candidate URLs failed: %w", len(urls), lastErr)
}

// fetchOnce performs one polite GET and classifies the response status.
func (c *Client) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	if err := c.waitPoliteness(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordFetch(http.MethodGet, 0, time.Since(start))
		return nil, fmt.Errorf("http fetch: %w", err)
	}
	defer resp.Body.Close()

	metrics.RecordFetch(http.MethodGet, resp.StatusCode, time.Since(start))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &StatusError{Code: resp.StatusCode, URL: url}
	}

	limited := io.LimitReader(resp.Body, maxResponseBodyBytes)
	body, readErr := io.ReadAll(limited)
	if readErr != nil {
		return nil, fmt.Errorf("read response body: %w", readErr)
	}

	return body, nil
}

// waitPoliteness sleeps out the minimum inter-request delay plus random
// jitter, measured from the previous call, then applies the optional rate
// ceiling. The shared last-call timestamp is mutex-protected so concurrent
// fetch loops do not collapse the delay.
func (c *Client) waitPoliteness(ctx context.Context) error {
	c.mu.Lock()
	now := time.Now()
	wait := c.minDelay - now.Sub(c.lastCall)
	if wait < 0 {
		wait = 0
	}
	if c.jitter > 0 {
		wait += time.Duration(rand.Int63n(int64(c.jitter) + 1))
	}
	c.lastCall = now.Add(wait)
	c.mu.Unlock()

	if wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	return nil
}

// setHeaders applies the browser-like header set expected by the marketplace.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if c.acceptLanguage != "" {
		req.Header.Set("Accept-Language", c.acceptLanguage)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
}
