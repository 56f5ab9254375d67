package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/resilience"
)

const userAgent = "query-yield-analyzer/1.0"

// maxBody caps how much of a platform response is read.
const maxBody = 8 << 20

// httpClient performs JSON GETs against one platform with throttling, retry,
// a per-request timeout and a circuit breaker.
type httpClient struct {
	platform string
	http     *http.Client
	limiter  *ratelimit.Limiter
	rate     int
	breaker  *resilience.CircuitBreaker
	retry    resilience.RetryConfig
	timeout  time.Duration
	logger   *slog.Logger
}

// BreakerHook receives circuit breaker transitions, typically to export
// them as a metric.
type BreakerHook func(name string, to resilience.State)

func newHTTPClient(platform string, cfg config.PlatformConfig, limiter *ratelimit.Limiter, hook BreakerHook) *httpClient {
	cbCfg := resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.FailureThreshold,
		ResetTimeout:     30 * time.Second,
		IsFailure: func(err error) bool {
			// A query the platform rejects says nothing about its health.
			return err != nil && !errors.Is(err, apperrors.ErrInvalidQuery) && !errors.Is(err, apperrors.ErrNoResults)
		},
	}
	if hook != nil {
		cbCfg.OnStateChange = hook
	}
	return &httpClient{
		platform: platform,
		http:     &http.Client{},
		limiter:  limiter,
		rate:     cfg.RequestsPerSecond,
		breaker:  resilience.NewCircuitBreaker(platform, cbCfg),
		retry:    resilience.RetryConfig{MaxAttempts: cfg.MaxAttempts, InitialDelay: 250 * time.Millisecond},
		timeout:  cfg.Timeout,
		logger:   slog.Default().With("component", "source-http", "platform", platform),
	}
}

// getJSON fetches url and decodes the body into out.
func (c *httpClient) getJSON(ctx context.Context, url string, out any) error {
	return resilience.Retry(ctx, c.platform+"-fetch", c.retry, func() error {
		return c.breaker.Execute(func() error {
			if c.limiter != nil {
				if err := c.limiter.Wait(ctx, c.platform, c.rate); err != nil {
					return resilience.Permanent(fmt.Errorf("waiting for %s rate limit: %w", c.platform, err))
				}
			}
			return resilience.WithTimeout(ctx, c.timeout, c.platform, func(ctx context.Context) error {
				return c.do(ctx, url, out)
			})
		})
	})
}

func (c *httpClient) do(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return resilience.Permanent(fmt.Errorf("building %s request: %w", c.platform, err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s request: %v", apperrors.ErrUpstream, c.platform, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("%w: reading %s response: %v", apperrors.ErrUpstream, c.platform, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		err := fmt.Errorf("%w: %s returned 429", apperrors.ErrRateLimited, c.platform)
		return resilience.After(err, retryAfter(resp.Header.Get("Retry-After")))
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s returned %d", apperrors.ErrUpstream, c.platform, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return resilience.Permanent(fmt.Errorf("%w: %s returned 404", apperrors.ErrNoResults, c.platform))
	case resp.StatusCode >= 400:
		return resilience.Permanent(fmt.Errorf("%w: %s rejected query with %d: %s",
			apperrors.ErrInvalidQuery, c.platform, resp.StatusCode, truncate(string(body), 200)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return resilience.Permanent(fmt.Errorf("%w: decoding %s response: %v", apperrors.ErrUpstream, c.platform, err))
	}
	return nil
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
