// Package external is the boundary between the scheduler's cycles and the
// services they call. All outbound HTTP goes through BaseClient, which adds
// circuit breaking, bounded retries on 429/5xx and error mapping.
package external

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"treasury/internal/types"
)

// RetryPolicy configures the retry behavior for the BaseClient.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy keeps retries short; a cycle that still fails simply
// tries again on the next tick.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		MinWait:    250 * time.Millisecond,
		MaxWait:    2 * time.Second,
	}
}

// BreakerSettings configures the circuit breaker.
type BreakerSettings struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// BaseClient wraps an *http.Client with a circuit breaker and retry policy.
type BaseClient struct {
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy RetryPolicy
	userAgent   string
	sleepFn     func(context.Context, time.Duration) error
}

// BaseClientOption is a functional option for configuring a BaseClient.
type BaseClientOption func(*BaseClient)

// WithSleepFunc overrides the wait between retries. Tests use it to avoid
// real delays.
func WithSleepFunc(fn func(context.Context, time.Duration) error) BaseClientOption {
	return func(c *BaseClient) {
		c.sleepFn = fn
	}
}

// NewBaseClient creates a BaseClient.
func NewBaseClient(httpClient *http.Client, breaker BreakerSettings, policy RetryPolicy, userAgent string, opts ...BaseClientOption) *BaseClient {
	if breaker.ConsecutiveFailures == 0 {
		breaker.ConsecutiveFailures = 5
	}
	if breaker.OpenTimeout <= 0 {
		breaker.OpenTimeout = 30 * time.Second
	}
	threshold := breaker.ConsecutiveFailures

	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        breaker.Name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})

	bc := &BaseClient{
		client:      httpClient,
		breaker:     cb,
		retryPolicy: policy,
		userAgent:   userAgent,
		sleepFn:     sleepContext,
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// BreakerState returns the circuit breaker's current state.
func (c *BaseClient) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// Do executes req through the breaker, retrying 429 and 5xx responses.
// Any other response is returned as-is and the caller closes its body.
// Exhausted retries and an open breaker return an upstream AppError.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if id := types.CorrelationID(ctx); id != "" {
		req.Header.Set("X-Request-Id", id)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to buffer request body", err)
		}
	}

	var lastResp *http.Response
	var lastErr error

	attempts := 1 + c.retryPolicy.MaxRetries
	for attempt := 0; attempt < attempts; attempt++ {
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
			req.ContentLength = int64(len(body))
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}

		if lastResp != nil {
			lastResp.Body.Close()
		}
		lastResp, lastErr = resp, err

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		if attempt == attempts-1 {
			break
		}
		if sleepErr := c.sleepFn(ctx, c.backoff(attempt, resp)); sleepErr != nil {
			lastErr = sleepErr
			break
		}
	}

	if lastResp != nil {
		lastResp.Body.Close()
	}
	return nil, mapError(lastResp, lastErr)
}

// backoff honors Retry-After in seconds, otherwise uses exponential backoff
// with jitter clamped to [MinWait, MaxWait].
func (c *BaseClient) backoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && s > 0 {
			return min(time.Duration(s)*time.Second, c.retryPolicy.MaxWait)
		}
	}

	ceiling := math.Min(
		float64(c.retryPolicy.MinWait)*math.Pow(2, float64(attempt)),
		float64(c.retryPolicy.MaxWait),
	)
	floor := float64(c.retryPolicy.MinWait)
	if ceiling <= floor {
		return c.retryPolicy.MinWait
	}
	return time.Duration(floor + rand.Float64()*(ceiling-floor))
}

func mapError(resp *http.Response, err error) *types.AppError {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "circuit breaker open", err)
	}
	if resp != nil {
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return types.NewAppError(types.ErrCodeUpstreamRateLimited, "upstream rate limit exceeded", err)
		case resp.StatusCode >= 500:
			return types.NewAppError(types.ErrCodeUpstreamUnavailable,
				fmt.Sprintf("upstream returned %d after retries", resp.StatusCode), err)
		}
	}
	return types.NewAppError(types.ErrCodeUpstreamUnavailable, "upstream request failed", err)
}
