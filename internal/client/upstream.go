package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kjstillabower/firewatch-service/internal/circuitbreaker"
	"github.com/kjstillabower/firewatch-service/internal/observability"
)

var (
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrNotFound        = errors.New("resource not found")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRateLimited     = errors.New("rate limited")
	// ErrSchema means the response arrived but lacks the fields the fetcher relies on.
	ErrSchema = errors.New("unexpected response schema")
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 32 << 20

const defaultUserAgent = "firewatch-service (github.com/kjstillabower/firewatch-service)"

// upstream is the shared GET path for all data source clients: one attempt, timeout-bounded,
// optionally guarded by a circuit breaker, with per-source metrics.
type upstream struct {
	client    *http.Client
	userAgent string
	breaker   *circuitbreaker.CircuitBreaker
	maxBody   int64
}

func newUpstream(timeout time.Duration, userAgent string) upstream {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return upstream{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		maxBody:   maxBodyBytes,
	}
}

// get issues a GET and returns the body of a 2xx response.
func (u *upstream) get(ctx context.Context, source, rawURL, accept string) ([]byte, error) {
	var body []byte
	call := func() error {
		var err error
		body, err = u.do(ctx, source, rawURL, accept)
		return err
	}
	var err error
	if u.breaker == nil {
		err = call()
	} else {
		err = u.breaker.Call(ctx, call)
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (u *upstream) do(ctx context.Context, source, rawURL, accept string) ([]byte, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(source, "error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", u.userAgent)
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(source, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(source, "error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(source, status).Inc()
	observability.UpstreamDuration.WithLabelValues(source, status).Observe(time.Since(start).Seconds())

	if err := handleErrorResponse(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, u.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	// A truncated body could still parse, with a cut-off last row.
	if int64(len(body)) > u.maxBody {
		return nil, fmt.Errorf("%w: response body exceeds %d bytes", ErrSchema, u.maxBody)
	}
	return body, nil
}

// SetCircuitBreaker guards subsequent calls with cb. Pass nil to remove it.
func (u *upstream) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	u.breaker = cb
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrInvalidAPIKey, resp.StatusCode)
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
