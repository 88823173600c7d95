package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fablekit/loreindex/internal/resilience"
)

const (
	defaultRateLimit = 10 // requests per second
	defaultBurst     = 5
)

// restClient is the shared transport core embedded by every concrete
// provider. It owns the provider's single circuit breaker, the retry policy
// layered above it, and a rate limiter for hosted APIs.
type restClient struct {
	cfg     Config
	meta    Metadata
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	retryer *resilience.Retryer
	logger  *zap.Logger
}

func newRESTClient(cfg Config, meta Metadata, logger *zap.Logger) *restClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	breaker := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		FailureThreshold: cfg.FailureThreshold,
		Timeout:          cfg.BreakerTimeout,
	})
	return &restClient{
		cfg:  cfg,
		meta: meta,
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		breaker: breaker,
		retryer: resilience.NewRetryer(resilience.RetryConfig{
			MaxRetries:  cfg.MaxRetries,
			BaseBackoff: cfg.RetryBackoff,
		}, breaker, Retryable),
		logger: logger.Named(string(meta.ProviderID)),
	}
}

// call runs fn under rate limiting, the circuit breaker, and the retry
// policy. This is the protected path for Embed and Generate.
func (c *restClient) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return c.retryer.Do(ctx, fn)
}

// postJSON issues one POST and decodes the JSON response into out. Network
// failures map to ErrTransport, decode failures to ErrProtocol, and non-2xx
// statuses are classified by statusError.
func (c *restClient) postJSON(ctx context.Context, url string, headers map[string]string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return statusError(resp.StatusCode, respBody)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrProtocol, err)
	}
	return nil
}

// getJSON issues one GET outside the breaker. Used by health checks only.
func (c *restClient) getJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return statusError(resp.StatusCode, respBody)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrProtocol, err)
	}
	return nil
}

// openStream issues one POST and hands back the response body for SSE
// consumption. The connection phase runs through the breaker and retry
// policy; chunk delivery afterwards is unprotected.
func (c *restClient) openStream(ctx context.Context, url string, headers map[string]string, in any) (io.ReadCloser, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	var stream io.ReadCloser
	err = c.call(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		// The default client timeout would cut long streams short; rely
		// on ctx for cancellation instead.
		client := &http.Client{Timeout: 0}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			respBody, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			return statusError(resp.StatusCode, respBody)
		}
		stream = resp.Body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// probe measures one health request. Shared helper for HealthCheck
// implementations; never routed through the breaker.
func (c *restClient) probe(ctx context.Context, fn func(ctx context.Context) ([]string, error)) (*Health, error) {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	start := time.Now()
	models, err := fn(ctx)
	latency := time.Since(start)

	if err != nil {
		return &Health{
			Status:  Unhealthy,
			Latency: latency,
			Message: err.Error(),
		}, nil
	}

	h := &Health{
		Status:  Healthy,
		Latency: latency,
		Models:  models,
	}
	if latency > healthCheckTimeout/2 {
		h.Status = Degraded
		h.Message = "high latency"
	}
	return h, nil
}

// Metadata returns the static capability description.
func (c *restClient) Metadata() Metadata {
	return c.meta
}

// BreakerState exposes the breaker snapshot for diagnostics.
func (c *restClient) BreakerState() resilience.Snapshot {
	return c.breaker.State()
}

// Close is a no-op for HTTP transports.
func (c *restClient) Close() error {
	return nil
}
