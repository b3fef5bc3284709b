package analysisapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/yanqian/flarecast/internal/domain/insight"
	"github.com/yanqian/flarecast/internal/infra/config"
	apperrors "github.com/yanqian/flarecast/pkg/errors"
)

const (
	defaultTimeout  = 30 * time.Second
	maxErrorBody    = 4 << 10
	maxResponseBody = 1 << 20
)

// Options configures the analysis backend client.
type Options struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Retry             RetryOptions
}

// RetryOptions controls retries of unavailable backend calls.
type RetryOptions struct {
	Enabled     bool
	MaxAttempts int
	BaseBackoff time.Duration
}

// OptionsFromConfig maps the backend section of the service config.
func OptionsFromConfig(cfg config.BackendConfig) Options {
	return Options{
		BaseURL:           cfg.BaseURL,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		Retry: RetryOptions{
			Enabled:     cfg.Retry.Enabled,
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseBackoff: cfg.Retry.BaseBackoff,
		},
	}
}

// Client posts analysis requests to the correlation backend over HTTP.
type Client struct {
	baseURL    string
	timeout    time.Duration
	retry      RetryOptions
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient constructs a backend client.
func NewClient(opts Options, logger *slog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}
	retry := opts.Retry
	if !retry.Enabled || retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		timeout:    timeout,
		retry:      retry,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger.With("component", "analysisapi.client"),
	}
}

// BaseURL is the backend address shown in connectivity errors.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Send implements insight.Transport. Timeout bounds the whole call,
// retries and backoff included; every attempt waits on the rate limiter.
func (c *Client) Send(ctx context.Context, req insight.TransportRequest) (insight.TransportResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := c.retry.BaseBackoff << (attempt - 2)
			c.logger.Debug("retrying analysis request", "attempt", attempt, "backoff", backoff, "error", lastErr)
			timer := time.NewTimer(backoff)
			select {
			case <-callCtx.Done():
				timer.Stop()
				return insight.TransportResponse{}, classify(ctx, callCtx, callCtx.Err())
			case <-timer.C:
			}
		}
		if err := c.limiter.Wait(callCtx); err != nil {
			if ctx.Err() != nil {
				return insight.TransportResponse{}, cancelled(ctx, err)
			}
			// The limiter refuses waits that would outlive the deadline.
			return insight.TransportResponse{}, apperrors.Wrap(insight.CodeTransportTimeout, "analysis request timed out waiting for rate limit", err)
		}

		resp, err := c.attempt(ctx, callCtx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return insight.TransportResponse{}, lastErr
}

func (c *Client) attempt(ctx, callCtx context.Context, req insight.TransportRequest) (insight.TransportResponse, error) {
	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+req.Path, bytes.NewReader(req.Body))
	if err != nil {
		return insight.TransportResponse{}, apperrors.Wrap(insight.CodeTransportUnreachable, "build analysis request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "flarecast/1.0")
	if req.BearerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.BearerToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return insight.TransportResponse{}, classify(ctx, callCtx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("analysis backend returned error", "status", resp.StatusCode, "latency_ms", time.Since(start).Milliseconds())
		return insight.TransportResponse{}, apperrors.Wrap(
			insight.CodeServerError,
			"analysis backend error",
			&insight.StatusError{StatusCode: resp.StatusCode, Body: payload},
		)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return insight.TransportResponse{}, classify(ctx, callCtx, err)
	}
	if len(body) > maxResponseBody {
		return insight.TransportResponse{}, apperrors.Wrap(insight.CodeMalformedResponse, "analysis response too large", nil)
	}
	if ctx.Err() != nil {
		return insight.TransportResponse{}, cancelled(ctx, ctx.Err())
	}
	c.logger.Debug("analysis backend responded", "status", resp.StatusCode, "bytes", len(body), "latency_ms", time.Since(start).Milliseconds())
	return insight.TransportResponse{StatusCode: resp.StatusCode, Body: body}, nil
}

// classify maps a failed round trip onto a transport failure code. Caller
// cancellation wins over everything else.
func classify(parent, call context.Context, err error) error {
	if parent.Err() != nil {
		return cancelled(parent, err)
	}
	if errors.Is(call.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(insight.CodeTransportTimeout, "analysis request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.Wrap(insight.CodeTransportTimeout, "analysis request timed out", err)
	}
	return apperrors.Wrap(insight.CodeTransportUnreachable, "analysis backend unreachable", err)
}

func cancelled(ctx context.Context, err error) error {
	if err == nil {
		err = ctx.Err()
	}
	return apperrors.Wrap(insight.CodeCancelled, "analysis request cancelled", err)
}

func retryable(err error) bool {
	if apperrors.IsCode(err, insight.CodeTransportUnreachable) {
		return true
	}
	var statusErr *insight.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}

var _ insight.Transport = (*Client)(nil)
