package evmrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/mattsse/inscribememaybe/internal/chain"
	"github.com/mattsse/inscribememaybe/internal/chain/ratelimit"
	"github.com/mattsse/inscribememaybe/internal/circuitbreaker"
	"github.com/mattsse/inscribememaybe/internal/metrics"
)

const (
	defaultSubmitTimeout = 30 * time.Second
	defaultQueryTimeout  = 15 * time.Second
)

// Config configures the JSON-RPC client for one endpoint.
type Config struct {
	URL string

	// SubmitTimeout bounds eth_sendRawTransaction; QueryTimeout bounds
	// everything else. Zero values pick the defaults.
	SubmitTimeout time.Duration
	QueryTimeout  time.Duration

	// RateLimitRPS <= 0 disables client-side pacing.
	RateLimitRPS   float64
	RateLimitBurst int

	BreakerFailureThreshold int
	BreakerOpenTimeout      time.Duration
}

// Client talks JSON-RPC over HTTP to a single EVM endpoint. Every call is
// paced by the rate limiter and accounted by the circuit breaker; methods
// are exposed through the chain.Client interface.
type Client struct {
	httpClient    *http.Client
	rpcURL        string
	requestID     atomic.Int64
	limiter       *ratelimit.Limiter
	breaker       *circuitbreaker.Breaker
	submitTimeout time.Duration
	queryTimeout  time.Duration
	logger        *slog.Logger
}

var _ chain.Client = (*Client)(nil)

// New validates the endpoint URL and builds a client. A URL that cannot
// carry a JSON-RPC request at all is a *chain.FatalError: no retry or
// fallback can make it usable.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	parsed, err := url.Parse(cfg.URL)
	if err != nil || parsed.Host == "" {
		return nil, &chain.FatalError{Message: fmt.Sprintf("malformed rpc url %q", cfg.URL)}
	}
	switch parsed.Scheme {
	case "http", "https":
	default:
		return nil, &chain.FatalError{Message: fmt.Sprintf("unsupported rpc scheme %q in %q", parsed.Scheme, cfg.URL)}
	}

	submitTimeout := cfg.SubmitTimeout
	if submitTimeout <= 0 {
		submitTimeout = defaultSubmitTimeout
	}
	queryTimeout := cfg.QueryTimeout
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}

	c := &Client{
		httpClient:    &http.Client{Timeout: submitTimeout + 5*time.Second},
		rpcURL:        cfg.URL,
		limiter:       ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst),
		submitTimeout: submitTimeout,
		queryTimeout:  queryTimeout,
		logger:        logger.With("component", "evmrpc"),
	}
	c.breaker = circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		OpenTimeout:      cfg.BreakerOpenTimeout,
		OnStateChange: func(from, to circuitbreaker.State) {
			c.logger.Warn("rpc circuit breaker state changed", "from", from, "to", to)
			metrics.RPCBreakerState.Set(float64(to))
		},
	})
	return c, nil
}

// call runs one JSON-RPC request through the limiter, breaker, and timeout,
// and records the request metrics.
func (c *Client) call(ctx context.Context, method string, params []interface{}, timeout time.Duration) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if err := c.breaker.Allow(); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := c.doCall(ctx, method, params)
	metrics.RPCRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	metrics.RPCRequestsTotal.WithLabelValues(method, ratelimit.ClassifyRPCError(err)).Inc()

	if err != nil {
		if isEndpointDown(err) {
			c.breaker.RecordFailure()
		} else {
			// The endpoint answered; a per-request error is not a
			// connectivity failure.
			c.breaker.RecordSuccess()
		}
		return nil, err
	}
	c.breaker.RecordSuccess()
	return result, nil
}

func (c *Client) doCall(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	id := int(c.requestID.Add(1))
	reqBody, err := json.Marshal(request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &chain.FatalError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("http status %d: endpoint rejected credentials", resp.StatusCode),
		}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, truncate(respBody, 256))
	}

	var rpcResp response
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

// isEndpointDown decides whether an error counts against the breaker.
// Transport failures and HTTP errors do; a well-formed JSON-RPC error or a
// credentials rejection means the endpoint is responsive.
func isEndpointDown(err error) bool {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return false
	}
	var fatal *chain.FatalError
	if errors.As(err, &fatal) {
		return false
	}
	return true
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
