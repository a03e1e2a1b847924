// Package backend is the REST client for the dispatch backend.
package backend

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
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"dispatchdesk/internal/metrics"
)

type Options struct {
	BaseURL string
	// Token is the service bearer token injected on every request.
	Token           string
	Timeout         time.Duration
	RateRPS         float64
	Burst           int
	BreakerFailures uint32
	BreakerCooldown time.Duration
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

// Client calls the dispatch backend. Calls are rate limited and pass through
// a circuit breaker that only counts transport errors and 5xx responses.
type Client struct {
	base    string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     *slog.Logger
}

func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if opts.RateRPS > 0 {
		limit = rate.Limit(opts.RateRPS)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}
	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	c := &Client{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		http:    hc,
		limiter: rate.NewLimiter(limit, burst),
		log:     logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "dispatch-backend",
		Timeout: opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var ae *APIError
			return errors.As(err, &ae) && !ae.Temporary()
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

func (c *Client) do(ctx context.Context, op, method, path string, q url.Values, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	start := time.Now()
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.roundTrip(ctx, op, method, path, q, in, out)
	})
	metrics.BackendLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	outcome := "ok"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = "breaker_open"
		err = fmt.Errorf("%w: %s", ErrUnavailable, op)
	case err != nil:
		outcome = "error"
	}
	metrics.BackendCalls.WithLabelValues(op, outcome).Inc()
	if err != nil {
		c.log.Warn("backend call failed", "op", op, "method", method, "path", path, "err", err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, q url.Values, in, out any) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("backend %s: encode: %w", op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("backend %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend %s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("backend %s: read: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Op: op, Status: resp.StatusCode, Message: parseErrorMessage(raw)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("backend %s: decode: %w", op, err)
	}
	return nil
}

func pageParams(q url.Values, p Page) {
	q.Set("top", fmt.Sprint(p.Top()))
	q.Set("skip", fmt.Sprint(p.Skip()))
}
