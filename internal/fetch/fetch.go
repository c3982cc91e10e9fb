// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

// Package fetch is the resilient network access layer shared by all source
// connectors. Given a request descriptor it returns the response body or a
// typed failure:
//
//   - Transient conditions (timeouts, 5xx, HTTP 429) are retried with
//     exponential backoff and jitter up to a fixed attempt budget, then
//     reported as *TransientError.
//   - Non-retryable conditions (other 4xx, malformed URLs) fail
//     immediately as *FatalError.
//
// Each source gets its own rate limiter (request pacing) and circuit
// breaker, so one misbehaving upstream cannot slow or trip the others.
// Backoff sleeps are context-aware and suspend only the calling goroutine.
package fetch

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/nightowl-live/nightowl/internal/logging"
	"github.com/nightowl-live/nightowl/internal/metrics"
)

// maxBodySize caps response bodies to keep a misbehaving upstream from
// exhausting memory.
const maxBodySize = 8 << 20 // 8MB

// Request describes one upstream fetch.
type Request struct {
	// Source labels the upstream for limiters, breakers, logs and metrics.
	Source string

	URL    string
	Header http.Header
}

// Options configures a Client.
type Options struct {
	// MaxAttempts is the total attempt budget per request (first try
	// included). Default 5.
	MaxAttempts int

	// BaseDelay is the first backoff delay; it doubles per retry up to
	// MaxDelay. Defaults 1s / 30s.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Timeout bounds a single HTTP attempt. Default 30s.
	Timeout time.Duration
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 5
	}
	if out.BaseDelay <= 0 {
		out.BaseDelay = time.Second
	}
	if out.MaxDelay <= 0 {
		out.MaxDelay = 30 * time.Second
	}
	if out.Timeout <= 0 {
		out.Timeout = 30 * time.Second
	}
	return out
}

// sourceState holds the per-source limiter and breaker.
type sourceState struct {
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// Client performs resilient HTTP fetches. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	opts       Options

	mu      sync.Mutex
	sources map[string]*sourceState
}

// NewClient creates a fetch client with the given options.
func NewClient(opts Options) *Client {
	o := opts.withDefaults()
	return &Client{
		httpClient: &http.Client{Timeout: o.Timeout},
		opts:       o,
		sources:    make(map[string]*sourceState),
	}
}

// RegisterSource sets the request pacing for a source. Unregistered
// sources get a conservative 2 req/s default on first use.
func (c *Client) RegisterSource(source string, reqPerSecond float64, burst int) {
	if reqPerSecond <= 0 {
		reqPerSecond = 2
	}
	if burst < 1 {
		burst = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[source] = &sourceState{
		limiter: rate.NewLimiter(rate.Limit(reqPerSecond), burst),
		breaker: c.newBreaker(source),
	}
}

func (c *Client) state(source string) *sourceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.sources[source]
	if !ok {
		st = &sourceState{
			limiter: rate.NewLimiter(rate.Limit(2), 1),
			breaker: c.newBreaker(source),
		}
		c.sources[source] = st
	}
	return st
}

// newBreaker builds the per-source circuit breaker. It opens after a 60%
// failure rate over at least 10 requests and probes again after one
// minute. Breaker timing uses real time; the breaker protects upstreams,
// it does not affect data integrity.
func (c *Client) newBreaker(source string) *gobreaker.CircuitBreaker[[]byte] {
	metrics.CircuitBreakerState.WithLabelValues(source).Set(0)
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        source,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("source", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("Fetch circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})
}

// Get fetches the request's URL and returns the response body. Retries
// transient failures per the client's backoff options; the context cancels
// both in-flight attempts and backoff waits.
func (c *Client) Get(ctx context.Context, req Request) ([]byte, error) {
	if _, err := url.ParseRequestURI(req.URL); err != nil {
		metrics.FetchAttempts.WithLabelValues(req.Source, "fatal").Inc()
		return nil, &FatalError{Source: req.Source, Err: err}
	}

	st := c.state(req.Source)
	start := time.Now()

	body, err := st.breaker.Execute(func() ([]byte, error) {
		return c.getWithRetry(ctx, st, req)
	})
	metrics.FetchDuration.WithLabelValues(req.Source).Observe(time.Since(start).Seconds())

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.FetchAttempts.WithLabelValues(req.Source, "fatal").Inc()
		return nil, &FatalError{Source: req.Source, Err: err}
	}
	return body, err
}

// getWithRetry runs the attempt loop. It returns typed errors only.
func (c *Client) getWithRetry(ctx context.Context, st *sourceState, req Request) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if err := st.limiter.Wait(ctx); err != nil {
			return nil, &TransientError{Source: req.Source, Attempts: attempt, Err: err}
		}

		body, retryAfter, err := c.attempt(ctx, req)
		if err == nil {
			metrics.FetchAttempts.WithLabelValues(req.Source, "success").Inc()
			logging.Debug().
				Str("source", req.Source).
				Int("attempts", attempt).
				Msg("Fetch succeeded")
			return body, nil
		}

		if IsFatal(err) {
			metrics.FetchAttempts.WithLabelValues(req.Source, "fatal").Inc()
			logging.Warn().
				Err(err).
				Str("source", req.Source).
				Int("attempts", attempt).
				Msg("Fetch failed permanently")
			return nil, err
		}

		lastErr = err
		if attempt == c.opts.MaxAttempts {
			break
		}

		metrics.FetchRetries.WithLabelValues(req.Source).Inc()
		delay := c.backoff(attempt, retryAfter)
		logging.Debug().
			Str("source", req.Source).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Fetch retrying after transient failure")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &TransientError{Source: req.Source, Attempts: attempt, Err: ctx.Err()}
		}
	}

	metrics.FetchAttempts.WithLabelValues(req.Source, "transient").Inc()
	logging.Warn().
		Err(lastErr).
		Str("source", req.Source).
		Int("attempts", c.opts.MaxAttempts).
		Msg("Fetch retries exhausted")
	return nil, &TransientError{Source: req.Source, Attempts: c.opts.MaxAttempts, Err: lastErr}
}

// attempt performs one HTTP round trip and classifies the outcome. The
// returned duration is a server-requested Retry-After, zero if absent.
func (c *Client) attempt(ctx context.Context, req Request) ([]byte, time.Duration, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, http.NoBody)
	if err != nil {
		return nil, 0, &FatalError{Source: req.Source, Err: err}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network errors and timeouts are transient by classification.
		return nil, 0, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return nil, 0, err
		}
		return body, 0, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), errRateLimited

	case resp.StatusCode >= 500:
		return nil, 0, errServerFailure(resp.StatusCode)

	default:
		// Remaining 4xx (and unexpected 3xx) do not retry.
		return nil, 0, &FatalError{
			Source:     req.Source,
			StatusCode: resp.StatusCode,
			Err:        errUnexpectedStatus,
		}
	}
}

// backoff computes the delay before the given retry: exponential from
// BaseDelay, capped at MaxDelay, with up to 50% random jitter so parallel
// connectors do not retry in lockstep. A server-requested Retry-After
// takes precedence when longer.
func (c *Client) backoff(attempt int, retryAfter time.Duration) time.Duration {
	delay := c.opts.BaseDelay << uint(attempt-1)
	if delay > c.opts.MaxDelay || delay <= 0 {
		delay = c.opts.MaxDelay
	}
	delay += time.Duration(rand.Int63n(int64(delay)/2 + 1)) //nolint:gosec // jitter, not crypto
	if retryAfter > delay {
		delay = retryAfter
	}
	return delay
}

// parseRetryAfter handles the delta-seconds form of the header. The HTTP
// date form is rare on rate limiters and falls back to normal backoff.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if d, err := time.ParseDuration(value + "s"); err == nil && d > 0 {
		return d
	}
	return 0
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
