// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nightowl-live/nightowl/internal/logging"
)

// HTTPServer matches *http.Server's lifecycle methods.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService adapts an HTTP server's blocking ListenAndServe to
// suture's context-aware Serve.
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPServerService wraps an HTTP server as a supervised service.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service. http.ErrServerClosed is the expected
// shutdown outcome and maps to a clean stop.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		// The serve context is already canceled; shutdown gets its own.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *HTTPServerService) String() string {
	return "http-server"
}

// Sweepable is anything with idle state to reclaim on a schedule; the
// response cache and the trigger rate limiter both qualify.
type Sweepable interface {
	Sweep() int
}

// SweeperService periodically sweeps expired cache entries and idle rate
// limiter counters so memory tracks the working set rather than history.
type SweeperService struct {
	interval time.Duration
	targets  []Sweepable
}

// NewSweeperService builds a sweeper over the given targets.
func NewSweeperService(interval time.Duration, targets ...Sweepable) *SweeperService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SweeperService{interval: interval, targets: targets}
}

// Serve implements suture.Service.
func (s *SweeperService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			swept := 0
			for _, t := range s.targets {
				swept += t.Sweep()
			}
			if swept > 0 {
				logging.Debug().Int("entries", swept).Msg("Sweeper reclaimed idle entries")
			}
		}
	}
}

func (s *SweeperService) String() string {
	return "sweeper"
}

// GarbageCollector triggers value-log reclamation; satisfied by the raw
// dump store.
type GarbageCollector interface {
	RunGC() error
}

// GCService runs raw store garbage collection on an interval. Badger does
// not reclaim value-log space on its own.
type GCService struct {
	interval time.Duration
	store    GarbageCollector
}

// NewGCService builds the GC loop.
func NewGCService(interval time.Duration, store GarbageCollector) *GCService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &GCService{interval: interval, store: store}
}

// Serve implements suture.Service.
func (g *GCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := g.store.RunGC(); err != nil {
				logging.Warn().Err(err).Msg("Raw store garbage collection failed")
			}
		}
	}
}

func (g *GCService) String() string {
	return "rawstore-gc"
}
