// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

// Package main is the entry point for the Nightowl server.
//
// Nightowl aggregates event listings for one metro area from ticketing
// APIs and venue websites, deduplicates them into a canonical catalog,
// ranks what is worth seeing, and publishes the result as a JSON API and
// an iCalendar subscription feed.
//
// Startup order:
//
//  1. Configuration: Koanf v2 layered sources (defaults, YAML file,
//     environment variables)
//  2. Catalog database: DuckDB
//  3. Raw dump store: BadgerDB (optional)
//  4. Connectors: one per configured source
//  5. Pipeline runner and cron scheduler
//  6. HTTP server: trigger, feed, rankings, catalog queries, /metrics
//
// Everything long-lived runs under a suture supervision tree and stops
// gracefully on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nightowl-live/nightowl/internal/api"
	"github.com/nightowl-live/nightowl/internal/cache"
	"github.com/nightowl-live/nightowl/internal/config"
	"github.com/nightowl-live/nightowl/internal/connector"
	"github.com/nightowl-live/nightowl/internal/database"
	"github.com/nightowl-live/nightowl/internal/feed"
	"github.com/nightowl-live/nightowl/internal/fetch"
	"github.com/nightowl-live/nightowl/internal/logging"
	"github.com/nightowl-live/nightowl/internal/pipeline"
	"github.com/nightowl-live/nightowl/internal/rawstore"
	"github.com/nightowl-live/nightowl/internal/score"
	"github.com/nightowl-live/nightowl/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("region", cfg.Region.Name).
		Int("sources", len(cfg.Sources)).
		Msg("Nightowl starting")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open catalog database")
	}
	defer func() { _ = db.Close() }()

	var raws *rawstore.Store
	if cfg.RawStore.Enabled {
		raws, err = rawstore.Open(cfg.RawStore.Path, cfg.RawStore.TTL)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to open raw dump store")
		}
		defer func() { _ = raws.Close() }()
	}

	client := fetch.NewClient(fetch.Options{
		MaxAttempts: cfg.Pipeline.FetchMaxAttempts,
		BaseDelay:   cfg.Pipeline.FetchBaseDelay,
		MaxDelay:    cfg.Pipeline.FetchMaxDelay,
	})
	registry, err := connector.NewRegistry(cfg.Sources, client, &cfg.Region)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build source connectors")
	}

	bus := cache.NewBus()
	defer func() { _ = bus.Close() }()
	responseCache := cache.New(15*time.Minute, nil)
	triggerLimiter := cache.NewRateLimiter(
		cfg.Security.TriggerLimitRequests,
		cfg.Security.TriggerLimitWindow,
		nil,
	)

	runner := pipeline.NewRunner(cfg, registry.Connectors(), db, raws, bus, nil)
	scheduler, err := pipeline.NewScheduler(runner, cfg.Pipeline.Schedule, nil)
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid pipeline schedule")
	}

	handler := api.NewHandler(
		cfg, db, responseCache,
		score.NewEngine(cfg.Ranking, nil),
		feed.NewRenderer(cfg.Feed, nil),
		runner, triggerLimiter, nil,
	)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddPipelineService(cache.NewInvalidator(bus, responseCache))
	tree.AddPipelineService(supervisor.NewSweeperService(5*time.Minute, responseCache, triggerLimiter))
	if scheduler != nil {
		tree.AddPipelineService(scheduler)
		logging.Info().Str("schedule", cfg.Pipeline.Schedule).Msg("Pipeline scheduler enabled")
	} else {
		logging.Info().Msg("Pipeline scheduler disabled; runs must be triggered over HTTP")
	}
	if raws != nil {
		tree.AddPipelineService(supervisor.NewGCService(cfg.RawStore.GCInterval, raws))
	}
	tree.AddAPIService(supervisor.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	logging.Info().Msg("Nightowl stopped")
}
