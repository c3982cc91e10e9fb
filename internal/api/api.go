// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

// Package api serves the HTTP surface: the pipeline trigger, the
// calendar feed, ranking tiers and catalog queries.
package api

import (
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/nightowl-live/nightowl/internal/cache"
	"github.com/nightowl-live/nightowl/internal/config"
	"github.com/nightowl-live/nightowl/internal/database"
	"github.com/nightowl-live/nightowl/internal/feed"
	"github.com/nightowl-live/nightowl/internal/logging"
	"github.com/nightowl-live/nightowl/internal/models"
	"github.com/nightowl-live/nightowl/internal/pipeline"
	"github.com/nightowl-live/nightowl/internal/score"
)

// Handler holds the API's collaborators.
type Handler struct {
	cfg      *config.Config
	db       *database.DB
	cache    *cache.Cache
	engine   *score.Engine
	renderer *feed.Renderer
	runner   *pipeline.Runner

	// triggerLimiter guards the pipeline trigger endpoint separately
	// from the API-wide limiter.
	triggerLimiter *cache.RateLimiter

	now func() time.Time
}

// NewHandler assembles the API handler. A nil now falls back to time.Now.
func NewHandler(cfg *config.Config, db *database.DB, c *cache.Cache, engine *score.Engine, renderer *feed.Renderer, runner *pipeline.Runner, limiter *cache.RateLimiter, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{
		cfg:            cfg,
		db:             db,
		cache:          c,
		engine:         engine,
		renderer:       renderer,
		runner:         runner,
		triggerLimiter: limiter,
		now:            now,
	}
}

func respondJSON(w http.ResponseWriter, status int, resp *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Warn().Err(err).Msg("Failed to encode API response")
	}
}

func respondSuccess(w http.ResponseWriter, data any, start time.Time) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   data,
		Metadata: models.Metadata{
			Timestamp:   time.Now().UTC(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, &models.APIResponse{
		Status:   "error",
		Error:    msg,
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
	})
}
