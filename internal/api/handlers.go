// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/nightowl-live/nightowl/internal/database"
	"github.com/nightowl-live/nightowl/internal/logging"
	"github.com/nightowl-live/nightowl/internal/models"
	"github.com/nightowl-live/nightowl/internal/pipeline"
)

// TriggerRun starts one pipeline run and returns its summary. Runs are
// serialized; a concurrent trigger gets 409 rather than a queued run.
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	summary, err := h.runner.Run(r.Context())
	if errors.Is(err, pipeline.ErrRunInProgress) {
		respondError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	if err != nil {
		log := logging.Ctx(r.Context())
		log.Error().Err(err).Msg("Pipeline run failed")
		respondError(w, http.StatusInternalServerError, "pipeline run failed")
		return
	}

	respondSuccess(w, summary, start)
}

// LastRun returns the most recent run summary.
func (h *Handler) LastRun(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	summary, err := h.db.LastRun(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if summary == nil {
		respondError(w, http.StatusNotFound, "no runs recorded yet")
		return
	}
	respondSuccess(w, summary, start)
}

// CalendarFeed serves the overall Top-N tier as an iCalendar document.
// Safe to poll; responses are cached until the catalog changes.
func (h *Handler) CalendarFeed(w http.ResponseWriter, r *http.Request) {
	const cacheKey = "feed:calendar"
	if cached, ok := h.cache.Get(cacheKey); ok {
		writeCalendar(w, cached.([]byte))
		return
	}

	events, err := h.topOverall(r)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}

	document := h.renderer.Render(events)
	h.cache.Set(cacheKey, document)
	writeCalendar(w, document)
}

func writeCalendar(w http.ResponseWriter, document []byte) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write(document)
}

// topOverall returns the overall tier's events in rank order.
func (h *Handler) topOverall(r *http.Request) ([]models.CanonicalEvent, error) {
	events, err := h.horizonEvents(r)
	if err != nil {
		return nil, err
	}
	ranking := h.engine.Rank(events)
	return pickRanked(events, ranking.Overall), nil
}

// RankingsOverall serves the overall Top-N tier with scores.
func (h *Handler) RankingsOverall(w http.ResponseWriter, r *http.Request) {
	h.serveRanking(w, r, "")
}

// RankingsTier serves one category tier.
func (h *Handler) RankingsTier(w http.ResponseWriter, r *http.Request) {
	h.serveRanking(w, r, chi.URLParam(r, "tag"))
}

func (h *Handler) serveRanking(w http.ResponseWriter, r *http.Request, tag string) {
	start := time.Now()
	// Tier keys are lowercase; the URL segment may not be.
	tag = strings.ToLower(tag)
	cacheKey := "rankings:" + tag
	if cached, ok := h.cache.Get(cacheKey); ok {
		respondSuccess(w, cached, start)
		return
	}

	events, err := h.horizonEvents(r)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}

	ranking := h.engine.Rank(events)
	records := ranking.Overall
	if tag != "" {
		var ok bool
		records, ok = ranking.Tiers[tag]
		if !ok {
			respondError(w, http.StatusNotFound, "unknown tier")
			return
		}
	}

	ranked := make([]models.RankedEvent, 0, len(records))
	byID := indexByID(events)
	for _, rec := range records {
		if ev, ok := byID[rec.EventID]; ok {
			ranked = append(ranked, models.RankedEvent{Event: *ev, Score: rec.Score})
		}
	}

	h.cache.Set(cacheKey, ranked)
	respondSuccess(w, ranked, start)
}

// ListEvents serves visible events, filtered by optional from/to/tag
// query parameters. Defaults cover the ranking window.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	events, err := h.windowEvents(r, r.URL.Query().Get("tag"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	respondSuccess(w, events, start)
}

// batchRequest is the body of POST /events/batch.
type batchRequest struct {
	IDs []uuid.UUID `json:"ids"`
}

// BatchEvents looks up events by id list. The list size is bounded.
func (h *Handler) BatchEvents(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		respondError(w, http.StatusBadRequest, "ids must not be empty")
		return
	}
	if len(req.IDs) > database.MaxBatchIDs {
		respondError(w, http.StatusBadRequest, "too many ids")
		return
	}

	events, err := h.db.EventsByIDs(r.Context(), req.IDs)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	respondSuccess(w, events, start)
}

// SimilarEvents serves events similar to the given one: shared tag,
// nearby start.
func (h *Handler) SimilarEvents(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	event, err := h.db.EventByID(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if event == nil {
		respondError(w, http.StatusNotFound, "event not found")
		return
	}

	similar, err := h.db.SimilarEvents(r.Context(), event, 10)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	respondSuccess(w, similar, start)
}

// HealthLive reports process liveness.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, map[string]string{"status": "alive"}, time.Now())
}

// HealthReady reports readiness: the catalog database must answer.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := h.db.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	respondSuccess(w, map[string]string{"status": "ready"}, start)
}

// horizonEvents loads visible events for the fixed ranking window
// [now, now+horizon). Ranking and feed responses are cached per tier, so
// they never honor caller-supplied windows.
func (h *Handler) horizonEvents(r *http.Request) ([]models.CanonicalEvent, error) {
	now := h.now()
	return h.db.VisibleEvents(r.Context(), now, now.Add(h.cfg.Pipeline.Horizon), "")
}

// windowEvents loads visible events for the request's window, defaulting
// to [now, now+horizon).
func (h *Handler) windowEvents(r *http.Request, tag string) ([]models.CanonicalEvent, error) {
	now := h.now()
	from, to := now, now.Add(h.cfg.Pipeline.Horizon)

	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			from = t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			to = t
		}
	}
	return h.db.VisibleEvents(r.Context(), from, to, tag)
}

func pickRanked(events []models.CanonicalEvent, records []models.ScoreRecord) []models.CanonicalEvent {
	byID := indexByID(events)
	out := make([]models.CanonicalEvent, 0, len(records))
	for _, rec := range records {
		if ev, ok := byID[rec.EventID]; ok {
			out = append(out, *ev)
		}
	}
	return out
}

func indexByID(events []models.CanonicalEvent) map[uuid.UUID]*models.CanonicalEvent {
	byID := make(map[uuid.UUID]*models.CanonicalEvent, len(events))
	for i := range events {
		byID[events[i].ID] = &events[i]
	}
	return byID
}
