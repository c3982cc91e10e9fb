// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

// Package pipeline orchestrates one aggregation run: fetch every source
// through a bounded worker pool, normalize, deduplicate against the
// persisted catalog, upsert, and signal cache invalidation.
//
// A run never aborts because one source failed. The run-level hard
// timeout cancels connectors that have not finished; listings from
// sources that completed in time still commit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nightowl-live/nightowl/internal/cache"
	"github.com/nightowl-live/nightowl/internal/config"
	"github.com/nightowl-live/nightowl/internal/connector"
	"github.com/nightowl-live/nightowl/internal/database"
	"github.com/nightowl-live/nightowl/internal/dedup"
	"github.com/nightowl-live/nightowl/internal/logging"
	"github.com/nightowl-live/nightowl/internal/metrics"
	"github.com/nightowl-live/nightowl/internal/models"
	"github.com/nightowl-live/nightowl/internal/normalize"
	"github.com/nightowl-live/nightowl/internal/rawstore"
)

// ErrRunInProgress is returned when a run is triggered while another is
// still executing. Runs are serialized; the catalog snapshot each run
// builds on must be stable.
var ErrRunInProgress = errors.New("pipeline: run already in progress")

// commitTimeout bounds the persistence phase. It is separate from the run
// timeout so fetched work still commits when connectors exhaust the run
// budget.
const commitTimeout = 2 * time.Minute

// Runner executes pipeline runs.
type Runner struct {
	cfg        *config.Config
	connectors []connector.Connector
	normalizer *normalize.Normalizer
	deduper    *dedup.Deduplicator
	db         *database.DB
	raws       *rawstore.Store // nil when the raw store is disabled
	bus        *cache.Bus

	running sync.Mutex
	now     func() time.Time
}

// NewRunner assembles a runner. raws may be nil. A nil now falls back to
// time.Now.
func NewRunner(cfg *config.Config, connectors []connector.Connector, db *database.DB, raws *rawstore.Store, bus *cache.Bus, now func() time.Time) *Runner {
	if now == nil {
		now = time.Now
	}
	return &Runner{
		cfg:        cfg,
		connectors: connectors,
		normalizer: normalize.New(cfg.Region.Name),
		deduper:    dedup.New(cfg),
		db:         db,
		raws:       raws,
		bus:        bus,
		now:        now,
	}
}

// sourceResult is one connector's outcome inside a run.
type sourceResult struct {
	report   models.SourceReport
	listings []models.RawListing
}

// Run executes one pipeline run and returns its summary. The summary is
// returned even when parts of the run failed; per-source errors live in
// the summary, not in the error return.
func (r *Runner) Run(ctx context.Context) (*models.RunSummary, error) {
	if !r.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.running.Unlock()

	runID := logging.GenerateRunID()
	ctx = logging.ContextWithRunID(ctx, runID)
	log := logging.Ctx(ctx)

	start := r.now()
	window := connector.Window{From: start, To: start.Add(r.cfg.Pipeline.Horizon)}
	log.Info().
		Time("window_from", window.From).
		Time("window_to", window.To).
		Int("sources", len(r.connectors)).
		Msg("Pipeline run started")

	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.Pipeline.RunTimeout)
	results := r.fetchAll(fetchCtx, window)
	timedOut := fetchCtx.Err() != nil
	cancel()

	// The commit phase gets its own deadline: work from completed
	// sources persists even when the fetch budget is spent.
	commitCtx, cancelCommit := context.WithTimeout(context.Background(), commitTimeout)
	commitCtx = logging.ContextWithRunID(commitCtx, runID)
	defer cancelCommit()

	summary := r.commit(commitCtx, runID, start, window, results)
	summary.TimedOut = timedOut
	summary.Duration = r.now().Sub(start)

	outcome := "success"
	if timedOut {
		outcome = "timeout"
	} else if len(summary.FailedSources()) > 0 || len(summary.WriteErrors) > 0 {
		outcome = "partial"
	}
	metrics.PipelineRuns.WithLabelValues(outcome).Inc()
	metrics.PipelineRunDuration.Observe(summary.Duration.Seconds())

	if err := r.db.RecordRun(commitCtx, summary); err != nil {
		log.Warn().Err(err).Msg("Failed to record run summary")
	}

	log.Info().
		Str("outcome", outcome).
		Int("events_written", summary.EventsWritten).
		Int("duplicate_groups", summary.DuplicateGroups).
		Dur("duration", summary.Duration).
		Msg("Pipeline run finished")
	return summary, nil
}

// fetchAll runs every connector through a bounded worker pool and
// collects per-source results. Backoff sleeps inside a connector suspend
// only that connector's goroutine.
func (r *Runner) fetchAll(ctx context.Context, window connector.Window) []sourceResult {
	sem := make(chan struct{}, r.cfg.Pipeline.MaxConcurrentSources)
	results := make([]sourceResult, len(r.connectors))

	var wg sync.WaitGroup
	for i, conn := range r.connectors {
		wg.Add(1)
		go func(i int, conn connector.Connector) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = sourceResult{report: models.SourceReport{
					Source: conn.Name(),
					Error:  "run timeout before fetch started",
				}}
				return
			}
			results[i] = r.fetchOne(ctx, conn, window)
		}(i, conn)
	}
	wg.Wait()
	return results
}

func (r *Runner) fetchOne(ctx context.Context, conn connector.Connector, window connector.Window) sourceResult {
	log := logging.Ctx(ctx)
	started := time.Now()

	listings, err := conn.Fetch(ctx, window)
	elapsed := time.Since(started)
	if err != nil {
		log.Warn().Str("source", conn.Name()).Dur("elapsed", elapsed).Err(err).Msg("Source fetch failed")
		return sourceResult{report: models.SourceReport{
			Source:  conn.Name(),
			Error:   err.Error(),
			Elapsed: elapsed,
		}}
	}

	log.Info().Str("source", conn.Name()).Int("listings", len(listings)).Dur("elapsed", elapsed).Msg("Source fetch complete")
	return sourceResult{
		report: models.SourceReport{
			Source:   conn.Name(),
			OK:       true,
			Listings: len(listings),
			Elapsed:  elapsed,
		},
		listings: listings,
	}
}

// commit normalizes, deduplicates and persists everything the completed
// sources produced.
func (r *Runner) commit(ctx context.Context, runID string, start time.Time, window connector.Window, results []sourceResult) *models.RunSummary {
	log := logging.Ctx(ctx)
	summary := &models.RunSummary{StartedAt: start}

	var batch []models.CanonicalEvent
	for i := range results {
		res := &results[i]
		if res.report.OK && r.raws != nil {
			if err := r.raws.Put(res.report.Source, runID, res.listings, start); err != nil {
				log.Warn().Str("source", res.report.Source).Err(err).Msg("Raw dump store write failed")
			}
		}

		events, dropped := r.normalizer.NormalizeBatch(res.listings)
		res.report.Skipped += dropped
		summary.Sources = append(summary.Sources, res.report)
		batch = append(batch, events...)
	}

	if len(batch) == 0 && !anySucceeded(results) {
		log.Warn().Msg("No source completed; nothing to commit")
		return summary
	}

	// Consolidate with the persisted window so cross-run duplicates
	// resolve exactly like same-run duplicates.
	persisted, err := r.db.OverlapCandidates(ctx, window.From, window.To)
	if err != nil {
		log.Error().Err(err).Msg("Loading persisted window failed; deduplicating fetch batch alone")
		summary.WriteErrors = append(summary.WriteErrors, fmt.Sprintf("overlap query: %v", err))
		persisted = nil
	}

	// A source that completed this run vouches only for what it returned.
	// Its persisted records it no longer reports are vanished listings:
	// HideStale hides them below, so they must not win representative
	// election over records a live source still carries. Records from
	// failed or unconfigured sources keep participating.
	okSource := make(map[string]bool, len(summary.Sources))
	for i := range summary.Sources {
		if summary.Sources[i].OK {
			okSource[summary.Sources[i].Source] = true
		}
	}
	candidates := persisted[:0]
	for _, c := range persisted {
		if okSource[c.Source] && c.LastSeenAt.Before(start) {
			continue
		}
		candidates = append(candidates, c)
	}

	groups := dedup.Resolve(r.deduper.Group(append(batch, candidates...)))
	summary.DuplicateGroups = countCrossSource(groups)
	metrics.DuplicateGroupsFound.Add(float64(summary.DuplicateGroups))

	written, failures := r.db.UpsertGroups(ctx, groups)
	summary.EventsWritten = written
	summary.WriteErrors = append(summary.WriteErrors, failures...)
	metrics.EventsWritten.Add(float64(written))

	// Sources that completed hide their vanished upcoming events.
	for i := range summary.Sources {
		rep := &summary.Sources[i]
		if !rep.OK {
			continue
		}
		hidden, err := r.db.HideStale(ctx, rep.Source, start, start)
		if err != nil {
			log.Warn().Str("source", rep.Source).Err(err).Msg("Hiding stale events failed")
			summary.WriteErrors = append(summary.WriteErrors, fmt.Sprintf("hide stale %s: %v", rep.Source, err))
			continue
		}
		summary.EventsHidden += int(hidden)
	}

	// Invalidation is idempotent; publish even on partial failure so
	// readers never serve a pre-run snapshot as current.
	if err := r.bus.PublishInvalidation(runID); err != nil {
		log.Warn().Err(err).Msg("Cache invalidation publish failed")
	}

	return summary
}

func anySucceeded(results []sourceResult) bool {
	for i := range results {
		if results[i].report.OK {
			return true
		}
	}
	return false
}

// countCrossSource counts groups with members from more than one source;
// single-member groups are not duplicates.
func countCrossSource(groups []models.DuplicateGroup) int {
	n := 0
	for _, g := range groups {
		if len(g.Members) > 1 {
			n++
		}
	}
	return n
}
