// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

// Package score ranks visible events into the overall Top-N and
// per-category tiers.
//
// A score is the sum of three components: imminence (exponential decay by
// time-to-start with a configurable half-life), source trust bonus, and
// metadata completeness. Events that already started contribute nothing to
// the imminence component. Ties break on event id so rankings are stable
// across runs.
package score

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/nightowl-live/nightowl/internal/config"
	"github.com/nightowl-live/nightowl/internal/models"
)

// Ranking is the output of one scoring pass: the overall tier plus one
// ranked subset per configured category tag.
type Ranking struct {
	Overall []models.ScoreRecord
	Tiers   map[string][]models.ScoreRecord
}

// Engine computes event scores from the ranking configuration.
type Engine struct {
	cfg config.RankingConfig

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// NewEngine creates a scoring engine. A nil now falls back to time.Now.
func NewEngine(cfg config.RankingConfig, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{cfg: cfg, now: now}
}

// Score computes the ranking score for a single event at the given
// reference time.
func (e *Engine) Score(event *models.CanonicalEvent, at time.Time) float64 {
	score := e.cfg.TrustWeights[event.Source]
	score += float64(event.Completeness()) * e.cfg.CompletenessWeight

	until := event.StartDate.Sub(at)
	if until >= 0 && e.cfg.RecencyHalfLife > 0 {
		halfLives := float64(until) / float64(e.cfg.RecencyHalfLife)
		score += e.cfg.RecencyWeight * math.Pow(0.5, halfLives)
	}
	return score
}

// Rank scores the given visible events and assembles the overall Top-N
// plus one tier per configured category tag. Hidden events are skipped
// even if a caller passes them in.
func (e *Engine) Rank(events []models.CanonicalEvent) Ranking {
	at := e.now()

	scored := make([]models.ScoreRecord, 0, len(events))
	byID := make(map[string]*models.CanonicalEvent, len(events))
	for i := range events {
		ev := &events[i]
		if !ev.Visible() {
			continue
		}
		scored = append(scored, models.ScoreRecord{
			EventID: ev.ID,
			Score:   e.Score(ev, at),
			Tier:    "overall",
		})
		byID[ev.ID.String()] = ev
	}
	sortRecords(scored)

	ranking := Ranking{
		Overall: topN(scored, e.cfg.TopN),
		Tiers:   make(map[string][]models.ScoreRecord, len(e.cfg.Tiers)),
	}

	for _, tier := range e.cfg.Tiers {
		tag := strings.ToLower(tier)
		var subset []models.ScoreRecord
		for _, rec := range scored {
			if byID[rec.EventID.String()].HasTag(tag) {
				rec.Tier = tag
				subset = append(subset, rec)
			}
		}
		ranking.Tiers[tag] = topN(subset, e.cfg.TopN)
	}
	return ranking
}

// sortRecords orders by descending score, then ascending event id. The id
// tie-break keeps rankings deterministic when scores collide.
func sortRecords(records []models.ScoreRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].Score != records[j].Score {
			return records[i].Score > records[j].Score
		}
		return records[i].EventID.String() < records[j].EventID.String()
	})
}

func topN(records []models.ScoreRecord, n int) []models.ScoreRecord {
	if n <= 0 || n >= len(records) {
		return records
	}
	return records[:n:n]
}
