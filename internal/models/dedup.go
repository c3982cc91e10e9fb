// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package models

import "github.com/google/uuid"

// DuplicateGroup is a set of canonical event candidates judged to represent
// one real occurrence. Exactly one member is the representative; the others
// are retained for audit and source-id tracking but excluded from default
// listing queries.
//
// Group membership is recomputed every pipeline run from the fetched batch
// plus the persisted events overlapping the run's time window. It is not an
// independently persisted entity; the DuplicateOf column on members is the
// durable record.
type DuplicateGroup struct {
	// Key is the normalized (title, start-minute) dedup key shared by all
	// members.
	Key string `json:"key"`

	// Representative is the member shown in default queries.
	Representative CanonicalEvent `json:"representative"`

	// Members holds the non-representative candidates, ordered by source
	// then source ID for reproducible output.
	Members []CanonicalEvent `json:"members,omitempty"`
}

// SourceIDs lists every (source, sourceID) pair in the group, the
// representative first. Used by the audit log.
func (g *DuplicateGroup) SourceIDs() []string {
	ids := make([]string, 0, len(g.Members)+1)
	ids = append(ids, g.Representative.Source+"/"+g.Representative.SourceID)
	for i := range g.Members {
		ids = append(ids, g.Members[i].Source+"/"+g.Members[i].SourceID)
	}
	return ids
}

// ScoreRecord maps an event to its computed ranking score and tier. Score
// records are derived solely from canonical event attributes and recency;
// they are recomputed per request or per schedule and are never the source
// of truth.
type ScoreRecord struct {
	EventID uuid.UUID `json:"event_id"`
	Score   float64   `json:"score"`
	Tier    string    `json:"tier"`
}
