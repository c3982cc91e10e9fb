// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package models

import "time"

// APIResponse is the JSON envelope for every API endpoint.
type APIResponse struct {
	Status   string   `json:"status"` // "success" or "error"
	Data     any      `json:"data,omitempty"`
	Error    string   `json:"error,omitempty"`
	Metadata Metadata `json:"metadata"`
}

// Metadata carries per-response bookkeeping.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms"`
	Cached      bool      `json:"cached,omitempty"`
}

// RankedEvent pairs an event with its computed ranking score.
type RankedEvent struct {
	Event CanonicalEvent `json:"event"`
	Score float64        `json:"score"`
}
