// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package models

import "time"

// SourceReport records one connector's outcome within a pipeline run.
type SourceReport struct {
	Source string `json:"source"`

	// OK is false when the connector failed entirely (unreachable source,
	// retries exhausted). A failed connector contributes zero listings but
	// never aborts the run.
	OK bool `json:"ok"`

	Listings int    `json:"listings"`
	Skipped  int    `json:"skipped"` // geo-filtered or invalid listings, expected
	Error    string `json:"error,omitempty"`

	Elapsed time.Duration `json:"elapsed_ms"`
}

// RunSummary is the single user-visible failure report for a pipeline run.
// Partial state is never silently swallowed: every source outcome and every
// batch write failure appears here.
type RunSummary struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ms"`

	Sources []SourceReport `json:"sources"`

	EventsWritten   int `json:"events_written"`
	EventsHidden    int `json:"events_hidden"`
	DuplicateGroups int `json:"duplicate_groups"`

	// WriteErrors lists batch writes that failed. Other batches proceed.
	WriteErrors []string `json:"write_errors,omitempty"`

	// TimedOut is true when the run's hard timeout aborted remaining
	// connectors. Whatever completed before the deadline is still committed.
	TimedOut bool `json:"timed_out"`
}

// FailedSources returns the names of connectors that reported a failure,
// in report order.
func (s *RunSummary) FailedSources() []string {
	var failed []string
	for i := range s.Sources {
		if !s.Sources[i].OK {
			failed = append(failed, s.Sources[i].Source)
		}
	}
	return failed
}
