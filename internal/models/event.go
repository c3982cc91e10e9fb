// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package models

import (
	"time"

	"github.com/google/uuid"
)

// eventNamespace is the UUIDv5 namespace for canonical event IDs.
// Derived once from the URL namespace so that IDs are stable across runs
// and across instances: the same (source, sourceID) always maps to the
// same canonical ID.
var eventNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://nightowl.live/events"))

// CanonicalEvent is the persisted unit of truth for one real-world
// occurrence as reported by one source.
//
// Invariants enforced by the pipeline and the database schema:
//   - (Source, SourceID) is unique
//   - StartDate is always present and timezone-resolved (UTC instant)
//   - Price is nil (unknown) or >= 0; zero means free
type CanonicalEvent struct {
	// ID is derived deterministically from (Source, SourceID) so that
	// re-ingesting the same listing never produces a new identity.
	ID uuid.UUID `json:"id"`

	Title     string     `json:"title"`
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`

	Venue     string `json:"venue"`
	Organizer string `json:"organizer,omitempty"`

	// Source is the connector name that produced this record; SourceID is
	// the listing's identifier within that source.
	Source   string `json:"source"`
	SourceID string `json:"source_id"`

	// Price in whole-currency units. Nil means unknown, zero means free.
	Price *float64 `json:"price"`

	URL         string   `json:"url"`
	Description string   `json:"description"`
	ImageURL    string   `json:"image_url,omitempty"`
	Tags        []string `json:"tags,omitempty"`

	// Geo coordinates when the source provides them.
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	// Hidden soft-deletes the event: set when a source stops reporting the
	// listing or when it is explicitly filtered. Hidden events never appear
	// in default listing queries.
	Hidden bool `json:"hidden"`

	// DuplicateOf points at the representative event's ID when this record
	// is a non-representative member of a duplicate group. Nil for
	// representatives and ungrouped events.
	DuplicateOf *uuid.UUID `json:"duplicate_of,omitempty"`

	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// EventID derives the stable canonical ID for a (source, sourceID) pair.
func EventID(source, sourceID string) uuid.UUID {
	return uuid.NewSHA1(eventNamespace, []byte(source+"/"+sourceID))
}

// Visible reports whether the event appears in default listing queries.
func (e *CanonicalEvent) Visible() bool {
	return !e.Hidden && e.DuplicateOf == nil
}

// Completeness counts the optional metadata fields that are populated:
// description, image, and a resolved price. Used both by the deduplicator's
// representative tie-break and by the scoring engine.
func (e *CanonicalEvent) Completeness() int {
	n := 0
	if e.Description != "" {
		n++
	}
	if e.ImageURL != "" {
		n++
	}
	if e.Price != nil {
		n++
	}
	return n
}

// HasTag reports whether the event carries the given tag (exact match).
func (e *CanonicalEvent) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
