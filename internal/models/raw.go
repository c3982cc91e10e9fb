// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package models

import "time"

// RawListing is the lightly-parsed output of a source connector, owned by
// the connector until it is handed to the normalizer. It is never persisted
// as-is; the raw upstream payload bytes go to the debug dump store instead.
//
// Connectors are responsible for resolving Start/End into absolute instants
// using the source's configured timezone (never the process-local zone) and
// for discarding listings outside the target region. Everything else -
// price parsing, text cleanup, field defaulting - is the normalizer's job.
type RawListing struct {
	Source   string
	SourceID string

	Title string

	// Start and End are absolute instants, already timezone-resolved by
	// the connector. End may be zero when the source does not report one.
	Start time.Time
	End   time.Time

	Venue     string
	Organizer string

	// PriceText is the source's price representation verbatim:
	// "12.50", "0", "free", "" are all possible.
	PriceText string

	URL         string
	Description string
	ImageURL    string
	Tags        []string

	Latitude  float64
	Longitude float64
	HasGeo    bool

	FetchedAt time.Time
}
