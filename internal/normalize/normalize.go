// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

// Package normalize converts raw listings into canonical event candidates.
//
// The stage is a pure transformation: identical RawListing input always
// yields an identical CanonicalEvent candidate. It owns price parsing,
// text cleanup (markdown stripping, entity decoding, location-phrase
// trimming), and field defaulting; timezone resolution and geo filtering
// happened earlier, at the connector boundary.
package normalize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nightowl-live/nightowl/internal/models"
)

// Normalizer turns raw listings into canonical event candidates.
type Normalizer struct {
	// Region is the metro region name, used only for location-phrase
	// trimming in descriptions.
	Region string
}

// New creates a Normalizer for the given region name.
func New(region string) *Normalizer {
	return &Normalizer{Region: region}
}

// Normalize converts one raw listing. It errors only on listings that
// violate the canonical invariants (no title, no start time); connectors
// are expected to have filtered those already, so an error here marks a
// connector bug rather than bad upstream data.
func (n *Normalizer) Normalize(raw models.RawListing) (models.CanonicalEvent, error) {
	title := CleanText(raw.Title)
	if title == "" {
		return models.CanonicalEvent{}, fmt.Errorf("listing %s/%s: empty title", raw.Source, raw.SourceID)
	}
	if raw.Start.IsZero() {
		return models.CanonicalEvent{}, fmt.Errorf("listing %s/%s: missing start time", raw.Source, raw.SourceID)
	}
	if raw.SourceID == "" {
		return models.CanonicalEvent{}, fmt.Errorf("listing from %s: empty source id", raw.Source)
	}

	venue := CleanText(raw.Venue)
	desc := TrimLocationPhrase(CleanText(raw.Description), venue, n.Region)

	event := models.CanonicalEvent{
		ID:          models.EventID(raw.Source, raw.SourceID),
		Title:       title,
		StartDate:   raw.Start.UTC(),
		Venue:       venue,
		Organizer:   CleanText(raw.Organizer),
		Source:      raw.Source,
		SourceID:    raw.SourceID,
		Price:       ParsePrice(raw.PriceText),
		URL:         strings.TrimSpace(raw.URL),
		Description: desc,
		ImageURL:    strings.TrimSpace(raw.ImageURL),
		Tags:        normalizeTags(raw.Tags),
		FirstSeenAt: raw.FetchedAt.UTC(),
		LastSeenAt:  raw.FetchedAt.UTC(),
	}

	if !raw.End.IsZero() && raw.End.After(raw.Start) {
		end := raw.End.UTC()
		event.EndDate = &end
	}
	if raw.HasGeo {
		lat, lon := raw.Latitude, raw.Longitude
		event.Latitude = &lat
		event.Longitude = &lon
	}

	return event, nil
}

// NormalizeBatch converts a batch, dropping invalid listings. The returned
// count reports how many were dropped.
func (n *Normalizer) NormalizeBatch(raws []models.RawListing) ([]models.CanonicalEvent, int) {
	events := make([]models.CanonicalEvent, 0, len(raws))
	dropped := 0
	for i := range raws {
		event, err := n.Normalize(raws[i])
		if err != nil {
			dropped++
			continue
		}
		events = append(events, event)
	}
	return events, dropped
}

// normalizeTags lowercases, trims, dedupes and sorts tags so equal tag
// sets always compare equal.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
