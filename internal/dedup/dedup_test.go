// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package dedup

import (
	"reflect"
	"testing"
	"time"

	"github.com/nightowl-live/nightowl/internal/models"
)

// fakeRanker trusts sources in declared order; unknown sources rank last.
type fakeRanker struct{ order []string }

func (r fakeRanker) TrustRankOf(source string) int {
	for i, s := range r.order {
		if s == source {
			return i
		}
	}
	return 1 << 30
}

func candidate(source, sourceID, title string, start time.Time) models.CanonicalEvent {
	return models.CanonicalEvent{
		ID:          models.EventID(source, sourceID),
		Title:       title,
		StartDate:   start,
		Source:      source,
		SourceID:    sourceID,
		FirstSeenAt: start.Add(-30 * 24 * time.Hour),
		LastSeenAt:  start.Add(-30 * 24 * time.Hour),
	}
}

var showStart = time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)

func TestKeyIgnoresCaseAndSubMinute(t *testing.T) {
	a := candidate("ticketing", "1", "Jazz Night", showStart)
	b := candidate("scrape", "99", "  jazz night ", showStart.Add(30*time.Second))
	if Key(a) != Key(b) {
		t.Errorf("keys differ: %q vs %q", Key(a), Key(b))
	}
	c := candidate("scrape", "100", "Jazz Night", showStart.Add(time.Minute))
	if Key(a) == Key(c) {
		t.Error("events a minute apart must not share a key")
	}
}

func TestGroupElectsMostTrustedRepresentative(t *testing.T) {
	d := New(fakeRanker{order: []string{"ticketing", "scrape"}})
	trusted := candidate("ticketing", "1", "Jazz Night", showStart)
	scraped := candidate("scrape", "99", "jazz night", showStart.Add(30*time.Second))

	groups := d.Group([]models.CanonicalEvent{scraped, trusted})
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	if groups[0].Representative.Source != "ticketing" {
		t.Errorf("representative from %s, want ticketing", groups[0].Representative.Source)
	}
	if len(groups[0].Members) != 2 {
		t.Errorf("group has %d members, want 2", len(groups[0].Members))
	}
}

func TestGroupBreaksTrustTieOnCompleteness(t *testing.T) {
	// Equal trust: both sources unknown to the ranker.
	d := New(fakeRanker{})
	sparse := candidate("alpha", "1", "Art Walk", showStart)
	rich := candidate("beta", "2", "Art Walk", showStart)
	rich.Description = "A walk through the galleries"
	rich.ImageURL = "https://img.example/walk.jpg"

	groups := d.Group([]models.CanonicalEvent{sparse, rich})
	if groups[0].Representative.Source != "beta" {
		t.Errorf("representative from %s, want beta (more complete)", groups[0].Representative.Source)
	}
}

func TestGroupBreaksCompletenessTieOnFirstSeen(t *testing.T) {
	// Equal trust and completeness: the record known longest wins.
	d := New(fakeRanker{})
	veteran := candidate("alpha", "1", "Open Mic", showStart)
	veteran.FirstSeenAt = showStart.Add(-60 * 24 * time.Hour)
	newcomer := candidate("beta", "2", "Open Mic", showStart)

	groups := d.Group([]models.CanonicalEvent{newcomer, veteran})
	if groups[0].Representative.Source != "alpha" {
		t.Errorf("representative from %s, want alpha (earliest seen)", groups[0].Representative.Source)
	}
}

func TestGroupBreaksFullTieOnSourceID(t *testing.T) {
	d := New(fakeRanker{})
	a := candidate("same", "b-later", "Open Mic", showStart)
	b := candidate("same", "a-earlier", "Open Mic", showStart)

	groups := d.Group([]models.CanonicalEvent{a, b})
	if groups[0].Representative.SourceID != "a-earlier" {
		t.Errorf("representative = %s, want a-earlier", groups[0].Representative.SourceID)
	}
}

func TestGroupOrderIndependent(t *testing.T) {
	d := New(fakeRanker{order: []string{"ticketing", "scrape"}})
	events := []models.CanonicalEvent{
		candidate("ticketing", "1", "Jazz Night", showStart),
		candidate("scrape", "99", "jazz night", showStart),
		candidate("scrape", "100", "Poetry Slam", showStart.Add(2*time.Hour)),
	}
	forward := d.Group(events)

	reversed := []models.CanonicalEvent{events[2], events[1], events[0]}
	backward := d.Group(reversed)

	if !reflect.DeepEqual(forward, backward) {
		t.Error("grouping depends on input order")
	}
}

func TestGroupIdempotent(t *testing.T) {
	d := New(fakeRanker{order: []string{"ticketing", "scrape"}})
	events := []models.CanonicalEvent{
		candidate("ticketing", "1", "Jazz Night", showStart),
		candidate("scrape", "99", "jazz night", showStart),
	}
	first := d.Group(events)

	var flattened []models.CanonicalEvent
	for _, g := range first {
		flattened = append(flattened, g.Members...)
	}
	second := d.Group(flattened)

	if !reflect.DeepEqual(first, second) {
		t.Error("regrouping grouped output changed the result")
	}
}

func TestGroupCollapsesSameSourceListing(t *testing.T) {
	d := New(fakeRanker{})
	old := candidate("ticketing", "1", "Jazz Night", showStart)
	old.Description = "stale"
	fresh := candidate("ticketing", "1", "Jazz Night", showStart)
	fresh.Description = "updated"
	fresh.LastSeenAt = old.LastSeenAt.Add(time.Hour)

	groups := d.Group([]models.CanonicalEvent{old, fresh})
	if len(groups) != 1 || len(groups[0].Members) != 1 {
		t.Fatalf("same (source, sourceID) must collapse to one member")
	}
	if groups[0].Representative.Description != "updated" {
		t.Errorf("kept %q, want the later fetch", groups[0].Representative.Description)
	}
	if !groups[0].Representative.FirstSeenAt.Equal(old.FirstSeenAt) {
		t.Error("first-seen must survive the collapse")
	}
}

func TestResolveHidesNonRepresentatives(t *testing.T) {
	d := New(fakeRanker{order: []string{"ticketing", "scrape"}})
	trusted := candidate("ticketing", "1", "Jazz Night", showStart)
	scraped := candidate("scrape", "99", "jazz night", showStart)

	groups := Resolve(d.Group([]models.CanonicalEvent{trusted, scraped}))
	if len(groups) != 1 || len(groups[0].Members) != 2 {
		t.Fatalf("want one group of two members, got %+v", groups)
	}
	for _, e := range groups[0].Members {
		switch e.Source {
		case "ticketing":
			if e.Hidden || e.DuplicateOf != nil {
				t.Error("representative must stay visible")
			}
		case "scrape":
			if !e.Hidden {
				t.Error("duplicate must be hidden")
			}
			if e.DuplicateOf == nil || *e.DuplicateOf != trusted.ID {
				t.Error("duplicate must point at the representative")
			}
		}
	}
}
