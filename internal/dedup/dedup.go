// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

// Package dedup groups canonical event candidates that describe the same
// real-world event and elects one representative per group.
//
// Grouping is keyed on normalized title plus start time truncated to the
// minute. The result is independent of input order and idempotent: feeding
// the output events back through produces the same groups.
package dedup

import (
	"sort"
	"strings"
	"time"

	"github.com/nightowl-live/nightowl/internal/models"
)

// TrustRanker reports a source's trust rank; lower is more trusted.
// Unknown sources rank last.
type TrustRanker interface {
	TrustRankOf(source string) int
}

// Deduplicator groups candidates and elects representatives.
type Deduplicator struct {
	ranker TrustRanker
}

// New creates a Deduplicator using the given source trust ranking.
func New(ranker TrustRanker) *Deduplicator {
	return &Deduplicator{ranker: ranker}
}

// Key derives the duplicate-group key for an event: lowercased trimmed
// title joined with the start truncated to the minute, in UTC.
func Key(e models.CanonicalEvent) string {
	title := strings.ToLower(strings.TrimSpace(e.Title))
	start := e.StartDate.UTC().Truncate(time.Minute)
	return title + "|" + start.Format("2006-01-02T15:04")
}

// Group partitions candidates into duplicate groups and elects a
// representative for each. Candidates sharing (source, sourceID) collapse
// first, keeping the most recently fetched version, so re-running a batch
// never inflates groups.
//
// Groups are returned sorted by key so callers see a stable order.
func (d *Deduplicator) Group(events []models.CanonicalEvent) []models.DuplicateGroup {
	events = collapseSameSource(events)

	byKey := make(map[string][]models.CanonicalEvent)
	for _, e := range events {
		k := Key(e)
		byKey[k] = append(byKey[k], e)
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	groups := make([]models.DuplicateGroup, 0, len(keys))
	for _, k := range keys {
		members := byKey[k]
		d.sortMembers(members)
		groups = append(groups, models.DuplicateGroup{
			Key:            k,
			Representative: members[0],
			Members:        members,
		})
	}
	return groups
}

// collapseSameSource keeps one candidate per (source, sourceID), preferring
// the latest fetch. Ties on fetch time are broken deterministically by
// keeping the later element after a stable sort, which for equal listings
// makes no observable difference.
func collapseSameSource(events []models.CanonicalEvent) []models.CanonicalEvent {
	type identity struct {
		source   string
		sourceID string
	}
	best := make(map[identity]models.CanonicalEvent, len(events))
	order := make([]identity, 0, len(events))
	for _, e := range events {
		id := identity{e.Source, e.SourceID}
		cur, ok := best[id]
		if !ok {
			best[id] = e
			order = append(order, id)
			continue
		}
		if !e.LastSeenAt.Before(cur.LastSeenAt) {
			// Later fetch wins; carry the earliest first-seen forward.
			if cur.FirstSeenAt.Before(e.FirstSeenAt) {
				e.FirstSeenAt = cur.FirstSeenAt
			}
			best[id] = e
		}
	}
	out := make([]models.CanonicalEvent, 0, len(best))
	for _, id := range order {
		out = append(out, best[id])
	}
	return out
}

// sortMembers orders a group so the representative is first. Preference:
// most trusted source, then most complete listing, then earliest first
// seen. The lexicographic (source, sourceID) fallback makes election
// deterministic regardless of input order.
func (d *Deduplicator) sortMembers(members []models.CanonicalEvent) {
	sort.Slice(members, func(i, j int) bool {
		a, b := members[i], members[j]
		ra, rb := d.ranker.TrustRankOf(a.Source), d.ranker.TrustRankOf(b.Source)
		if ra != rb {
			return ra < rb
		}
		ca, cb := a.Completeness(), b.Completeness()
		if ca != cb {
			return ca > cb
		}
		if !a.FirstSeenAt.Equal(b.FirstSeenAt) {
			return a.FirstSeenAt.Before(b.FirstSeenAt)
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.SourceID < b.SourceID
	})
}

// Resolve marks duplicates within each group: the representative stays
// visible, every other member is hidden and pointed at the
// representative. The persistence layer writes these flags verbatim, so
// this is the only place election outcomes turn into visibility.
func Resolve(groups []models.DuplicateGroup) []models.DuplicateGroup {
	for gi := range groups {
		g := &groups[gi]
		rep := g.Representative
		for mi := range g.Members {
			m := &g.Members[mi]
			if m.Source == rep.Source && m.SourceID == rep.SourceID {
				m.Hidden = false
				m.DuplicateOf = nil
			} else {
				m.Hidden = true
				ref := rep.ID
				m.DuplicateOf = &ref
			}
		}
	}
	return groups
}
