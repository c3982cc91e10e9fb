// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/nightowl-live/nightowl/internal/models"
)

// MaxBatchIDs bounds the id-list lookup so a single request cannot turn
// into an unbounded IN clause.
const MaxBatchIDs = 100

const selectEventColumns = `
	SELECT id, title, start_date, end_date, venue, organizer,
	       source, source_id, price, url, description, image_url,
	       tags, latitude, longitude, hidden, duplicate_of,
	       first_seen_at, last_seen_at
	FROM events`

// VisibleEvents returns non-hidden events starting inside [from, to),
// optionally filtered by tag, ordered by start time then id.
func (db *DB) VisibleEvents(ctx context.Context, from, to time.Time, tag string) ([]models.CanonicalEvent, error) {
	rows, err := db.conn.QueryContext(ctx,
		selectEventColumns+`
		WHERE NOT hidden AND start_date >= ? AND start_date < ?
		ORDER BY start_date, id`,
		from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("visible events: %w", err)
	}
	events, err := collectEvents(rows)
	if err != nil {
		return nil, err
	}
	if tag == "" {
		return events, nil
	}

	tag = strings.ToLower(tag)
	filtered := events[:0]
	for _, e := range events {
		if e.HasTag(tag) {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

// EventsByIDs returns events matching the given ids, visible or not.
// The list is capped at MaxBatchIDs.
func (db *DB) EventsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.CanonicalEvent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxBatchIDs {
		return nil, fmt.Errorf("id list exceeds limit of %d", MaxBatchIDs)
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id.String()
	}

	rows, err := db.conn.QueryContext(ctx,
		selectEventColumns+` WHERE id IN (`+strings.Join(placeholders, ", ")+`) ORDER BY start_date, id`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("events by ids: %w", err)
	}
	return collectEvents(rows)
}

// EventByID returns a single event or nil when absent.
func (db *DB) EventByID(ctx context.Context, id uuid.UUID) (*models.CanonicalEvent, error) {
	events, err := db.EventsByIDs(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

// OverlapCandidates returns persisted non-hidden events whose start falls
// inside [from, to). The deduplicator consolidates these with a fresh
// batch so cross-run duplicates resolve consistently. Hidden rows stay
// out: a record already demoted to duplicate, or hidden as stale, must
// not re-enter representative election against live listings.
func (db *DB) OverlapCandidates(ctx context.Context, from, to time.Time) ([]models.CanonicalEvent, error) {
	rows, err := db.conn.QueryContext(ctx,
		selectEventColumns+`
		WHERE NOT hidden AND start_date >= ? AND start_date < ?
		ORDER BY start_date, id`,
		from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("overlap candidates: %w", err)
	}
	return collectEvents(rows)
}

// SimilarEvents returns visible events sharing at least one tag with the
// given event, ordered by start-time proximity. The event itself and its
// duplicates are excluded.
func (db *DB) SimilarEvents(ctx context.Context, event *models.CanonicalEvent, limit int) ([]models.CanonicalEvent, error) {
	if limit <= 0 {
		limit = 10
	}

	// Candidate window: a week either side of the event.
	from := event.StartDate.Add(-7 * 24 * time.Hour)
	to := event.StartDate.Add(7 * 24 * time.Hour)

	rows, err := db.conn.QueryContext(ctx,
		selectEventColumns+`
		WHERE NOT hidden AND id != ? AND start_date >= ? AND start_date < ?
		ORDER BY abs(epoch(start_date) - epoch(CAST(? AS TIMESTAMP))), id`,
		event.ID.String(), from.UTC(), to.UTC(), event.StartDate.UTC())
	if err != nil {
		return nil, fmt.Errorf("similar events: %w", err)
	}
	candidates, err := collectEvents(rows)
	if err != nil {
		return nil, err
	}

	var out []models.CanonicalEvent
	for _, c := range candidates {
		if sharesTag(event, &c) {
			out = append(out, c)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func sharesTag(a, b *models.CanonicalEvent) bool {
	for _, t := range a.Tags {
		if b.HasTag(t) {
			return true
		}
	}
	return false
}

func collectEvents(rows *sql.Rows) ([]models.CanonicalEvent, error) {
	defer func() { _ = rows.Close() }()

	var events []models.CanonicalEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (models.CanonicalEvent, error) {
	var (
		e           models.CanonicalEvent
		id          string
		endDate     sql.NullTime
		price       sql.NullFloat64
		tags        string
		lat, lon    sql.NullFloat64
		duplicateOf sql.NullString
	)
	err := rows.Scan(
		&id, &e.Title, &e.StartDate, &endDate, &e.Venue, &e.Organizer,
		&e.Source, &e.SourceID, &price, &e.URL, &e.Description, &e.ImageURL,
		&tags, &lat, &lon, &e.Hidden, &duplicateOf,
		&e.FirstSeenAt, &e.LastSeenAt,
	)
	if err != nil {
		return e, fmt.Errorf("scanning event: %w", err)
	}

	e.ID, err = uuid.Parse(id)
	if err != nil {
		return e, fmt.Errorf("parsing event id %q: %w", id, err)
	}
	if endDate.Valid {
		t := endDate.Time.UTC()
		e.EndDate = &t
	}
	if price.Valid {
		v := price.Float64
		e.Price = &v
	}
	if lat.Valid && lon.Valid {
		la, lo := lat.Float64, lon.Float64
		e.Latitude = &la
		e.Longitude = &lo
	}
	if duplicateOf.Valid && duplicateOf.String != "" {
		ref, err := uuid.Parse(duplicateOf.String)
		if err != nil {
			return e, fmt.Errorf("parsing duplicate_of %q: %w", duplicateOf.String, err)
		}
		e.DuplicateOf = &ref
	}
	if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
		return e, fmt.Errorf("parsing tags: %w", err)
	}
	e.StartDate = e.StartDate.UTC()
	e.FirstSeenAt = e.FirstSeenAt.UTC()
	e.LastSeenAt = e.LastSeenAt.UTC()
	return e, nil
}
