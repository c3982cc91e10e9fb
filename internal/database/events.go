// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/nightowl-live/nightowl/internal/logging"
	"github.com/nightowl-live/nightowl/internal/models"
)

const upsertEventSQL = `
	INSERT INTO events (
		id, title, start_date, end_date, venue, organizer,
		source, source_id, price, url, description, image_url,
		tags, latitude, longitude, hidden, duplicate_of,
		first_seen_at, last_seen_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (source, source_id) DO UPDATE SET
		title = excluded.title,
		start_date = excluded.start_date,
		end_date = excluded.end_date,
		venue = excluded.venue,
		organizer = excluded.organizer,
		price = excluded.price,
		url = excluded.url,
		description = excluded.description,
		image_url = excluded.image_url,
		tags = excluded.tags,
		latitude = excluded.latitude,
		longitude = excluded.longitude,
		hidden = excluded.hidden,
		duplicate_of = excluded.duplicate_of,
		last_seen_at = excluded.last_seen_at`

// UpsertGroups writes resolved duplicate groups to the catalog. Members
// must already carry their Hidden and DuplicateOf flags (dedup.Resolve);
// they are written verbatim. Each group commits in its own transaction so
// one failing group does not poison the rest of the batch. Returns the
// number of events written and one message per failed group.
func (db *DB) UpsertGroups(ctx context.Context, groups []models.DuplicateGroup) (int, []string) {
	written := 0
	var failures []string

	for _, group := range groups {
		n, err := db.upsertGroup(ctx, group)
		if err != nil {
			logging.Error().Err(err).Str("group", group.Key).Msg("Duplicate group write failed")
			failures = append(failures, fmt.Sprintf("group %s: %v", group.Key, err))
			continue
		}
		written += n
	}
	return written, failures
}

func (db *DB) upsertGroup(ctx context.Context, group models.DuplicateGroup) (int, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, member := range group.Members {
		var duplicateOf any
		if member.DuplicateOf != nil {
			duplicateOf = member.DuplicateOf.String()
		}
		if err := upsertEvent(ctx, tx, &member, member.Hidden, duplicateOf); err != nil {
			return 0, fmt.Errorf("event %s/%s: %w", member.Source, member.SourceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(group.Members), nil
}

func upsertEvent(ctx context.Context, tx *sql.Tx, e *models.CanonicalEvent, hidden bool, duplicateOf any) error {
	tags, err := json.Marshal(e.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	var endDate, price, lat, lon any
	if e.EndDate != nil {
		endDate = e.EndDate.UTC()
	}
	if e.Price != nil {
		price = *e.Price
	}
	if e.Latitude != nil && e.Longitude != nil {
		lat, lon = *e.Latitude, *e.Longitude
	}

	_, err = tx.ExecContext(ctx, upsertEventSQL,
		e.ID.String(), e.Title, e.StartDate.UTC(), endDate, e.Venue, e.Organizer,
		e.Source, e.SourceID, price, e.URL, e.Description, e.ImageURL,
		string(tags), lat, lon, hidden, duplicateOf,
		e.FirstSeenAt.UTC(), e.LastSeenAt.UTC(),
	)
	return err
}

// HideStale hides events from the given source that were not seen in the
// current run and have not yet started. Past events keep their state for
// history; upcoming events an upstream dropped are presumed cancelled.
func (db *DB) HideStale(ctx context.Context, source string, seenBefore, now time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE events
		 SET hidden = true
		 WHERE source = ? AND last_seen_at < ? AND start_date >= ? AND NOT hidden`,
		source, seenBefore.UTC(), now.UTC())
	if err != nil {
		return 0, fmt.Errorf("hide stale for %s: %w", source, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// RecordRun persists a pipeline run summary for operational history.
func (db *DB) RecordRun(ctx context.Context, summary *models.RunSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO pipeline_runs (started_at, duration_ms, events_written, events_hidden, duplicate_groups, timed_out, summary)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		summary.StartedAt.UTC(), summary.Duration.Milliseconds(),
		summary.EventsWritten, summary.EventsHidden, summary.DuplicateGroups,
		summary.TimedOut, string(payload))
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// LastRun returns the most recent run summary, or nil when no run has
// completed yet.
func (db *DB) LastRun(ctx context.Context) (*models.RunSummary, error) {
	var payload string
	err := db.conn.QueryRowContext(ctx,
		`SELECT summary FROM pipeline_runs ORDER BY started_at DESC LIMIT 1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last run: %w", err)
	}
	var summary models.RunSummary
	if err := json.Unmarshal([]byte(payload), &summary); err != nil {
		return nil, fmt.Errorf("unmarshal run summary: %w", err)
	}
	return &summary, nil
}
