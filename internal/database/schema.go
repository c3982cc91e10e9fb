// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaStatements create the catalog tables. Events are unique on
// (source, source_id); id is the derived stable UUID used by feeds and
// the API. Tags are stored as a JSON array for driver portability.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id            VARCHAR NOT NULL,
		title         VARCHAR NOT NULL,
		start_date    TIMESTAMP NOT NULL,
		end_date      TIMESTAMP,
		venue         VARCHAR NOT NULL DEFAULT '',
		organizer     VARCHAR NOT NULL DEFAULT '',
		source        VARCHAR NOT NULL,
		source_id     VARCHAR NOT NULL,
		price         DOUBLE,
		url           VARCHAR NOT NULL DEFAULT '',
		description   VARCHAR NOT NULL DEFAULT '',
		image_url     VARCHAR NOT NULL DEFAULT '',
		tags          VARCHAR NOT NULL DEFAULT '[]',
		latitude      DOUBLE,
		longitude     DOUBLE,
		hidden        BOOLEAN NOT NULL DEFAULT false,
		duplicate_of  VARCHAR,
		first_seen_at TIMESTAMP NOT NULL,
		last_seen_at  TIMESTAMP NOT NULL,
		PRIMARY KEY (source, source_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_start ON events (start_date)`,
	`CREATE INDEX IF NOT EXISTS idx_events_id ON events (id)`,
	`CREATE TABLE IF NOT EXISTS pipeline_runs (
		started_at       TIMESTAMP NOT NULL,
		duration_ms      BIGINT NOT NULL,
		events_written   INTEGER NOT NULL,
		events_hidden    INTEGER NOT NULL,
		duplicate_groups INTEGER NOT NULL,
		timed_out        BOOLEAN NOT NULL,
		summary          VARCHAR NOT NULL
	)`,
}

// initialize creates the schema. Statements are idempotent so reopening
// an existing catalog is a no-op.
func (db *DB) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
