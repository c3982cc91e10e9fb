// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightowl-live/nightowl/internal/cache"
	"github.com/nightowl-live/nightowl/internal/config"
	"github.com/nightowl-live/nightowl/internal/connector"
	"github.com/nightowl-live/nightowl/internal/database"
	"github.com/nightowl-live/nightowl/internal/models"
)

// fakeConnector serves canned listings or a canned failure.
type fakeConnector struct {
	name     string
	listings []models.RawListing
	err      error

	// block, when set, delays the fetch until the context is done.
	block bool
}

func (f *fakeConnector) Name() string { return f.name }

func (f *fakeConnector) Fetch(ctx context.Context, window connector.Window) ([]models.RawListing, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	// Stamp fetch time like a real connector would.
	out := make([]models.RawListing, len(f.listings))
	copy(out, f.listings)
	for i := range out {
		out[i].FetchedAt = time.Now().UTC()
	}
	return out, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Region: config.RegionConfig{Name: "Portland"},
		Pipeline: config.PipelineConfig{
			RunTimeout:           5 * time.Second,
			MaxConcurrentSources: 2,
			Horizon:              60 * 24 * time.Hour,
		},
		Sources: []config.SourceConfig{
			{Name: "ticketing", TrustRank: 1},
			{Name: "scrape", TrustRank: 2},
		},
	}
}

func testRunner(t *testing.T, cfg *config.Config, conns ...connector.Connector) (*Runner, *database.DB) {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB", Threads: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	bus := cache.NewBus()
	t.Cleanup(func() { _ = bus.Close() })

	return NewRunner(cfg, conns, db, nil, bus, nil), db
}

func listing(source, sourceID, title string, start time.Time) models.RawListing {
	return models.RawListing{
		Source:   source,
		SourceID: sourceID,
		Title:    title,
		Start:    start,
	}
}

func TestRunMergesCrossSourceDuplicates(t *testing.T) {
	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Minute)
	r, db := testRunner(t, testConfig(),
		&fakeConnector{name: "ticketing", listings: []models.RawListing{
			listing("ticketing", "evt-1", "Jazz Night", start),
		}},
		&fakeConnector{name: "scrape", listings: []models.RawListing{
			listing("scrape", "s-99", "jazz night", start),
		}},
	)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.EventsWritten)
	assert.Equal(t, 1, summary.DuplicateGroups)
	assert.False(t, summary.TimedOut)
	assert.Empty(t, summary.FailedSources())

	visible, err := db.VisibleEvents(context.Background(), start.Add(-time.Hour), start.Add(time.Hour), "")
	require.NoError(t, err)
	require.Len(t, visible, 1, "one representative visible")
	assert.Equal(t, "ticketing", visible[0].Source, "trusted source wins")

	all, err := db.EventsByIDs(context.Background(), []uuid.UUID{
		models.EventID("ticketing", "evt-1"),
		models.EventID("scrape", "s-99"),
	})
	require.NoError(t, err)
	assert.Len(t, all, 2, "both source ids are retained")
}

func TestRunPromotesLiveSourceWhenTrustedStopsReporting(t *testing.T) {
	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Minute)
	ticketing := &fakeConnector{name: "ticketing", listings: []models.RawListing{
		listing("ticketing", "evt-1", "Jazz Night", start),
	}}
	scrape := &fakeConnector{name: "scrape", listings: []models.RawListing{
		listing("scrape", "s-99", "jazz night", start),
	}}
	r, db := testRunner(t, testConfig(), ticketing, scrape)

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	// The ticketing upstream drops the event; the scrape still carries it.
	ticketing.listings = nil
	for run := 0; run < 2; run++ {
		_, err = r.Run(context.Background())
		require.NoError(t, err)

		visible, err := db.VisibleEvents(context.Background(), start.Add(-time.Hour), start.Add(time.Hour), "")
		require.NoError(t, err)
		require.Len(t, visible, 1, "the event must surface via the source still reporting it")
		assert.Equal(t, "scrape", visible[0].Source)
		assert.False(t, visible[0].Hidden)
		assert.Nil(t, visible[0].DuplicateOf)

		stale, err := db.EventByID(context.Background(), models.EventID("ticketing", "evt-1"))
		require.NoError(t, err)
		require.NotNil(t, stale)
		assert.True(t, stale.Hidden, "the vanished trusted record stays hidden")
	}
}

func TestRunSurvivesSourceFailure(t *testing.T) {
	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Minute)
	r, db := testRunner(t, testConfig(),
		&fakeConnector{name: "ticketing", err: errors.New("connect: upstream unreachable")},
		&fakeConnector{name: "scrape", listings: []models.RawListing{
			listing("scrape", "s-1", "Poetry Slam", start),
		}},
	)

	summary, err := r.Run(context.Background())
	require.NoError(t, err, "a failed source must not fail the run")

	require.Len(t, summary.FailedSources(), 1)
	assert.Equal(t, "ticketing", summary.FailedSources()[0])
	assert.Equal(t, 1, summary.EventsWritten, "healthy source still persists")

	visible, err := db.VisibleEvents(context.Background(), start.Add(-time.Hour), start.Add(time.Hour), "")
	require.NoError(t, err)
	assert.Len(t, visible, 1)
}

func TestRunTimeoutCommitsCompletedSources(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.RunTimeout = 100 * time.Millisecond

	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Minute)
	r, db := testRunner(t, cfg,
		&fakeConnector{name: "ticketing", listings: []models.RawListing{
			listing("ticketing", "evt-1", "Jazz Night", start),
		}},
		&fakeConnector{name: "scrape", block: true},
	)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, summary.TimedOut)
	assert.Equal(t, 1, summary.EventsWritten, "completed source commits despite timeout")
	require.Len(t, summary.FailedSources(), 1)
	assert.Equal(t, "scrape", summary.FailedSources()[0])

	visible, err := db.VisibleEvents(context.Background(), start.Add(-time.Hour), start.Add(time.Hour), "")
	require.NoError(t, err)
	assert.Len(t, visible, 1)
}

func TestRunSerialization(t *testing.T) {
	cfg := testConfig()
	blocker := &fakeConnector{name: "ticketing", block: true}
	r, _ := testRunner(t, cfg, blocker)

	ctx, cancel := context.WithCancel(context.Background())
	firstDone := make(chan struct{})
	go func() {
		_, _ = r.Run(ctx)
		close(firstDone)
	}()

	// Wait until the first run holds the lock.
	require.Eventually(t, func() bool {
		_, err := r.Run(context.Background())
		return errors.Is(err, ErrRunInProgress)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-firstDone
}

func TestRunIsIdempotent(t *testing.T) {
	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Minute)
	conns := []connector.Connector{
		&fakeConnector{name: "ticketing", listings: []models.RawListing{
			listing("ticketing", "evt-1", "Jazz Night", start),
		}},
		&fakeConnector{name: "scrape", listings: []models.RawListing{
			listing("scrape", "s-99", "jazz night", start),
		}},
	}
	r, db := testRunner(t, testConfig(), conns...)

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	_, err = r.Run(context.Background())
	require.NoError(t, err)

	visible, err := db.VisibleEvents(context.Background(), start.Add(-time.Hour), start.Add(time.Hour), "")
	require.NoError(t, err)
	require.Len(t, visible, 1, "re-running the same inputs changes nothing")
	assert.Equal(t, "ticketing", visible[0].Source)
}
