// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package rawstore

import (
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightowl-live/nightowl/internal/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db, time.Hour)
}

func TestPutAndLatest(t *testing.T) {
	s := testStore(t)
	at := time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC)
	listings := []models.RawListing{{
		Source:   "ticketing",
		SourceID: "evt-1",
		Title:    "Jazz Night",
		Start:    at.AddDate(0, 1, 0),
	}}

	require.NoError(t, s.Put("ticketing", "run-1", listings, at))

	dump, err := s.Latest("ticketing")
	require.NoError(t, err)
	assert.Equal(t, "run-1", dump.RunID)
	require.Len(t, dump.Listings, 1)
	assert.Equal(t, "Jazz Night", dump.Listings[0].Title)
}

func TestPutReplacesPreviousDump(t *testing.T) {
	s := testStore(t)
	at := time.Now().UTC()

	require.NoError(t, s.Put("ticketing", "run-1", nil, at))
	require.NoError(t, s.Put("ticketing", "run-2", nil, at.Add(time.Hour)))

	dump, err := s.Latest("ticketing")
	require.NoError(t, err)
	assert.Equal(t, "run-2", dump.RunID)
}

func TestLatestMissingSource(t *testing.T) {
	s := testStore(t)
	_, err := s.Latest("nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSources(t *testing.T) {
	s := testStore(t)
	at := time.Now().UTC()
	require.NoError(t, s.Put("alpha", "r", nil, at))
	require.NoError(t, s.Put("beta", "r", nil, at))

	sources, err := s.Sources()
	require.NoError(t, err)
	sort.Strings(sources)
	assert.Equal(t, []string{"alpha", "beta"}, sources)
}
