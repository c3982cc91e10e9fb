// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package connector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightowl-live/nightowl/internal/config"
	"github.com/nightowl-live/nightowl/internal/fetch"
)

// testRegion covers greater Portland.
var testRegion = &config.RegionConfig{
	Name:   "Portland",
	MinLat: 45.2, MaxLat: 45.8,
	MinLon: -123.0, MaxLon: -122.2,
}

func testFetchClient() *fetch.Client {
	return fetch.NewClient(fetch.Options{
		MaxAttempts: 1,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
		Timeout:     time.Second,
	})
}

func sourceConfig(name, kind, url string) config.SourceConfig {
	return config.SourceConfig{
		Name:              name,
		Kind:              kind,
		URL:               url,
		Timezone:          "America/Los_Angeles",
		RequestsPerSecond: 1000,
		Burst:             100,
	}
}

// The window covers May 2026 in every test.
var testWindow = Window{
	From: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	To:   time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
}

func TestTicketingAPIPaginates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		switch page {
		case "1":
			fmt.Fprint(w, `{"events":[{"id":"a","name":"First","start":"2026-05-01T20:00:00Z"}],"page":1,"total_pages":2}`)
		case "2":
			fmt.Fprint(w, `{"events":[{"id":"b","name":"Second","start":"2026-05-02T20:00:00Z"}],"page":2,"total_pages":2}`)
		default:
			t.Errorf("unexpected page %q", page)
		}
	}))
	defer srv.Close()

	c, err := newTicketingAPI(sourceConfig("tix", config.KindTicketingAPI, srv.URL), testFetchClient(), testRegion)
	require.NoError(t, err)

	listings, err := c.Fetch(context.Background(), testWindow)
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, "a", listings[0].SourceID)
	assert.Equal(t, "b", listings[1].SourceID)
}

func TestTicketingAPIResolvesLocalTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Zoneless local time string.
		fmt.Fprint(w, `{"events":[{"id":"a","name":"Show","start":"2026-05-01T20:00:00"}],"page":1,"total_pages":1}`)
	}))
	defer srv.Close()

	c, err := newTicketingAPI(sourceConfig("tix", config.KindTicketingAPI, srv.URL), testFetchClient(), testRegion)
	require.NoError(t, err)

	listings, err := c.Fetch(context.Background(), testWindow)
	require.NoError(t, err)
	require.Len(t, listings, 1)

	// 20:00 Pacific in May is 03:00 UTC next day.
	want := time.Date(2026, 5, 2, 3, 0, 0, 0, time.UTC)
	assert.True(t, listings[0].Start.Equal(want), "got %v, want %v", listings[0].Start, want)
}

func TestTicketingAPIFiltersOutOfRegion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"events":[
			{"id":"in","name":"Local","start":"2026-05-01T20:00:00Z","latitude":45.5,"longitude":-122.6},
			{"id":"out","name":"Seattle Show","start":"2026-05-01T20:00:00Z","latitude":47.6,"longitude":-122.3},
			{"id":"nogeo","name":"Venue Only","start":"2026-05-01T20:00:00Z"}
		],"page":1,"total_pages":1}`)
	}))
	defer srv.Close()

	c, err := newTicketingAPI(sourceConfig("tix", config.KindTicketingAPI, srv.URL), testFetchClient(), testRegion)
	require.NoError(t, err)

	listings, err := c.Fetch(context.Background(), testWindow)
	require.NoError(t, err)
	require.Len(t, listings, 2, "out-of-region listing is dropped, geo-less kept")
	assert.Equal(t, "in", listings[0].SourceID)
	assert.Equal(t, "nogeo", listings[1].SourceID)
}

func TestTicketingAPISkipsInvalidAndOutOfWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"events":[
			{"id":"","name":"No ID","start":"2026-05-01T20:00:00Z"},
			{"id":"late","name":"Next Year","start":"2027-05-01T20:00:00Z"},
			{"id":"ok","name":"Good","start":"2026-05-01T20:00:00Z"}
		],"page":1,"total_pages":1}`)
	}))
	defer srv.Close()

	c, err := newTicketingAPI(sourceConfig("tix", config.KindTicketingAPI, srv.URL), testFetchClient(), testRegion)
	require.NoError(t, err)

	listings, err := c.Fetch(context.Background(), testWindow)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "ok", listings[0].SourceID)
}

func TestTicketingAPISendsAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sekrit", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"events":[],"page":1,"total_pages":1}`)
	}))
	defer srv.Close()

	cfg := sourceConfig("tix", config.KindTicketingAPI, srv.URL)
	cfg.APIKey = "sekrit"
	c, err := newTicketingAPI(cfg, testFetchClient(), testRegion)
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), testWindow)
	require.NoError(t, err)
}

const venuePage = `<!doctype html>
<html><head>
<script type="application/ld+json">
{"@context":"https://schema.org","@graph":[
  {"@type":"Event","name":"Jazz Night","startDate":"2026-05-01T20:00:00-07:00",
   "location":{"name":"The Blue Room","geo":{"latitude":45.52,"longitude":-122.68}},
   "offers":{"price":"25.00"},"organizer":{"name":"Blue Room Presents"},
   "url":"https://blueroom.example/jazz-night","keywords":["jazz","live"]},
  {"@type":"Place","name":"The Blue Room"}
]}
</script>
<script type="application/ld+json">not even json</script>
<script type="application/ld+json">
{"@type":"Event","name":"Poetry Slam","startDate":"2026-05-03T19:00:00","offers":[{"price":10}]}
</script>
</head><body>upcoming shows</body></html>`

func TestVenueScrapeExtractsJSONLD(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, venuePage)
	}))
	defer srv.Close()

	c, err := newVenueScrape(sourceConfig("venue", config.KindVenueScrape, srv.URL), testFetchClient(), testRegion)
	require.NoError(t, err)

	listings, err := c.Fetch(context.Background(), testWindow)
	require.NoError(t, err)
	require.Len(t, listings, 2, "non-Event nodes and broken blocks are skipped")

	jazz := listings[0]
	assert.Equal(t, "Jazz Night", jazz.Title)
	assert.Equal(t, "The Blue Room", jazz.Venue)
	assert.Equal(t, "Blue Room Presents", jazz.Organizer)
	assert.Equal(t, "25.00", jazz.PriceText)
	assert.Equal(t, "https://blueroom.example/jazz-night", jazz.SourceID, "URL is the stable scrape id")
	assert.True(t, jazz.HasGeo)
	assert.Contains(t, jazz.Tags, "jazz")
	// Explicit offset in the payload is honored.
	assert.True(t, jazz.Start.Equal(time.Date(2026, 5, 2, 3, 0, 0, 0, time.UTC)))

	slam := listings[1]
	assert.Equal(t, "Poetry Slam", slam.Title)
	assert.Equal(t, "10", slam.PriceText, "offer arrays and numeric prices are accepted")
	assert.NotEmpty(t, slam.SourceID, "listings without URL get a derived id")
}

func TestVenueScrapeStableDerivedID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, venuePage)
	}))
	defer srv.Close()

	c, err := newVenueScrape(sourceConfig("venue", config.KindVenueScrape, srv.URL), testFetchClient(), testRegion)
	require.NoError(t, err)

	first, err := c.Fetch(context.Background(), testWindow)
	require.NoError(t, err)
	second, err := c.Fetch(context.Background(), testWindow)
	require.NoError(t, err)
	assert.Equal(t, first[1].SourceID, second[1].SourceID, "derived ids must be stable across fetches")
}

func TestHybridEnrichesFromDetailPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"events":[{"id":"evt-1","name":"Jazz Night","start":"2026-05-01T20:00:00Z"}],"page":1,"total_pages":1}`)
	})
	mux.HandleFunc("/events/evt-1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><script type="application/ld+json">
			{"@type":"Event","name":"Jazz Night","startDate":"2026-05-01T20:00:00Z",
			 "description":"An intimate evening of jazz.","image":"https://img.example/jazz.jpg",
			 "offers":{"price":"25"}}
		</script></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := sourceConfig("hybrid", config.KindHybrid, srv.URL+"/api")
	cfg.DetailURL = srv.URL + "/events/{id}"
	c, err := newHybrid(cfg, testFetchClient(), testRegion)
	require.NoError(t, err)

	listings, err := c.Fetch(context.Background(), testWindow)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "An intimate evening of jazz.", listings[0].Description)
	assert.Equal(t, "https://img.example/jazz.jpg", listings[0].ImageURL)
	assert.Equal(t, "25", listings[0].PriceText)
}

func TestHybridSurvivesDetailFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"events":[{"id":"evt-1","name":"Jazz Night","start":"2026-05-01T20:00:00Z"}],"page":1,"total_pages":1}`)
	})
	mux.HandleFunc("/events/evt-1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := sourceConfig("hybrid", config.KindHybrid, srv.URL+"/api")
	cfg.DetailURL = srv.URL + "/events/{id}"
	c, err := newHybrid(cfg, testFetchClient(), testRegion)
	require.NoError(t, err)

	listings, err := c.Fetch(context.Background(), testWindow)
	require.NoError(t, err, "detail failure must not fail the source")
	require.Len(t, listings, 1)
	assert.Empty(t, listings[0].Description)
}

func TestRegistryRejectsUnknownKind(t *testing.T) {
	_, err := NewRegistry([]config.SourceConfig{
		sourceConfig("bad", "carrier-pigeon", "https://x.example"),
	}, testFetchClient(), testRegion)
	assert.Error(t, err)
}

func TestRegistryBuildsConfiguredConnectors(t *testing.T) {
	reg, err := NewRegistry([]config.SourceConfig{
		sourceConfig("tix", config.KindTicketingAPI, "https://tix.example"),
		sourceConfig("venue", config.KindVenueScrape, "https://venue.example"),
	}, testFetchClient(), testRegion)
	require.NoError(t, err)
	require.Len(t, reg.Connectors(), 2)
	assert.Equal(t, "tix", reg.Connectors()[0].Name())
}
