// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package connector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/nightowl-live/nightowl/internal/config"
	"github.com/nightowl-live/nightowl/internal/fetch"
	"github.com/nightowl-live/nightowl/internal/logging"
	"github.com/nightowl-live/nightowl/internal/metrics"
	"github.com/nightowl-live/nightowl/internal/models"
)

// maxPages caps pagination so a broken upstream cannot spin the run
// forever.
const maxPages = 50

// ticketingPage is one page of a ticketing API response.
type ticketingPage struct {
	Events     []ticketingEvent `json:"events" validate:"required"`
	Page       int              `json:"page"`
	TotalPages int              `json:"total_pages"`
}

// ticketingEvent is the upstream listing shape. Only id, name and start
// are load-bearing; everything else degrades to empty.
type ticketingEvent struct {
	ID          string   `json:"id" validate:"required"`
	Name        string   `json:"name" validate:"required"`
	Start       string   `json:"start" validate:"required"`
	End         string   `json:"end"`
	Venue       string   `json:"venue"`
	Organizer   string   `json:"organizer"`
	Price       string   `json:"price"`
	URL         string   `json:"url"`
	Description string   `json:"description"`
	ImageURL    string   `json:"image"`
	Tags        []string `json:"tags"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

// ticketingAPI ingests a paginated JSON event API.
type ticketingAPI struct {
	base
}

func newTicketingAPI(cfg config.SourceConfig, client *fetch.Client, region *config.RegionConfig) (*ticketingAPI, error) {
	b, err := newBase(cfg, client, region)
	if err != nil {
		return nil, err
	}
	return &ticketingAPI{base: b}, nil
}

func (t *ticketingAPI) Name() string { return t.cfg.Name }

func (t *ticketingAPI) Fetch(ctx context.Context, window Window) ([]models.RawListing, error) {
	var listings []models.RawListing

	for page := 1; page <= maxPages; page++ {
		body, err := t.client.Get(ctx, fetch.Request{
			Source: t.cfg.Name,
			URL:    t.pageURL(window, page),
			Header: t.authHeader(),
		})
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}

		var resp ticketingPage
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("page %d: decoding response: %w", page, err)
		}
		if err := validate.Struct(&resp); err != nil {
			return nil, fmt.Errorf("page %d: invalid response shape: %w", page, err)
		}

		listings = append(listings, t.convert(resp.Events, window)...)

		if resp.TotalPages == 0 || page >= resp.TotalPages {
			break
		}
	}

	metrics.ListingsFetched.WithLabelValues(t.cfg.Name).Add(float64(len(listings)))
	return listings, nil
}

func (t *ticketingAPI) pageURL(window Window, page int) string {
	q := url.Values{}
	q.Set("from", window.From.UTC().Format(time.RFC3339))
	q.Set("to", window.To.UTC().Format(time.RFC3339))
	q.Set("page", strconv.Itoa(page))
	if t.cfg.PageSize > 0 {
		q.Set("per_page", strconv.Itoa(t.cfg.PageSize))
	}
	sep := "?"
	if u, err := url.Parse(t.cfg.URL); err == nil && u.RawQuery != "" {
		sep = "&"
	}
	return t.cfg.URL + sep + q.Encode()
}

func (t *ticketingAPI) authHeader() http.Header {
	if t.cfg.APIKey == "" {
		return nil
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+t.cfg.APIKey)
	return h
}

func (t *ticketingAPI) convert(events []ticketingEvent, window Window) []models.RawListing {
	now := time.Now().UTC()
	var out []models.RawListing

	for i := range events {
		ev := &events[i]
		if err := validate.Struct(ev); err != nil {
			t.skip("invalid")
			logging.Warn().Str("source", t.cfg.Name).Str("id", ev.ID).Err(err).Msg("Listing failed validation")
			continue
		}
		start, err := t.resolveTime(ev.Start)
		if err != nil {
			t.skip("bad_time")
			logging.Warn().Str("source", t.cfg.Name).Str("id", ev.ID).Err(err).Msg("Listing has unparseable start")
			continue
		}
		if !window.Contains(start) {
			t.skip("window")
			continue
		}

		hasGeo := ev.Latitude != nil && ev.Longitude != nil
		var lat, lon float64
		if hasGeo {
			lat, lon = *ev.Latitude, *ev.Longitude
		}
		if !t.inRegion(hasGeo, lat, lon) {
			t.skip("geo")
			continue
		}

		raw := models.RawListing{
			Source:      t.cfg.Name,
			SourceID:    ev.ID,
			Title:       ev.Name,
			Start:       start,
			Venue:       ev.Venue,
			Organizer:   ev.Organizer,
			PriceText:   ev.Price,
			URL:         ev.URL,
			Description: ev.Description,
			ImageURL:    ev.ImageURL,
			Tags:        append(append([]string{}, t.cfg.Tags...), ev.Tags...),
			Latitude:    lat,
			Longitude:   lon,
			HasGeo:      hasGeo,
			FetchedAt:   now,
		}
		if ev.End != "" {
			if end, err := t.resolveTime(ev.End); err == nil {
				raw.End = end
			}
		}
		out = append(out, raw)
	}
	return out
}
