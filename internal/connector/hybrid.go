// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package connector

import (
	"context"
	"strings"

	"github.com/nightowl-live/nightowl/internal/config"
	"github.com/nightowl-live/nightowl/internal/fetch"
	"github.com/nightowl-live/nightowl/internal/logging"
	"github.com/nightowl-live/nightowl/internal/models"
)

// hybrid ingests an API listing and enriches each result from its detail
// page's JSON-LD markup. The API gives the authoritative id, title and
// start; the detail page fills description, image and price when the API
// omits them.
type hybrid struct {
	api *ticketingAPI
}

func newHybrid(cfg config.SourceConfig, client *fetch.Client, region *config.RegionConfig) (*hybrid, error) {
	api, err := newTicketingAPI(cfg, client, region)
	if err != nil {
		return nil, err
	}
	return &hybrid{api: api}, nil
}

func (h *hybrid) Name() string { return h.api.cfg.Name }

func (h *hybrid) Fetch(ctx context.Context, window Window) ([]models.RawListing, error) {
	listings, err := h.api.Fetch(ctx, window)
	if err != nil {
		return nil, err
	}

	for i := range listings {
		if !needsEnrichment(&listings[i]) {
			continue
		}
		if err := h.enrich(ctx, &listings[i]); err != nil {
			// Enrichment is best-effort: the API listing stands alone.
			logging.Debug().
				Str("source", h.api.cfg.Name).
				Str("id", listings[i].SourceID).
				Err(err).
				Msg("Detail enrichment failed")
		}
	}
	return listings, nil
}

func needsEnrichment(raw *models.RawListing) bool {
	return raw.Description == "" || raw.ImageURL == "" || raw.PriceText == ""
}

// enrich fills missing fields from the listing's detail page. API values
// always win over scraped values.
func (h *hybrid) enrich(ctx context.Context, raw *models.RawListing) error {
	detailURL := strings.ReplaceAll(h.api.cfg.DetailURL, "{id}", raw.SourceID)
	body, err := h.api.client.Get(ctx, fetch.Request{Source: h.api.cfg.Name, URL: detailURL})
	if err != nil {
		return err
	}

	events := extractLDEvents(body)
	if len(events) == 0 {
		return nil
	}
	detail := &events[0]

	if raw.Description == "" {
		raw.Description = detail.Description
	}
	if raw.ImageURL == "" {
		raw.ImageURL = detail.Image.first()
	}
	if raw.PriceText == "" {
		raw.PriceText = detail.Offers.Price
	}
	if raw.Venue == "" {
		raw.Venue = detail.Location.Name
	}
	if raw.Organizer == "" {
		raw.Organizer = detail.Organizer.Name
	}
	if !raw.HasGeo && detail.Location.Geo != nil {
		raw.Latitude = detail.Location.Geo.Latitude
		raw.Longitude = detail.Location.Geo.Longitude
		raw.HasGeo = true
	}
	return nil
}
