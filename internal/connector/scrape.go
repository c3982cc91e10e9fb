// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package connector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/nightowl-live/nightowl/internal/config"
	"github.com/nightowl-live/nightowl/internal/fetch"
	"github.com/nightowl-live/nightowl/internal/logging"
	"github.com/nightowl-live/nightowl/internal/metrics"
	"github.com/nightowl-live/nightowl/internal/models"
)

// jsonldScript extracts <script type="application/ld+json"> blocks.
var jsonldScript = regexp.MustCompile(`(?is)<script[^>]+type\s*=\s*["']application/ld\+json["'][^>]*>(.*?)</script>`)

// ldEvent is a schema.org Event as venues embed it. Nested shapes vary
// wildly, so location/offers/organizer accept both object and string
// forms via custom unmarshaling below.
type ldEvent struct {
	Type        stringOrList `json:"@type"`
	Name        string       `json:"name" validate:"required"`
	StartDate   string       `json:"startDate" validate:"required"`
	EndDate     string       `json:"endDate"`
	URL         string       `json:"url"`
	Description string       `json:"description"`
	Image       stringOrList `json:"image"`
	Keywords    stringOrList `json:"keywords"`
	Location    ldLocation   `json:"location"`
	Organizer   ldName       `json:"organizer"`
	Offers      ldOffers     `json:"offers"`
}

type ldLocation struct {
	Name string `json:"name"`
	Geo  *ldGeo `json:"geo"`
}

type ldGeo struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type ldName struct {
	Name string `json:"name"`
}

// UnmarshalJSON accepts both {"name": "..."} and a bare string.
func (n *ldName) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &n.Name)
	}
	type alias ldName
	return json.Unmarshal(data, (*alias)(n))
}

type ldOffers struct {
	Price string `json:"price"`
}

// UnmarshalJSON accepts an offer object, an offer array (first entry
// wins), or nothing.
func (o *ldOffers) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var list []offerEntry
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		if len(list) > 0 {
			o.Price = list[0].Price.String()
		}
		return nil
	}
	var entry offerEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return err
	}
	o.Price = entry.Price.String()
	return nil
}

type offerEntry struct {
	Price jsonScalar `json:"price"`
}

// jsonScalar reads a JSON string or number as its text form.
type jsonScalar struct {
	value string
}

func (s *jsonScalar) UnmarshalJSON(data []byte) error {
	trimmed := strings.Trim(string(data), `"`)
	if trimmed == "null" {
		trimmed = ""
	}
	s.value = trimmed
	return nil
}

func (s jsonScalar) String() string { return s.value }

// stringOrList reads a JSON string or array of strings.
type stringOrList []string

func (s *stringOrList) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*s = list
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	if one != "" {
		*s = []string{one}
	}
	return nil
}

func (s stringOrList) first() string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

func (s stringOrList) contains(v string) bool {
	for _, e := range s {
		if strings.EqualFold(e, v) {
			return true
		}
	}
	return false
}

// venueScrape ingests a venue page with embedded JSON-LD event markup.
type venueScrape struct {
	base
}

func newVenueScrape(cfg config.SourceConfig, client *fetch.Client, region *config.RegionConfig) (*venueScrape, error) {
	b, err := newBase(cfg, client, region)
	if err != nil {
		return nil, err
	}
	return &venueScrape{base: b}, nil
}

func (v *venueScrape) Name() string { return v.cfg.Name }

func (v *venueScrape) Fetch(ctx context.Context, window Window) ([]models.RawListing, error) {
	body, err := v.client.Get(ctx, fetch.Request{Source: v.cfg.Name, URL: v.cfg.URL})
	if err != nil {
		return nil, err
	}

	events := extractLDEvents(body)
	listings := v.convert(events, window)
	metrics.ListingsFetched.WithLabelValues(v.cfg.Name).Add(float64(len(listings)))
	return listings, nil
}

// extractLDEvents pulls every schema.org Event out of the page's JSON-LD
// blocks, unwrapping top-level arrays and @graph containers. Blocks that
// fail to parse are skipped; venue pages routinely carry broken markup
// alongside good markup.
func extractLDEvents(html []byte) []ldEvent {
	var events []ldEvent
	for _, match := range jsonldScript.FindAllSubmatch(html, -1) {
		block := strings.TrimSpace(string(match[1]))
		for _, node := range splitLDNodes(block) {
			var ev ldEvent
			if err := json.Unmarshal(node, &ev); err != nil {
				continue
			}
			if ev.Type.contains("Event") {
				events = append(events, ev)
			}
		}
	}
	return events
}

// splitLDNodes flattens a JSON-LD block into candidate event nodes:
// a bare object, a top-level array, or an object with an @graph list.
func splitLDNodes(block string) [][]byte {
	trimmed := strings.TrimSpace(block)
	if strings.HasPrefix(trimmed, "[") {
		var list []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &list); err != nil {
			return nil
		}
		nodes := make([][]byte, len(list))
		for i, raw := range list {
			nodes[i] = raw
		}
		return nodes
	}

	var graph struct {
		Graph []json.RawMessage `json:"@graph"`
	}
	if err := json.Unmarshal([]byte(trimmed), &graph); err == nil && len(graph.Graph) > 0 {
		nodes := make([][]byte, len(graph.Graph))
		for i, raw := range graph.Graph {
			nodes[i] = raw
		}
		return nodes
	}

	return [][]byte{[]byte(trimmed)}
}

func (v *venueScrape) convert(events []ldEvent, window Window) []models.RawListing {
	now := time.Now().UTC()
	var out []models.RawListing

	for i := range events {
		ev := &events[i]
		if err := validate.Struct(ev); err != nil {
			v.skip("invalid")
			logging.Warn().Str("source", v.cfg.Name).Str("title", ev.Name).Err(err).Msg("JSON-LD event failed validation")
			continue
		}
		start, err := v.resolveTime(ev.StartDate)
		if err != nil {
			v.skip("bad_time")
			continue
		}
		if !window.Contains(start) {
			v.skip("window")
			continue
		}

		hasGeo := ev.Location.Geo != nil
		var lat, lon float64
		if hasGeo {
			lat, lon = ev.Location.Geo.Latitude, ev.Location.Geo.Longitude
		}
		if !v.inRegion(hasGeo, lat, lon) {
			v.skip("geo")
			continue
		}

		raw := models.RawListing{
			Source:      v.cfg.Name,
			SourceID:    scrapeSourceID(ev, start),
			Title:       ev.Name,
			Start:       start,
			Venue:       ev.Location.Name,
			Organizer:   ev.Organizer.Name,
			PriceText:   ev.Offers.Price,
			URL:         ev.URL,
			Description: ev.Description,
			ImageURL:    ev.Image.first(),
			Tags:        append(append([]string{}, v.cfg.Tags...), ev.Keywords...),
			Latitude:    lat,
			Longitude:   lon,
			HasGeo:      hasGeo,
			FetchedAt:   now,
		}
		if ev.EndDate != "" {
			if end, err := v.resolveTime(ev.EndDate); err == nil {
				raw.End = end
			}
		}
		out = append(out, raw)
	}
	return out
}

// scrapeSourceID derives a stable id for scraped listings, which carry no
// upstream identifier. The event URL is stable when present; otherwise a
// digest of the name and start instant stands in, which stays stable as
// long as the listing itself does not change identity.
func scrapeSourceID(ev *ldEvent, start time.Time) string {
	if ev.URL != "" {
		return ev.URL
	}
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s", ev.Name, start.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(sum[:8])
}
