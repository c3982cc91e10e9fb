// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

// Package connector retrieves raw listings from upstream sources.
//
// A Connector is a capability, not a hierarchy: anything that can produce
// a finite batch of raw listings for a time window qualifies. New sources
// add an implementation and a config entry; the pipeline never changes.
//
// Every implementation enforces the same boundary rules before emitting a
// listing: local time strings resolve against the source's configured
// zone, listings with coordinates outside the region bounding box are
// dropped, and payloads are schema-validated so nothing dynamically
// shaped crosses into the pipeline.
package connector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nightowl-live/nightowl/internal/config"
	"github.com/nightowl-live/nightowl/internal/fetch"
	"github.com/nightowl-live/nightowl/internal/metrics"
	"github.com/nightowl-live/nightowl/internal/models"
)

// Window is the time range a fetch covers. Listings starting outside
// [From, To) are dropped.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// Connector produces raw listings for a time window.
type Connector interface {
	// Name identifies the source for logging and run reports.
	Name() string

	// Fetch retrieves the source's listings for the window. A connector
	// failing entirely returns an error; the pipeline records it and
	// continues with other sources.
	Fetch(ctx context.Context, window Window) ([]models.RawListing, error)
}

// validate checks payload structs at the connector boundary.
var validate = validator.New(validator.WithRequiredStructEnabled())

// base carries what every connector implementation shares.
type base struct {
	cfg    config.SourceConfig
	client *fetch.Client
	region *config.RegionConfig
	loc    *time.Location
}

func newBase(cfg config.SourceConfig, client *fetch.Client, region *config.RegionConfig) (base, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return base{}, fmt.Errorf("source %s: bad timezone %q: %w", cfg.Name, cfg.Timezone, err)
	}
	client.RegisterSource(cfg.Name, cfg.RequestsPerSecond, cfg.Burst)
	return base{cfg: cfg, client: client, region: region, loc: loc}, nil
}

// localTimeLayouts are tried in order when a payload carries a zoneless
// local time string.
var localTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// resolveTime parses an upstream time string into an absolute instant.
// Strings carrying an explicit offset are honored; zoneless strings
// resolve in the source's configured zone, never the process zone.
func (b *base) resolveTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range localTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, b.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", s)
}

// inRegion applies the geo filter. Listings without coordinates pass;
// venue-only sources are in-region by curation.
func (b *base) inRegion(hasGeo bool, lat, lon float64) bool {
	if !hasGeo {
		return true
	}
	return b.region.Contains(lat, lon)
}

func (b *base) skip(reason string) {
	metrics.ListingsSkipped.WithLabelValues(b.cfg.Name, reason).Inc()
}

// Registry builds connectors from configuration.
type Registry struct {
	connectors []Connector
}

// NewRegistry constructs one connector per configured source. Unknown
// kinds fail construction so misconfiguration surfaces at startup, not
// mid-run.
func NewRegistry(sources []config.SourceConfig, client *fetch.Client, region *config.RegionConfig) (*Registry, error) {
	r := &Registry{}
	for _, src := range sources {
		c, err := build(src, client, region)
		if err != nil {
			return nil, err
		}
		r.connectors = append(r.connectors, c)
	}
	return r, nil
}

func build(src config.SourceConfig, client *fetch.Client, region *config.RegionConfig) (Connector, error) {
	switch src.Kind {
	case config.KindTicketingAPI:
		return newTicketingAPI(src, client, region)
	case config.KindVenueScrape:
		return newVenueScrape(src, client, region)
	case config.KindHybrid:
		return newHybrid(src, client, region)
	default:
		return nil, fmt.Errorf("source %s: unknown connector kind %q", src.Name, src.Kind)
	}
}

// Connectors returns the configured connectors in declaration order.
func (r *Registry) Connectors() []Connector {
	return r.connectors
}
