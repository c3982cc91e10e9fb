// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package config

import (
	"fmt"
	"time"
)

// Valid SourceConfig.Kind values.
const (
	KindTicketingAPI = "ticketing-api"
	KindVenueScrape  = "venue-scrape"
	KindHybrid       = "hybrid"
)

var connectorKinds = map[string]bool{
	KindTicketingAPI: true,
	KindVenueScrape:  true,
	KindHybrid:       true,
}

// Validate checks the configuration for internal consistency. It is called
// by Load after all layers are merged; direct construction in tests may
// call it explicitly.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Pipeline.RunTimeout <= 0 {
		return fmt.Errorf("pipeline.run_timeout must be positive")
	}
	if c.Pipeline.MaxConcurrentSources < 1 {
		return fmt.Errorf("pipeline.max_concurrent_sources must be at least 1")
	}
	if c.Pipeline.FetchMaxAttempts < 1 {
		return fmt.Errorf("pipeline.fetch_max_attempts must be at least 1")
	}
	if c.Ranking.TopN < 1 {
		return fmt.Errorf("ranking.top_n must be at least 1")
	}
	if c.Region.MinLat > c.Region.MaxLat {
		return fmt.Errorf("region.min_lat exceeds region.max_lat")
	}
	if c.Region.MinLon > c.Region.MaxLon {
		return fmt.Errorf("region.min_lon exceeds region.max_lon")
	}

	seen := make(map[string]bool, len(c.Sources))
	for i := range c.Sources {
		s := &c.Sources[i]
		if s.Name == "" {
			return fmt.Errorf("sources[%d].name must not be empty", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate source name %q", s.Name)
		}
		seen[s.Name] = true

		if !connectorKinds[s.Kind] {
			return fmt.Errorf("source %q: unknown kind %q", s.Name, s.Kind)
		}
		if s.URL == "" {
			return fmt.Errorf("source %q: url must not be empty", s.Name)
		}
		if s.Kind == KindHybrid && s.DetailURL == "" {
			return fmt.Errorf("source %q: hybrid sources require detail_url", s.Name)
		}
		if s.Timezone == "" {
			return fmt.Errorf("source %q: timezone must not be empty", s.Name)
		}
		// Resolve the zone now so a typo fails at startup, not mid-run.
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("source %q: invalid timezone %q: %w", s.Name, s.Timezone, err)
		}
	}

	return nil
}
