// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

// Package config loads and validates Nightowl configuration using Koanf v2
// with layered sources: built-in defaults, an optional YAML file, and
// environment variables (highest priority).
//
// Source definitions, the source-trust ranking, completeness weights, and
// the Top-N size are all configuration rather than code: source reliability
// changes over time and the dedup/ranking policy must be adjustable without
// a rebuild.
package config

import "time"

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	RawStore RawStoreConfig `koanf:"rawstore"`
	Region   RegionConfig   `koanf:"region"`
	Sources  []SourceConfig `koanf:"sources"`
	Pipeline PipelineConfig `koanf:"pipeline"`
	Ranking  RankingConfig  `koanf:"ranking"`
	Feed     FeedConfig     `koanf:"feed"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = runtime.NumCPU()
}

// RawStoreConfig holds the Badger-backed raw dump store settings. Raw
// per-source payload dumps are debug artifacts used to validate connector
// output before promotion; they expire after TTL.
type RawStoreConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Path       string        `koanf:"path"`
	TTL        time.Duration `koanf:"ttl"`
	GCInterval time.Duration `koanf:"gc_interval"`
}

// RegionConfig is the target metro region. Listings whose coordinates fall
// outside the bounding box are discarded at the connector boundary.
// Listings without coordinates are kept; venue-only sources are assumed to
// be in-region by curation.
type RegionConfig struct {
	Name   string  `koanf:"name"`
	MinLat float64 `koanf:"min_lat"`
	MaxLat float64 `koanf:"max_lat"`
	MinLon float64 `koanf:"min_lon"`
	MaxLon float64 `koanf:"max_lon"`
}

// Contains reports whether the coordinates fall inside the bounding box.
func (r *RegionConfig) Contains(lat, lon float64) bool {
	return lat >= r.MinLat && lat <= r.MaxLat && lon >= r.MinLon && lon <= r.MaxLon
}

// SourceConfig describes one upstream source and how to ingest it.
type SourceConfig struct {
	// Name identifies the source; it becomes the Source field on every
	// canonical event the connector produces.
	Name string `koanf:"name"`

	// Kind selects the connector implementation:
	// "ticketing-api", "venue-scrape", or "hybrid".
	Kind string `koanf:"kind"`

	URL    string `koanf:"url"`
	APIKey string `koanf:"api_key"`

	// DetailURL is the per-listing detail page template for hybrid
	// sources; "{id}" is replaced with the listing's source ID.
	DetailURL string `koanf:"detail_url"`

	// Timezone is the source's IANA zone name (e.g. "America/New_York").
	// Local time strings in upstream payloads are resolved against this
	// zone, never against the execution environment's zone.
	Timezone string `koanf:"timezone"`

	// TrustRank orders sources for duplicate representative selection;
	// lower is more trusted. Verified ticketing APIs should outrank
	// generic HTML scrapes.
	TrustRank int `koanf:"trust_rank"`

	// Tags are applied to every listing from this source in addition to
	// tags carried by the payload itself.
	Tags []string `koanf:"tags"`

	// RequestsPerSecond paces requests to this upstream; Burst allows
	// short bursts above the sustained rate. Zero means a conservative
	// default of 2 req/s.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`

	PageSize int `koanf:"page_size"`
}

// PipelineConfig controls the scheduled aggregation run.
type PipelineConfig struct {
	// Schedule is a standard 5-field cron expression for recurring runs.
	// Empty disables the scheduler; runs can still be triggered over HTTP.
	Schedule string `koanf:"schedule"`

	// RunTimeout is the hard deadline for one run. Sources that have not
	// completed are aborted; completed sources still commit.
	RunTimeout time.Duration `koanf:"run_timeout"`

	// MaxConcurrentSources bounds the connector worker pool.
	MaxConcurrentSources int `koanf:"max_concurrent_sources"`

	// Horizon is how far ahead of now each run fetches listings.
	Horizon time.Duration `koanf:"horizon"`

	// FetchMaxAttempts, FetchBaseDelay and FetchMaxDelay shape the
	// fetch layer's exponential backoff.
	FetchMaxAttempts int           `koanf:"fetch_max_attempts"`
	FetchBaseDelay   time.Duration `koanf:"fetch_base_delay"`
	FetchMaxDelay    time.Duration `koanf:"fetch_max_delay"`
}

// RankingConfig controls the scoring engine.
type RankingConfig struct {
	// TopN is the size of the "overall" tier.
	TopN int `koanf:"top_n"`

	// TrustWeights maps source name to a ranking score bonus.
	TrustWeights map[string]float64 `koanf:"trust_weights"`

	// CompletenessWeight is the score added per populated metadata field.
	CompletenessWeight float64 `koanf:"completeness_weight"`

	// RecencyHalfLife controls imminence decay: an event starting now
	// scores the full recency component, one starting a half-life from
	// now scores half of it.
	RecencyHalfLife time.Duration `koanf:"recency_half_life"`
	RecencyWeight   float64       `koanf:"recency_weight"`

	// Tiers lists the category tags that get their own ranked subset in
	// addition to the overall tier.
	Tiers []string `koanf:"tiers"`
}

// FeedConfig controls the iCalendar subscription feed.
type FeedConfig struct {
	// CalendarName is the X-WR-CALNAME shown by subscribing clients.
	CalendarName string `koanf:"calendar_name"`

	// UIDDomain suffixes entry UIDs (uid@domain). It must stay stable;
	// changing it makes every entry reappear as new to subscribers.
	UIDDomain string `koanf:"uid_domain"`

	// DefaultDuration is assumed for events without an end time.
	DefaultDuration time.Duration `koanf:"default_duration"`
}

// SecurityConfig holds trigger-endpoint auth and rate limiting.
type SecurityConfig struct {
	// TriggerToken is the bearer token required by the pipeline trigger
	// endpoint. Compared in constant time against the presented token's
	// digest; empty disables the endpoint.
	TriggerToken string `koanf:"trigger_token"`

	// RateLimitRequests per RateLimitWindow applies to API endpoints.
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`

	// TriggerLimitRequests per TriggerLimitWindow applies specifically to
	// the pipeline trigger endpoint via the owned sliding-window limiter.
	TriggerLimitRequests int           `koanf:"trigger_limit_requests"`
	TriggerLimitWindow   time.Duration `koanf:"trigger_limit_window"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all sensible default values. These
// are applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8480,
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/nightowl.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		RawStore: RawStoreConfig{
			Enabled:    true,
			Path:       "/data/rawdumps",
			TTL:        72 * time.Hour,
			GCInterval: time.Hour,
		},
		Region: RegionConfig{
			Name:   "",
			MinLat: -90,
			MaxLat: 90,
			MinLon: -180,
			MaxLon: 180,
		},
		Sources: nil, // sources must be configured explicitly
		Pipeline: PipelineConfig{
			Schedule:             "0 6 * * *", // daily at 06:00
			RunTimeout:           10 * time.Minute,
			MaxConcurrentSources: 4,
			Horizon:              60 * 24 * time.Hour,
			FetchMaxAttempts:     5,
			FetchBaseDelay:       time.Second,
			FetchMaxDelay:        30 * time.Second,
		},
		Ranking: RankingConfig{
			TopN:               30,
			TrustWeights:       map[string]float64{},
			CompletenessWeight: 1.0,
			RecencyHalfLife:    7 * 24 * time.Hour,
			RecencyWeight:      10.0,
			Tiers:              []string{"music", "arts", "food"},
		},
		Feed: FeedConfig{
			CalendarName:    "Nightowl",
			UIDDomain:       "nightowl.live",
			DefaultDuration: 2 * time.Hour,
		},
		Security: SecurityConfig{
			TriggerToken:         "",
			RateLimitRequests:    100,
			RateLimitWindow:      time.Minute,
			TriggerLimitRequests: 5,
			TriggerLimitWindow:   time.Minute,
			CORSOrigins:          []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// SourceByName returns the source config with the given name, or nil.
func (c *Config) SourceByName(name string) *SourceConfig {
	for i := range c.Sources {
		if c.Sources[i].Name == name {
			return &c.Sources[i]
		}
	}
	return nil
}

// TrustRankOf returns the configured trust rank for a source name. Unknown
// sources rank after every configured source, keeping representative
// selection deterministic even for stale persisted records whose source
// has been removed from the config.
func (c *Config) TrustRankOf(source string) int {
	if s := c.SourceByName(source); s != nil {
		return s.TrustRank
	}
	return 1 << 30
}
