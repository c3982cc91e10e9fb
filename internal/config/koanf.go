// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/nightowl/config.yaml",
	"/etc/nightowl/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load loads configuration with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (source definitions live here)
//  3. Environment variables: override any scalar setting
//
// Precedence: ENV > file > defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Env vars arrive as strings; known slice paths are comma-split.
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths defines which config paths are parsed as
// comma-separated slices when set via environment variables.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"ranking.tiers",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		// Already a slice (from YAML), skip.
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are dropped so random environment noise never pollutes
// the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",

		// Database
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// Raw dump store
		"rawstore_enabled":     "rawstore.enabled",
		"rawstore_path":        "rawstore.path",
		"rawstore_ttl":         "rawstore.ttl",
		"rawstore_gc_interval": "rawstore.gc_interval",

		// Region bounding box
		"region_name":    "region.name",
		"region_min_lat": "region.min_lat",
		"region_max_lat": "region.max_lat",
		"region_min_lon": "region.min_lon",
		"region_max_lon": "region.max_lon",

		// Pipeline
		"pipeline_schedule":           "pipeline.schedule",
		"pipeline_run_timeout":        "pipeline.run_timeout",
		"pipeline_max_concurrent":     "pipeline.max_concurrent_sources",
		"pipeline_horizon":            "pipeline.horizon",
		"pipeline_fetch_max_attempts": "pipeline.fetch_max_attempts",
		"pipeline_fetch_base_delay":   "pipeline.fetch_base_delay",
		"pipeline_fetch_max_delay":    "pipeline.fetch_max_delay",

		// Ranking
		"ranking_top_n":               "ranking.top_n",
		"ranking_completeness_weight": "ranking.completeness_weight",
		"ranking_recency_half_life":   "ranking.recency_half_life",
		"ranking_recency_weight":      "ranking.recency_weight",
		"ranking_tiers":               "ranking.tiers",

		// Feed
		"feed_calendar_name":    "feed.calendar_name",
		"feed_uid_domain":       "feed.uid_domain",
		"feed_default_duration": "feed.default_duration",

		// Security
		"trigger_token":          "security.trigger_token",
		"rate_limit_requests":    "security.rate_limit_requests",
		"rate_limit_window":      "security.rate_limit_window",
		"trigger_limit_requests": "security.trigger_limit_requests",
		"trigger_limit_window":   "security.trigger_limit_window",
		"cors_origins":           "security.cors_origins",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
