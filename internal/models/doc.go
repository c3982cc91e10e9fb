// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

// Package models defines the shared data structures of the aggregation
// pipeline: raw listings as produced by source connectors, the canonical
// event record persisted in DuckDB, duplicate groups, score records, and
// the per-run summary returned by the pipeline trigger endpoint.
//
// Structures in this package carry no behavior beyond small derivation and
// formatting helpers; all pipeline logic lives in the stage packages
// (connector, normalize, dedup, score, feed).
package models
