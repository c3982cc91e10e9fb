// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

// Package rawstore keeps the most recent raw listing batches per source in
// a BadgerDB key-value store. The dumps are debugging artifacts: when a
// connector misbehaves, the exact payload it produced is available without
// re-fetching the upstream. Entries carry a TTL so the store stays small.
package rawstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"

	"github.com/nightowl-live/nightowl/internal/logging"
	"github.com/nightowl-live/nightowl/internal/models"
)

// ErrNotFound is returned when a source has no stored dump.
var ErrNotFound = errors.New("rawstore: no dump for source")

const latestKeyPrefix = "raw:latest:"

// Dump is one stored batch of raw listings for a source.
type Dump struct {
	Source   string              `json:"source"`
	RunID    string              `json:"run_id"`
	StoredAt time.Time           `json:"stored_at"`
	Listings []models.RawListing `json:"listings"`
}

// Store is a TTL'd per-source raw dump store.
type Store struct {
	db  *badger.DB
	ttl time.Duration
}

// Open opens or creates the store at path.
func Open(path string, ttl time.Duration) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = badgerLogger{}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open raw store: %w", err)
	}
	return &Store{db: db, ttl: ttl}, nil
}

// NewWithDB wraps an existing badger handle; used by tests with in-memory
// databases.
func NewWithDB(db *badger.DB, ttl time.Duration) *Store {
	return &Store{db: db, ttl: ttl}
}

// Put stores the latest raw batch for a source, replacing any previous
// dump.
func (s *Store) Put(source, runID string, listings []models.RawListing, at time.Time) error {
	dump := Dump{Source: source, RunID: runID, StoredAt: at, Listings: listings}
	data, err := json.Marshal(&dump)
	if err != nil {
		return fmt.Errorf("marshal dump: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(latestKeyPrefix+source), data)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Latest returns the most recent dump for a source.
func (s *Store) Latest(source string) (*Dump, error) {
	var dump Dump
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(latestKeyPrefix + source))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get dump: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &dump)
		})
	})
	if err != nil {
		return nil, err
	}
	return &dump, nil
}

// Sources lists the sources that currently have a stored dump.
func (s *Store) Sources() ([]string, error) {
	var sources []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(latestKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			sources = append(sources, key[len(latestKeyPrefix):])
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}

// RunGC runs one value-log garbage collection pass. badger.ErrNoRewrite
// means there was nothing to reclaim and is not an error.
func (s *Store) RunGC() error {
	err := s.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// badgerLogger routes badger's internal logging through zerolog at
// debug level; badger is chatty at INFO.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...any) {
	logging.Error().Msgf("badger: "+format, args...)
}

func (badgerLogger) Warningf(format string, args ...any) {
	logging.Warn().Msgf("badger: "+format, args...)
}

func (badgerLogger) Infof(format string, args ...any) {
	logging.Debug().Msgf("badger: "+format, args...)
}

func (badgerLogger) Debugf(format string, args ...any) {
	logging.Debug().Msgf("badger: "+format, args...)
}
