// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package clipboard keeps named slots of transfer containers.
//
// Slots live in BadgerDB, in memory by default. A path may be configured
// so clipboard content survives a restart of the CLI; the store is a
// transfer buffer, never a persistence format for a model.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/modelgraph/services/modelgraph/transfer"
)

var (
	// ErrInvalidSlot indicates an empty or malformed slot name.
	ErrInvalidSlot = errors.New("invalid clipboard slot")

	// ErrClosed indicates use of a closed store.
	ErrClosed = errors.New("clipboard store closed")

	// ErrCorrupt indicates stored bytes that do not decode.
	ErrCorrupt = errors.New("corrupt clipboard data")

	// ErrUnsupportedVersion indicates a codec version this build cannot read.
	ErrUnsupportedVersion = errors.New("unsupported clipboard codec version")
)

const slotPrefix = "clipboard/slot/"

var clipboardOps = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "modelgraph_clipboard_operations_total",
		Help: "Clipboard store operations by kind and outcome",
	},
	[]string{"operation", "outcome"},
)

// Config holds configuration for a clipboard store.
type Config struct {
	// Path is the directory for on-disk retention. Ignored when InMemory.
	Path string

	// InMemory keeps slots in RAM only.
	InMemory bool

	// SyncWrites makes every Put durable before returning.
	SyncWrites bool

	// TTL expires slots after the given duration. Zero keeps them.
	TTL time.Duration

	// Logger receives store and BadgerDB messages. Nil disables
	// BadgerDB's internal logging.
	Logger *slog.Logger
}

// DefaultConfig returns an in-memory configuration.
func DefaultConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Store is a set of named clipboard slots.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// Open opens a clipboard store.
//
// Inputs:
//
//	cfg - Store configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*Store - The opened store. Caller must call Close when done.
//	error - Non-nil if the path is missing or BadgerDB cannot open.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("clipboard path is required unless in-memory")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create clipboard directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	logger := cfg.Logger
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger.With("component", "badger")})
	} else {
		opts = opts.WithLogger(nil)
		logger = slog.Default()
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clipboard database: %w", err)
	}
	return &Store{
		db:     db,
		ttl:    cfg.TTL,
		logger: logger.With("component", "clipboard.Store"),
	}, nil
}

func slotKey(slot string) ([]byte, error) {
	if slot == "" || strings.ContainsAny(slot, "/\x00") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSlot, slot)
	}
	return []byte(slotPrefix + slot), nil
}

func record(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	clipboardOps.WithLabelValues(op, outcome).Inc()
}

// Put stores c under slot, replacing any previous content.
func (s *Store) Put(ctx context.Context, slot string, c *transfer.Container) (err error) {
	defer func() { record("put", err) }()
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := slotKey(slot)
	if err != nil {
		return err
	}
	data, err := Encode(c)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, data)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("put slot %s: %w", slot, err)
	}
	s.logger.Debug("clipboard slot stored",
		slog.String("slot", slot),
		slog.Int("entries", c.Len()),
		slog.Int("bytes", len(data)))
	return nil
}

// Get returns the container stored under slot.
//
// Outputs:
//
//	*transfer.Container - The decoded container, or nil if absent.
//	bool - Whether the slot exists.
//	error - ErrInvalidSlot, ErrClosed, ErrCorrupt or a BadgerDB error.
func (s *Store) Get(ctx context.Context, slot string) (c *transfer.Container, found bool, err error) {
	defer func() { record("get", err) }()
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	key, err := slotKey(slot)
	if err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, false, ErrClosed
	}
	var data []byte
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get slot %s: %w", slot, err)
	}
	c, err = Decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("slot %s: %w", slot, err)
	}
	return c, true, nil
}

// Delete removes slot. Deleting an absent slot is not an error.
func (s *Store) Delete(ctx context.Context, slot string) (err error) {
	defer func() { record("delete", err) }()
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := slotKey(slot)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}
	if err := s.db.Update(func(txn *badger.Txn) error { return txn.Delete(key) }); err != nil {
		return fmt.Errorf("delete slot %s: %w", slot, err)
	}
	return nil
}

// Slots lists the slot names in key order.
func (s *Store) Slots(ctx context.Context) (slots []string, err error) {
	defer func() { record("slots", err) }()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(slotPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			slots = append(slots, strings.TrimPrefix(string(it.Item().Key()), slotPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

// Close closes the store. Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
