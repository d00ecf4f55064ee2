// Package kinsync implements an offline-first write-synchronization engine:
// local mutations are journaled in a durable sync table, coalesced down to
// one pending mutation per entity, and pushed to the remote backend in
// bounded-concurrency batches with per-entity retry and repair semantics.
// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package kinsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mobiletoly/go-kinsync/kinstore"
)

// Client is the public surface of the sync engine. Mutations are enqueued
// through it, pushed by it, and mirrored into the collections' local
// stores by its push engine.
type Client struct {
	adapter kinstore.Adapter
	journal *Journal
	remote  Remote
	config  *Config
	logger  *slog.Logger
	metrics StageMetricsRecorder

	pushing int32

	storesMu sync.Mutex
	stores   map[string]*kinstore.Store
}

// NewClient wires the sync engine against an already-bound storage adapter
// and a remote. A nil config gets DefaultConfig.
func NewClient(ctx context.Context, adapter kinstore.Adapter, remote Remote, config *Config) (*Client, error) {
	if adapter == nil {
		return nil, &kinstore.ConfigError{Reason: "storage adapter is required"}
	}
	if remote == nil {
		return nil, &kinstore.ConfigError{Reason: "remote is required"}
	}
	if config == nil {
		config = DefaultConfig()
	}
	journal, err := NewJournal(ctx, adapter, config)
	if err != nil {
		return nil, fmt.Errorf("failed to open sync journal: %w", err)
	}
	return &Client{
		adapter: adapter,
		journal: journal,
		remote:  remote,
		config:  config,
		logger:  config.logger(),
		metrics: config.Metrics,
		stores:  map[string]*kinstore.Store{},
	}, nil
}

// Open binds the first available storage backend for the named database
// and wires a client over it.
func Open(ctx context.Context, database string, remote Remote, config *Config, storeOpts kinstore.Options) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if len(storeOpts.Preference) == 0 {
		storeOpts.Preference = config.AdapterPreference
	}
	if storeOpts.Logger == nil {
		storeOpts.Logger = config.Logger
	}
	adapter, err := kinstore.OpenDatabase(database, storeOpts)
	if err != nil {
		return nil, err
	}
	return NewClient(ctx, adapter, remote, config)
}

// Journal exposes the underlying sync journal.
func (c *Client) Journal() *Journal { return c.journal }

// Store returns the local store for a collection, so callers read and
// mutate collection rows through the same handle the push engine mirrors
// into.
func (c *Client) Store(collection string) (*kinstore.Store, error) {
	if err := c.validateCollection(collection); err != nil {
		return nil, err
	}
	return c.collectionStore(collection)
}

func (c *Client) collectionStore(collection string) (*kinstore.Store, error) {
	c.storesMu.Lock()
	defer c.storesMu.Unlock()
	if store, ok := c.stores[collection]; ok {
		return store, nil
	}
	store, err := kinstore.NewStore(c.adapter, collection, c.config.Logger)
	if err != nil {
		return nil, err
	}
	c.stores[collection] = store
	return store, nil
}

// Count returns the number of entities with pending mutations, after
// coalescing the records matching the query.
func (c *Client) Count(ctx context.Context, q *kinstore.Query) (int, error) {
	return c.journal.Count(ctx, q)
}

// EnqueueCreateOrUpdate journals a pending create-or-update for one entity.
// The entity must carry its id; offline-created entities carry a local id
// and the local metadata marker.
func (c *Client) EnqueueCreateOrUpdate(ctx context.Context, collection string, entity Entity) (Entity, error) {
	if err := c.validateCollection(collection); err != nil {
		return nil, err
	}
	if _, err := c.journal.Enqueue(ctx, collection, MethodCreateOrUpdate, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// EnqueueCreateOrUpdateAll journals pending create-or-updates for a batch,
// returning the batch unchanged. The first invalid entity aborts the whole
// call before any record is written.
func (c *Client) EnqueueCreateOrUpdateAll(ctx context.Context, collection string, entities []Entity) ([]Entity, error) {
	return c.enqueueAll(ctx, collection, MethodCreateOrUpdate, entities)
}

// EnqueueDelete journals a pending delete for one entity.
func (c *Client) EnqueueDelete(ctx context.Context, collection string, entity Entity) (Entity, error) {
	if err := c.validateCollection(collection); err != nil {
		return nil, err
	}
	if _, err := c.journal.Enqueue(ctx, collection, MethodDelete, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// EnqueueDeleteAll journals pending deletes for a batch, returning the
// batch unchanged.
func (c *Client) EnqueueDeleteAll(ctx context.Context, collection string, entities []Entity) ([]Entity, error) {
	return c.enqueueAll(ctx, collection, MethodDelete, entities)
}

func (c *Client) enqueueAll(ctx context.Context, collection, method string, entities []Entity) ([]Entity, error) {
	if err := c.validateCollection(collection); err != nil {
		return nil, err
	}
	for _, entity := range entities {
		if entity.ID(c.config.IDAttribute) == "" {
			return nil, &SyncError{Reason: "missing " + c.config.IDAttribute}
		}
	}
	for _, entity := range entities {
		if _, err := c.journal.Enqueue(ctx, collection, method, entity); err != nil {
			return nil, err
		}
	}
	return entities, nil
}

// Clear removes pending records matching the query; nil clears everything.
func (c *Client) Clear(ctx context.Context, q *kinstore.Query) error {
	return c.journal.Clear(ctx, q)
}

// ClearAll drops the journal and every collection table. Client metadata
// (the sync key counter, the client id) survives.
func (c *Client) ClearAll(ctx context.Context) error {
	return c.adapter.ClearAll(ctx)
}

// PendingCount returns the raw (uncoalesced) number of journal records
// matching the query.
func (c *Client) PendingCount(ctx context.Context, q *kinstore.Query) (int, error) {
	recs, err := c.journal.Pending(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

// PendingRecords returns the matching journal records, ascending by key,
// without claiming them.
func (c *Client) PendingRecords(ctx context.Context, q *kinstore.Query) ([]SyncRecord, error) {
	return c.journal.Pending(ctx, q)
}

func (c *Client) validateCollection(collection string) error {
	if collection == "" {
		return &SyncError{Reason: "collection name missing"}
	}
	if !kinstore.ValidName(collection) {
		return &kinstore.ConfigError{Reason: fmt.Sprintf("invalid collection name %q", collection)}
	}
	return nil
}

// Close releases the storage adapter.
func (c *Client) Close() error {
	return c.adapter.Close()
}
