// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package kinsync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mobiletoly/go-kinsync/kinstore"
)

// Journal is the append-only log of pending mutations, backed by a local
// store on a reserved table. Keys come from a persisted counter that only
// moves forward, so they are never reused; record storage ids are derived
// from the key, so each key occupies exactly one row (saving under an
// existing key overwrites that row).
type Journal struct {
	store    *kinstore.Store
	meta     *kinstore.Store
	idAttr   string
	clientID string
	logger   *slog.Logger

	// mu serializes counter read-modify-writes and keeps Drain atomic
	// with respect to concurrent enqueues.
	mu sync.Mutex
}

// NewJournal binds the journal to its reserved table and loads (or
// creates) the persisted client id.
func NewJournal(ctx context.Context, adapter kinstore.Adapter, cfg *Config) (*Journal, error) {
	store, err := kinstore.NewStore(adapter, cfg.SyncTable, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open sync table: %w", err)
	}
	meta, err := kinstore.NewStore(adapter, metaTable, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open meta table: %w", err)
	}
	j := &Journal{
		store:  store,
		meta:   meta,
		idAttr: cfg.IDAttribute,
		logger: cfg.logger(),
	}
	if j.clientID, err = j.ensureClientID(ctx); err != nil {
		return nil, err
	}
	return j, nil
}

// ClientID returns the persisted identifier of this client instance.
func (j *Journal) ClientID() string { return j.clientID }

// ensureClientID loads the client instance id, generating and persisting a
// fresh UUID on first use.
func (j *Journal) ensureClientID(ctx context.Context) (string, error) {
	doc, err := j.meta.FindByID(ctx, metaClientIDID)
	if err != nil {
		return "", fmt.Errorf("failed to read client id: %w", err)
	}
	if doc != nil {
		if id, ok := doc["value"].(string); ok && id != "" {
			return id, nil
		}
	}
	id := uuid.New().String()
	_, err = j.meta.Save(ctx, kinstore.Document{
		j.idAttr: metaClientIDID,
		"value":  id,
	})
	if err != nil {
		return "", fmt.Errorf("failed to persist client id: %w", err)
	}
	return id, nil
}

// nextKey performs the persisted counter's read-modify-write. The stored
// value is the next key to hand out.
func (j *Journal) nextKey(ctx context.Context) (int64, error) {
	doc, err := j.meta.FindByID(ctx, metaSyncKeyID)
	if err != nil {
		return 0, fmt.Errorf("failed to read sync key: %w", err)
	}
	var key int64
	if doc != nil {
		if v, ok := asInt64(doc["value"]); ok {
			key = v
		}
	}
	_, err = j.meta.Save(ctx, kinstore.Document{
		j.idAttr: metaSyncKeyID,
		"value":  key + 1,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to advance sync key: %w", err)
	}
	return key, nil
}

// Enqueue appends one pending mutation. The entity must already carry its
// identifier.
func (j *Journal) Enqueue(ctx context.Context, collection, method string, entity Entity) (SyncRecord, error) {
	if collection == "" {
		return SyncRecord{}, &SyncError{Reason: "collection name missing"}
	}
	entityID := entity.ID(j.idAttr)
	if entityID == "" {
		return SyncRecord{}, &SyncError{Reason: "missing " + j.idAttr}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	key, err := j.nextKey(ctx)
	if err != nil {
		return SyncRecord{}, err
	}
	rec := SyncRecord{
		Key:        key,
		EntityID:   entityID,
		Collection: collection,
		Method:     method,
		Entity:     cloneEntity(entity),
	}
	if _, err := j.store.Save(ctx, recordToDoc(rec, j.idAttr)); err != nil {
		return SyncRecord{}, fmt.Errorf("failed to persist sync record: %w", err)
	}
	j.logger.Debug("sync record enqueued",
		"key", rec.Key, "collection", collection, "entity", entityID, "method", method)
	return rec, nil
}

// records loads and parses every journal row matching the query, ascending
// by key.
func (j *Journal) records(ctx context.Context, q *kinstore.Query) ([]SyncRecord, error) {
	docs, err := j.store.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to read sync table: %w", err)
	}
	recs := make([]SyncRecord, 0, len(docs))
	for _, doc := range docs {
		rec, err := docToRecord(doc)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, k int) bool { return recs[i].Key < recs[k].Key })
	return recs, nil
}

// Pending returns the matching records without removing them.
func (j *Journal) Pending(ctx context.Context, q *kinstore.Query) ([]SyncRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.records(ctx, q)
}

// Drain removes every record matching the query from storage and returns
// them. Callers reinstate the subset that failed to push.
func (j *Journal) Drain(ctx context.Context, q *kinstore.Query) ([]SyncRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	recs, err := j.records(ctx, q)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if err := j.store.RemoveByID(ctx, rec.storageID()); err != nil {
			return nil, fmt.Errorf("failed to claim sync record %d: %w", rec.Key, err)
		}
	}
	return recs, nil
}

// Reinstate writes records back into the journal in a single upsert,
// preserving their original keys.
func (j *Journal) Reinstate(ctx context.Context, recs []SyncRecord) error {
	if len(recs) == 0 {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	docs := make([]kinstore.Document, len(recs))
	for i, rec := range recs {
		docs[i] = recordToDoc(rec, j.idAttr)
	}
	if _, err := j.store.SaveAll(ctx, docs); err != nil {
		return fmt.Errorf("failed to reinstate sync records: %w", err)
	}
	return nil
}

// Count returns the number of distinct entity ids pending after coalescing
// the query's result set.
func (j *Journal) Count(ctx context.Context, q *kinstore.Query) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	recs, err := j.records(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(Coalesce(recs)), nil
}

// Clear removes matching records; with a nil query the whole table is
// dropped.
func (j *Journal) Clear(ctx context.Context, q *kinstore.Query) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if q == nil {
		return j.store.Clear(ctx)
	}
	if _, err := j.store.Clean(ctx, q); err != nil {
		return fmt.Errorf("failed to clear sync records: %w", err)
	}
	return nil
}
