// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package kinstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
)

// LocalIDPrefix marks identifiers generated on the device and never
// acknowledged by the remote.
const LocalIDPrefix = "local_"

// Store is the typed CRUD layer over one collection of an Adapter. It
// bridges the richer query descriptor down to the adapter's find/removeById
// and generates local ids for documents saved without one.
type Store struct {
	adapter    Adapter
	collection string
	idAttr     string
	logger     *slog.Logger
}

// NewStore binds a store to a table. User-facing collection names are
// validated by the callers against the stricter ValidName; at this level
// reserved tables with underscores are admitted too.
func NewStore(adapter Adapter, collection string, logger *slog.Logger) (*Store, error) {
	if !validTableName(collection) {
		return nil, &ConfigError{Reason: fmt.Sprintf("invalid collection name %q", collection)}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		adapter:    adapter,
		collection: collection,
		idAttr:     DefaultIDAttribute(),
		logger:     logger,
	}, nil
}

// Collection returns the collection name this store is bound to.
func (s *Store) Collection() string { return s.collection }

// GenerateID returns a device-local identifier: 24 hex chars under the
// local_ prefix.
func (s *Store) GenerateID() string {
	var buf [12]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("kinstore: rand.Read: %v", err))
	}
	return LocalIDPrefix + hex.EncodeToString(buf[:])
}

// IsLocalID reports whether id was generated by GenerateID.
func IsLocalID(id string) bool {
	return len(id) > len(LocalIDPrefix) && id[:len(LocalIDPrefix)] == LocalIDPrefix
}

// Save upserts one document, assigning a local id when it has none.
func (s *Store) Save(ctx context.Context, doc Document) (Document, error) {
	docs, err := s.SaveAll(ctx, []Document{doc})
	if err != nil {
		return nil, err
	}
	return docs[0], nil
}

// SaveAll upserts a batch in one adapter call; all-or-nothing.
func (s *Store) SaveAll(ctx context.Context, docs []Document) ([]Document, error) {
	for _, doc := range docs {
		if doc.ID(s.idAttr) == "" {
			doc[s.idAttr] = s.GenerateID()
		}
	}
	return s.adapter.Save(ctx, s.collection, docs)
}

// FindByID returns the document under id, or (nil, nil) when absent.
func (s *Store) FindByID(ctx context.Context, id string) (Document, error) {
	return s.adapter.FindByID(ctx, s.collection, id)
}

// Find evaluates the query client-side over the adapter's full table scan.
func (s *Store) Find(ctx context.Context, q *Query) ([]Document, error) {
	docs, err := s.adapter.Find(ctx, s.collection)
	if err != nil {
		return nil, err
	}
	return q.Apply(docs), nil
}

// Count returns the number of documents matching the query's filter.
// Sort, skip and limit are ignored.
func (s *Store) Count(ctx context.Context, q *Query) (int, error) {
	docs, err := s.adapter.Find(ctx, s.collection)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, doc := range docs {
		if q.Match(doc) {
			n++
		}
	}
	return n, nil
}

// Group evaluates the aggregation client-side and returns one accumulator
// per distinct key, with the key attributes merged in.
func (s *Store) Group(ctx context.Context, agg Aggregation) ([]map[string]any, error) {
	if agg.Reduce == nil {
		return nil, &ConfigError{Reason: "aggregation requires a reduce function"}
	}
	docs, err := s.adapter.Find(ctx, s.collection)
	if err != nil {
		return nil, err
	}

	buckets := map[string]map[string]any{}
	var order []string
	for _, doc := range docs {
		if !agg.Condition.Match(doc) {
			continue
		}
		key := groupKey(doc, agg.Key)
		acc, ok := buckets[key]
		if !ok {
			acc = map[string]any{}
			for k, v := range agg.Initial {
				acc[k] = v
			}
			for _, attr := range agg.Key {
				acc[attr] = doc[attr]
			}
			buckets[key] = acc
			order = append(order, key)
		}
		agg.Reduce(doc, acc)
	}

	out := make([]map[string]any, 0, len(order))
	for _, key := range order {
		out = append(out, buckets[key])
	}
	return out, nil
}

func groupKey(doc Document, attrs []string) string {
	raw, _ := json.Marshal(func() []any {
		vals := make([]any, len(attrs))
		for i, attr := range attrs {
			vals[i] = doc[attr]
		}
		return vals
	}())
	return string(raw)
}

// FindAndModify reads the document under id, applies fn, and writes the
// result back in a single adapter save. fn receives nil when the document
// is absent; returning nil aborts without writing.
func (s *Store) FindAndModify(ctx context.Context, id string, fn func(Document) (Document, error)) (Document, error) {
	doc, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	modified, err := fn(doc)
	if err != nil {
		return nil, err
	}
	if modified == nil {
		return nil, nil
	}
	if modified.ID(s.idAttr) == "" {
		modified[s.idAttr] = id
	}
	if _, err := s.adapter.Save(ctx, s.collection, []Document{modified}); err != nil {
		return nil, err
	}
	return modified, nil
}

// Clean bulk-deletes every document matching the query's filter and
// returns how many were removed.
func (s *Store) Clean(ctx context.Context, q *Query) (int, error) {
	docs, err := s.adapter.Find(ctx, s.collection)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, doc := range docs {
		if !q.Match(doc) {
			continue
		}
		if err := s.adapter.RemoveByID(ctx, s.collection, doc.ID(s.idAttr)); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// RemoveByID deletes the document under id.
func (s *Store) RemoveByID(ctx context.Context, id string) error {
	return s.adapter.RemoveByID(ctx, s.collection, id)
}

// Clear drops the collection's table.
func (s *Store) Clear(ctx context.Context) error {
	return s.adapter.Clear(ctx, s.collection)
}
