// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package kinsync

import (
	"fmt"

	"github.com/mobiletoly/go-kinsync/kinstore"
)

// SyncRecord is one row of the sync journal: a pending local mutation
// awaiting remote acknowledgment.
type SyncRecord struct {
	// Key is the monotonic sequence assigned at enqueue time from the
	// journal's persisted counter, and never reused. The journal's storage
	// id is derived from it, so each key maps to one journal row.
	Key int64

	// EntityID is the target entity's identifier at enqueue time.
	EntityID string

	// Collection is the target collection name.
	Collection string

	// Method is MethodCreateOrUpdate or MethodDelete.
	Method string

	// Entity is a snapshot of the entity at enqueue time. For DELETE it
	// is retained so a rejected delete can still repair local state.
	Entity Entity
}

// storageID formats the key as a fixed-width decimal so lexicographic
// order matches numeric order in every backend.
func (r SyncRecord) storageID() string {
	return fmt.Sprintf("%020d", r.Key)
}

// recordToDoc converts a SyncRecord into its journal document shape.
func recordToDoc(r SyncRecord, idAttr string) kinstore.Document {
	return kinstore.Document{
		idAttr:       r.storageID(),
		"key":        r.Key,
		"entityId":   r.EntityID,
		"collection": r.Collection,
		"state":      map[string]any{"method": r.Method},
		"entity":     map[string]any(r.Entity),
	}
}

// docToRecord parses a journal document back into a SyncRecord.
func docToRecord(doc kinstore.Document) (SyncRecord, error) {
	key, ok := asInt64(doc["key"])
	if !ok {
		return SyncRecord{}, &SyncError{Reason: "journal record missing key"}
	}
	entityID, _ := doc["entityId"].(string)
	if entityID == "" {
		return SyncRecord{}, &SyncError{Reason: "journal record missing entityId"}
	}
	collection, _ := doc["collection"].(string)
	if collection == "" {
		return SyncRecord{}, &SyncError{Reason: "journal record missing collection"}
	}
	rec := SyncRecord{
		Key:        key,
		EntityID:   entityID,
		Collection: collection,
	}
	if state, ok := doc["state"].(map[string]any); ok {
		rec.Method, _ = state["method"].(string)
	}
	if entity, ok := doc["entity"].(map[string]any); ok {
		rec.Entity = Entity(entity)
	}
	return rec, nil
}

// asInt64 accepts the numeric shapes documents come back with after a trip
// through an adapter's JSON serialization.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
