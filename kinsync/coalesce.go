// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package kinsync

import "sort"

// Coalesce reduces a list of sync records to at most one per entity id:
// the record with the largest key wins ("last write wins locally"). A later
// DELETE therefore supersedes earlier writes and vice versa, because
// selection is by key alone, not by method.
//
// The input is not mutated. Result order is descending by key, which is
// deterministic for the same input.
func Coalesce(records []SyncRecord) []SyncRecord {
	if len(records) <= 1 {
		return append([]SyncRecord(nil), records...)
	}
	sorted := append([]SyncRecord(nil), records...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Key > sorted[j].Key
	})
	seen := make(map[string]struct{}, len(sorted))
	out := sorted[:0]
	for _, rec := range sorted {
		if _, dup := seen[rec.EntityID]; dup {
			continue
		}
		seen[rec.EntityID] = struct{}{}
		out = append(out, rec)
	}
	return out
}
