// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package kinsync

import (
	"context"
	"testing"

	"github.com/mobiletoly/go-kinsync/kinstore"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T, adapter kinstore.Adapter) *Journal {
	t.Helper()
	journal, err := NewJournal(context.Background(), adapter, DefaultConfig())
	require.NoError(t, err)
	return journal
}

func TestJournal_EnqueueAssignsMonotonicKeys(t *testing.T) {
	ctx := context.Background()
	journal := newTestJournal(t, newTestAdapter(t))

	var keys []int64
	for i := 0; i < 5; i++ {
		rec, err := journal.Enqueue(ctx, "books", MethodCreateOrUpdate, Entity{"_id": "a"})
		require.NoError(t, err)
		keys = append(keys, rec.Key)
	}
	for i := 1; i < len(keys); i++ {
		require.Greater(t, keys[i], keys[i-1])
	}
}

func TestJournal_CounterSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	adapter := newTestAdapter(t)

	journal := newTestJournal(t, adapter)
	rec, err := journal.Enqueue(ctx, "books", MethodCreateOrUpdate, Entity{"_id": "a"})
	require.NoError(t, err)

	reopened := newTestJournal(t, adapter)
	rec2, err := reopened.Enqueue(ctx, "books", MethodCreateOrUpdate, Entity{"_id": "b"})
	require.NoError(t, err)
	require.Greater(t, rec2.Key, rec.Key)

	// The persisted client id is stable across reopen too.
	require.Equal(t, journal.ClientID(), reopened.ClientID())
	require.NotEmpty(t, journal.ClientID())
}

func TestJournal_EnqueueValidation(t *testing.T) {
	ctx := context.Background()
	journal := newTestJournal(t, newTestAdapter(t))

	var syncErr *SyncError
	_, err := journal.Enqueue(ctx, "books", MethodCreateOrUpdate, Entity{"title": "no id"})
	require.ErrorAs(t, err, &syncErr)

	_, err = journal.Enqueue(ctx, "", MethodCreateOrUpdate, Entity{"_id": "a"})
	require.ErrorAs(t, err, &syncErr)
}

func TestJournal_EnqueueSnapshotsEntity(t *testing.T) {
	ctx := context.Background()
	journal := newTestJournal(t, newTestAdapter(t))

	entity := Entity{"_id": "a", "v": float64(1)}
	_, err := journal.Enqueue(ctx, "books", MethodCreateOrUpdate, entity)
	require.NoError(t, err)

	// Mutating the caller's entity after enqueue must not change the
	// journaled snapshot.
	entity["v"] = float64(99)

	recs, err := journal.Pending(ctx, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, float64(1), recs[0].Entity["v"])
}

func TestJournal_CountCoalesces(t *testing.T) {
	ctx := context.Background()
	journal := newTestJournal(t, newTestAdapter(t))

	// P1: distinct entity ids count individually.
	for _, id := range []string{"a", "b", "c"} {
		_, err := journal.Enqueue(ctx, "books", MethodCreateOrUpdate, Entity{"_id": id})
		require.NoError(t, err)
	}
	n, err := journal.Count(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	// P2: repeated mutations against one entity coalesce to one.
	for i := 0; i < 4; i++ {
		_, err := journal.Enqueue(ctx, "books", MethodCreateOrUpdate, Entity{"_id": "a"})
		require.NoError(t, err)
	}
	n, err = journal.Count(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestJournal_CountRestrictedByQuery(t *testing.T) {
	ctx := context.Background()
	journal := newTestJournal(t, newTestAdapter(t))

	_, err := journal.Enqueue(ctx, "books", MethodCreateOrUpdate, Entity{"_id": "a"})
	require.NoError(t, err)
	_, err = journal.Enqueue(ctx, "authors", MethodCreateOrUpdate, Entity{"_id": "b"})
	require.NoError(t, err)

	// P8: count(query) equals the coalesced set restricted by the query.
	n, err := journal.Count(ctx, &kinstore.Query{Filter: map[string]any{"collection": "books"}})
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestJournal_DrainRemovesAndReturns(t *testing.T) {
	ctx := context.Background()
	journal := newTestJournal(t, newTestAdapter(t))

	_, err := journal.Enqueue(ctx, "books", MethodCreateOrUpdate, Entity{"_id": "a"})
	require.NoError(t, err)
	_, err = journal.Enqueue(ctx, "books", MethodDelete, Entity{"_id": "b"})
	require.NoError(t, err)

	recs, err := journal.Drain(ctx, nil)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	n, err := journal.Count(ctx, nil)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestJournal_ReinstatePreservesKey(t *testing.T) {
	ctx := context.Background()
	journal := newTestJournal(t, newTestAdapter(t))

	rec, err := journal.Enqueue(ctx, "books", MethodCreateOrUpdate, Entity{"_id": "a", "v": float64(1)})
	require.NoError(t, err)

	drained, err := journal.Drain(ctx, nil)
	require.NoError(t, err)
	require.Len(t, drained, 1)

	require.NoError(t, journal.Reinstate(ctx, drained))

	recs, err := journal.Pending(ctx, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, rec.Key, recs[0].Key)
	require.Equal(t, "a", recs[0].EntityID)
	require.Equal(t, float64(1), recs[0].Entity["v"])
}

func TestJournal_Clear(t *testing.T) {
	ctx := context.Background()
	journal := newTestJournal(t, newTestAdapter(t))

	_, err := journal.Enqueue(ctx, "books", MethodCreateOrUpdate, Entity{"_id": "a"})
	require.NoError(t, err)
	_, err = journal.Enqueue(ctx, "authors", MethodCreateOrUpdate, Entity{"_id": "b"})
	require.NoError(t, err)

	require.NoError(t, journal.Clear(ctx, &kinstore.Query{Filter: map[string]any{"collection": "books"}}))
	n, err := journal.Count(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, journal.Clear(ctx, nil))
	n, err = journal.Count(ctx, nil)
	require.NoError(t, err)
	require.Zero(t, n)
}
