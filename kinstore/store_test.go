// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package kinstore

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, collection string) *Store {
	t.Helper()
	adapter, err := OpenDatabase("storetest", Options{
		Preference: []AdapterKind{AdapterIndexed},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })

	store, err := NewStore(adapter, collection, nil)
	require.NoError(t, err)
	return store
}

func TestStore_GenerateID(t *testing.T) {
	store := newTestStore(t, "books")
	re := regexp.MustCompile(`^local_[0-9a-f]{24}$`)

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := store.GenerateID()
		require.Regexp(t, re, id)
		require.True(t, IsLocalID(id))
		require.False(t, seen[id], "generated ids must not repeat")
		seen[id] = true
	}
	require.False(t, IsLocalID("abc123"))
}

func TestStore_SaveAssignsMissingID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, "books")

	doc, err := store.Save(ctx, Document{"title": "untitled"})
	require.NoError(t, err)
	require.True(t, IsLocalID(doc.ID("_id")))

	found, err := store.FindByID(ctx, doc.ID("_id"))
	require.NoError(t, err)
	require.Equal(t, "untitled", found["title"])
}

func TestStore_FindCountWithQuery(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, "books")

	_, err := store.SaveAll(ctx, []Document{
		{"_id": "a", "genre": "scifi", "pages": float64(100)},
		{"_id": "b", "genre": "scifi", "pages": float64(350)},
		{"_id": "c", "genre": "crime", "pages": float64(220)},
	})
	require.NoError(t, err)

	q := &Query{Filter: map[string]any{"genre": "scifi"}}
	docs, err := store.Find(ctx, q)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	// Count ignores sort/skip/limit.
	n, err := store.Count(ctx, &Query{
		Filter: map[string]any{"genre": "scifi"},
		Limit:  1,
		Skip:   5,
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = store.Count(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestStore_Group(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, "books")

	_, err := store.SaveAll(ctx, []Document{
		{"_id": "a", "genre": "scifi", "pages": float64(100)},
		{"_id": "b", "genre": "scifi", "pages": float64(350)},
		{"_id": "c", "genre": "crime", "pages": float64(220)},
	})
	require.NoError(t, err)

	groups, err := store.Group(ctx, Aggregation{
		Key:     []string{"genre"},
		Initial: map[string]any{"count": 0},
		Reduce: func(doc Document, acc map[string]any) {
			acc["count"] = acc["count"].(int) + 1
		},
	})
	require.NoError(t, err)
	require.Len(t, groups, 2)

	byGenre := map[string]int{}
	for _, g := range groups {
		byGenre[g["genre"].(string)] = g["count"].(int)
	}
	require.Equal(t, 2, byGenre["scifi"])
	require.Equal(t, 1, byGenre["crime"])
}

func TestStore_FindAndModify(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, "books")

	_, err := store.Save(ctx, Document{"_id": "a", "reads": float64(1)})
	require.NoError(t, err)

	doc, err := store.FindAndModify(ctx, "a", func(d Document) (Document, error) {
		d["reads"] = d["reads"].(float64) + 1
		return d, nil
	})
	require.NoError(t, err)
	require.Equal(t, float64(2), doc["reads"])

	stored, err := store.FindByID(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, float64(2), stored["reads"])

	// Returning nil aborts without a write.
	doc, err = store.FindAndModify(ctx, "missing", func(d Document) (Document, error) {
		require.Nil(t, d)
		return nil, nil
	})
	require.NoError(t, err)
	require.Nil(t, doc)
}

func TestStore_Clean(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, "books")

	_, err := store.SaveAll(ctx, []Document{
		{"_id": "a", "genre": "scifi"},
		{"_id": "b", "genre": "scifi"},
		{"_id": "c", "genre": "crime"},
	})
	require.NoError(t, err)

	removed, err := store.Clean(ctx, &Query{Filter: map[string]any{"genre": "scifi"}})
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	n, err := store.Count(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestStore_NameValidation(t *testing.T) {
	adapter, err := OpenDatabase("storetest", Options{
		Preference: []AdapterKind{AdapterIndexed},
	})
	require.NoError(t, err)
	defer adapter.Close()

	var cfgErr *ConfigError
	_, err = NewStore(adapter, "bad name!", nil)
	require.ErrorAs(t, err, &cfgErr)

	_, err = NewStore(adapter, "", nil)
	require.ErrorAs(t, err, &cfgErr)

	// Reserved tables carry underscores and are still legal at this level.
	_, err = NewStore(adapter, "kinvey_sync", nil)
	require.NoError(t, err)
	_, err = NewStore(adapter, "_kinsync_meta", nil)
	require.NoError(t, err)
}
