// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package kinsync

import (
	"context"
	"sync"
	"testing"

	"github.com/mobiletoly/go-kinsync/kinstore"
	"github.com/stretchr/testify/require"
)

type remoteCall struct {
	op         string
	collection string
	id         string
	entity     Entity
}

// fakeRemote records every dispatch and answers through overridable
// function fields. Defaults: create/update echo the entity, delete
// succeeds, get reports not found.
type fakeRemote struct {
	mu    sync.Mutex
	calls []remoteCall

	createFn func(collection string, entity Entity) (Entity, error)
	updateFn func(collection, id string, entity Entity) (Entity, error)
	deleteFn func(collection, id string) error
	getFn    func(collection, id string) (Entity, error)

	// concurrency high-water mark across in-flight calls
	inflight    int
	maxInflight int
}

func (f *fakeRemote) record(call remoteCall) func() {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}
}

func (f *fakeRemote) Create(ctx context.Context, collection string, entity Entity) (Entity, error) {
	defer f.record(remoteCall{op: "POST", collection: collection, entity: entity})()
	if f.createFn != nil {
		return f.createFn(collection, entity)
	}
	return entity, nil
}

func (f *fakeRemote) Update(ctx context.Context, collection, id string, entity Entity) (Entity, error) {
	defer f.record(remoteCall{op: "PUT", collection: collection, id: id, entity: entity})()
	if f.updateFn != nil {
		return f.updateFn(collection, id, entity)
	}
	return entity, nil
}

func (f *fakeRemote) Delete(ctx context.Context, collection, id string) error {
	defer f.record(remoteCall{op: "DELETE", collection: collection, id: id})()
	if f.deleteFn != nil {
		return f.deleteFn(collection, id)
	}
	return nil
}

func (f *fakeRemote) Get(ctx context.Context, collection, id string) (Entity, error) {
	defer f.record(remoteCall{op: "GET", collection: collection, id: id})()
	if f.getFn != nil {
		return f.getFn(collection, id)
	}
	return nil, &NotFoundError{Collection: collection, EntityID: id}
}

func (f *fakeRemote) callsByOp(op string) []remoteCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []remoteCall
	for _, c := range f.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestAdapter(t *testing.T) kinstore.Adapter {
	t.Helper()
	adapter, err := kinstore.OpenDatabase("synctest", kinstore.Options{
		Preference: []kinstore.AdapterKind{kinstore.AdapterIndexed},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })
	return adapter
}

func newTestClient(t *testing.T, remote Remote) *Client {
	t.Helper()
	client, err := NewClient(context.Background(), newTestAdapter(t), remote, DefaultConfig())
	require.NoError(t, err)
	return client
}
