// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package kinsync

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mobiletoly/go-kinsync/kinstore"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome of pushing one coalesced sync record.
type Result struct {
	// EntityID is the entity's id at enqueue time. For an offline-created
	// entity this is the device-generated id even when the remote assigned
	// a new one.
	EntityID string

	// Entity is the remote's stored form when the remote returned one,
	// otherwise the enqueue-time snapshot.
	Entity Entity

	// State is the record's terminal state: acknowledged, repaired,
	// reinstated, or abandoned.
	State string

	// Err carries the failure for every non-acknowledged state. An
	// acknowledged result carries an error only when mirroring the remote's
	// form into the local store failed. Per-record failures are reported
	// here; Push itself returns an error only when the journal cannot be
	// drained or the failed records cannot be reinstated.
	Err error
}

// Push drains the journal for records matching the query, coalesces them,
// and dispatches the remainder against the remote in sequential batches of
// the configured size. Operations within a batch run concurrently.
//
// Every record that survives coalescing produces exactly one Result; records
// superseded by a higher key for the same entity are dropped without a
// dispatch or a Result. Per-record failures
// never abort the batch. Records that failed for a reason retrying can fix
// are reinstated into the journal with their original keys. Result order
// follows dispatch (coalesced) order.
//
// Push refuses re-entry: a second call while one is in flight returns a
// SyncError without touching the journal.
func (c *Client) Push(ctx context.Context, q *kinstore.Query) ([]Result, error) {
	if !atomic.CompareAndSwapInt32(&c.pushing, 0, 1) {
		return nil, &SyncError{Reason: "push already in progress"}
	}
	defer atomic.StoreInt32(&c.pushing, 0)

	totalStart := time.Now()
	stageStart := totalStart
	claimed, err := c.journal.Drain(ctx, q)
	c.observeStage(ctx, MetricsStageDrain, stageStart, len(claimed), err != nil)
	if err != nil {
		return nil, err
	}
	if len(claimed) == 0 {
		return []Result{}, nil
	}

	stageStart = time.Now()
	coalesced := Coalesce(claimed)
	c.observeStage(ctx, MetricsStageCoalesce, stageStart, len(coalesced), false)
	c.logger.Debug("push claimed records",
		"claimed", len(claimed), "coalesced", len(coalesced))

	batchSize := c.config.batchSize()
	results := make([]Result, 0, len(coalesced))
	var failed []SyncRecord

	stageStart = time.Now()
	for start := 0; start < len(coalesced); start += batchSize {
		end := min(start+batchSize, len(coalesced))
		batch := coalesced[start:end]
		batchResults := make([]Result, len(batch))
		reinstate := make([]bool, len(batch))

		g, gctx := errgroup.WithContext(ctx)
		for i, rec := range batch {
			i, rec := i, rec
			g.Go(func() error {
				batchResults[i], reinstate[i] = c.dispatchRecord(gctx, rec)
				return nil
			})
		}
		// Dispatch goroutines classify their own failures and never
		// return an error; Wait is a pure join.
		_ = g.Wait()

		for i := range batch {
			results = append(results, batchResults[i])
			if reinstate[i] {
				failed = append(failed, batch[i])
			}
		}
	}
	c.observeStage(ctx, MetricsStageDispatch, stageStart, len(coalesced), false)

	stageStart = time.Now()
	err = c.journal.Reinstate(ctx, failed)
	c.observeStage(ctx, MetricsStageReinstate, stageStart, len(failed), err != nil)
	c.observeStage(ctx, MetricsStageTotal, totalStart, len(coalesced), err != nil)
	if err != nil {
		return results, err
	}
	return results, nil
}

// dispatchRecord runs one record's remote operation and classifies the
// outcome. The returned flag requests reinstatement into the journal.
func (c *Client) dispatchRecord(ctx context.Context, rec SyncRecord) (Result, bool) {
	res := Result{EntityID: rec.EntityID, Entity: rec.Entity}

	switch rec.Method {
	case MethodCreateOrUpdate:
		if IsLocalEntity(rec.Entity, c.config.KMDAttribute) {
			return c.dispatchCreate(ctx, rec, res)
		}
		return c.dispatchUpdate(ctx, rec, res)

	case MethodDelete:
		err := c.remote.Delete(ctx, rec.Collection, rec.EntityID)
		if err != nil && !IsNotFound(err) {
			return c.classifyFailure(ctx, rec, res, err)
		}
		// A 404 means the remote is already where the delete wanted it.
		res.State = StateAcknowledged
		return res, false

	default:
		res.State = StateAbandoned
		res.Err = &SyncError{Reason: fmt.Sprintf("unrecognized method %q", rec.Method)}
		return res, false
	}
}

// dispatchCreate POSTs an offline-created entity and swaps the local row
// from the device id to the server-assigned id.
func (c *Client) dispatchCreate(ctx context.Context, rec SyncRecord, res Result) (Result, bool) {
	created, err := c.remote.Create(ctx, rec.Collection,
		StripForCreate(rec.Entity, c.config.IDAttribute, c.config.KMDAttribute))
	if err != nil {
		return c.classifyFailure(ctx, rec, res, err)
	}
	res.State = StateAcknowledged
	if created == nil {
		return res, false
	}
	res.Entity = created
	if err := c.mirrorCreated(ctx, rec, created); err != nil {
		// The remote accepted the create; retrying would duplicate it.
		// Report the local failure without reinstating.
		c.logger.Warn("failed to mirror created entity locally",
			"collection", rec.Collection, "entity", rec.EntityID, "err", err)
		res.Err = err
	}
	return res, false
}

// dispatchUpdate PUTs a server-known entity and mirrors the returned form.
func (c *Client) dispatchUpdate(ctx context.Context, rec SyncRecord, res Result) (Result, bool) {
	updated, err := c.remote.Update(ctx, rec.Collection, rec.EntityID, rec.Entity)
	if err != nil {
		return c.classifyFailure(ctx, rec, res, err)
	}
	res.State = StateAcknowledged
	if updated == nil {
		return res, false
	}
	res.Entity = updated
	store, err := c.collectionStore(rec.Collection)
	if err == nil {
		_, err = store.Save(ctx, updated)
	}
	if err != nil {
		c.logger.Warn("failed to mirror updated entity locally",
			"collection", rec.Collection, "entity", rec.EntityID, "err", err)
		res.Err = err
	}
	return res, false
}

// mirrorCreated writes the remote's row under its new id and drops the row
// under the device-generated id.
func (c *Client) mirrorCreated(ctx context.Context, rec SyncRecord, created Entity) error {
	store, err := c.collectionStore(rec.Collection)
	if err != nil {
		return err
	}
	if _, err := store.Save(ctx, created); err != nil {
		return err
	}
	return store.RemoveByID(ctx, rec.EntityID)
}

// classifyFailure decides the terminal state of a failed dispatch. An
// authorization failure triggers repair and drops the record: the user
// cannot make progress by retrying. Everything else is reinstated.
func (c *Client) classifyFailure(ctx context.Context, rec SyncRecord, res Result, err error) (Result, bool) {
	res.Err = err
	if IsInsufficientCredentials(err) {
		c.repair(ctx, rec)
		res.State = StateRepaired
		return res, false
	}
	res.State = StateReinstated
	return res, true
}

// repair restores the local row to the remote's currently-observed state
// after an authorization error. For an offline-created entity there is
// nothing on the server to consult, so repair is skipped. Repair failures
// never surface to the caller.
func (c *Client) repair(ctx context.Context, rec SyncRecord) {
	if IsLocalEntity(rec.Entity, c.config.KMDAttribute) {
		return
	}
	stageStart := time.Now()
	current, err := c.remote.Get(ctx, rec.Collection, rec.EntityID)
	if err != nil {
		c.observeStage(ctx, MetricsStageRepair, stageStart, 1, true)
		c.logger.Warn("repair read failed",
			"collection", rec.Collection, "entity", rec.EntityID, "err", err)
		return
	}
	if current == nil {
		c.observeStage(ctx, MetricsStageRepair, stageStart, 1, false)
		return
	}
	store, err := c.collectionStore(rec.Collection)
	if err == nil {
		_, err = store.Save(ctx, current)
	}
	c.observeStage(ctx, MetricsStageRepair, stageStart, 1, err != nil)
	if err != nil {
		c.logger.Warn("repair write failed",
			"collection", rec.Collection, "entity", rec.EntityID, "err", err)
	}
}
