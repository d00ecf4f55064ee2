// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package kinsync

import (
	"context"
	"time"
)

const (
	MetricsOpPush = "push"

	MetricsStageTotal = "total"

	MetricsStageDrain     = "drain"
	MetricsStageCoalesce  = "coalesce"
	MetricsStageDispatch  = "dispatch"
	MetricsStageRepair    = "repair"
	MetricsStageReinstate = "reinstate"
)

type StageTiming struct {
	Operation string
	Stage     string
	Duration  time.Duration
	Count     int
	Error     bool
}

type StageMetricsRecorder interface {
	ObserveStage(ctx context.Context, timing StageTiming)
}

type StageMetricsRecorderFunc func(ctx context.Context, timing StageTiming)

func (f StageMetricsRecorderFunc) ObserveStage(ctx context.Context, timing StageTiming) {
	f(ctx, timing)
}

// observeStage reports one timed stage to the configured recorder, if any.
func (c *Client) observeStage(ctx context.Context, stage string, start time.Time, count int, failed bool) {
	if c.metrics == nil {
		return
	}
	c.metrics.ObserveStage(ctx, StageTiming{
		Operation: MetricsOpPush,
		Stage:     stage,
		Duration:  time.Since(start),
		Count:     count,
		Error:     failed,
	})
}
