// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package kinsync

import (
	"log/slog"
	"os"
	"time"

	"github.com/mobiletoly/go-kinsync/kinstore"
)

// Config holds configuration for the sync client
type Config struct {
	// Namespace is the remote datastore namespace path segment.
	Namespace string

	// SyncTable is the reserved journal table name.
	SyncTable string

	// IDAttribute and KMDAttribute name the entity identifier and
	// metadata envelope fields.
	IDAttribute  string
	KMDAttribute string

	// BatchSize bounds how many records one push batch dispatches
	// concurrently. Batches are processed sequentially.
	BatchSize int

	// RequestTimeout applies per remote request. Zero leaves the HTTP
	// client's own timeout in charge.
	RequestTimeout time.Duration

	// AdapterPreference is the ordered storage backend probe list.
	AdapterPreference []kinstore.AdapterKind

	Logger *slog.Logger

	// Metrics receives per-stage timings of push runs. Nil disables.
	Metrics StageMetricsRecorder
}

// DefaultConfig returns a configuration with the documented defaults,
// honoring the KINVEY_* environment overrides.
func DefaultConfig() *Config {
	return &Config{
		Namespace:         envOr(EnvNamespace, DefaultNamespace),
		SyncTable:         envOr(EnvSyncTable, DefaultSyncTable),
		IDAttribute:       envOr(EnvIDAttribute, DefaultIDAttribute),
		KMDAttribute:      envOr(EnvKMDAttribute, DefaultKMDAttribute),
		BatchSize:         DefaultBatchSize,
		AdapterPreference: kinstore.DefaultAdapterPreference,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Config) batchSize() int {
	if c.BatchSize > 0 {
		return c.BatchSize
	}
	return DefaultBatchSize
}
