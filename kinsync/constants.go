// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package kinsync

// Method constants for sync record operations
const (
	MethodCreateOrUpdate = "CREATE_OR_UPDATE"
	MethodDelete         = "DELETE"
)

// Terminal state constants for push results
const (
	StateAcknowledged = "acknowledged"
	StateRepaired     = "repaired"
	StateReinstated   = "reinstated"
	StateAbandoned    = "abandoned"
)

// Defaults for configuration knobs
const (
	DefaultNamespace    = "appdata"
	DefaultSyncTable    = "kinvey_sync"
	DefaultIDAttribute  = "_id"
	DefaultKMDAttribute = "_kmd"
	DefaultBatchSize    = 100
)

// Environment variable overrides
const (
	EnvNamespace    = "KINVEY_DATASTORE_NAMESPACE"
	EnvSyncTable    = "KINVEY_SYNC_COLLECTION_NAME"
	EnvIDAttribute  = "KINVEY_ID_ATTRIBUTE"
	EnvKMDAttribute = "KINVEY_KMD_ATTRIBUTE"
)

// Reserved client-scoped tables
const (
	// metaTable holds the sync key counter and the persisted client id.
	// The prefix keeps it out of ClearAll's reach.
	metaTable = "_kinsync_meta"

	metaSyncKeyID  = "syncKey"
	metaClientIDID = "clientId"
)
