// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package kinstore

import (
	"os"
	"sync"
)

const (
	idAttributeDefault = "_id"
	idAttributeEnvVar  = "KINVEY_ID_ATTRIBUTE"
)

var defaultIDAttribute = sync.OnceValue(func() string {
	if v := os.Getenv(idAttributeEnvVar); v != "" {
		return v
	}
	return idAttributeDefault
})

// DefaultIDAttribute returns the document identifier attribute name,
// "_id" unless overridden via KINVEY_ID_ATTRIBUTE. Read once per process.
func DefaultIDAttribute() string {
	return defaultIDAttribute()
}
