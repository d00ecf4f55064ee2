// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package kinsync

import (
	"errors"
	"fmt"
)

// SyncError reports a journal-level problem: an enqueued entity without an
// id, a missing collection name, or an unrecognized method at push time.
type SyncError struct {
	Reason string
}

func (e *SyncError) Error() string {
	return "kinsync: " + e.Reason
}

// NotFoundError is a remote 404. On DELETE it is treated as success; on a
// repair GET it is swallowed.
type NotFoundError struct {
	Collection string
	EntityID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("kinsync: %s/%s not found on remote", e.Collection, e.EntityID)
}

// InsufficientCredentialsError is a remote 401/403. The record is dropped
// from the journal and local state is repaired from the remote where
// possible.
type InsufficientCredentialsError struct {
	Collection string
	EntityID   string
	StatusCode int
}

func (e *InsufficientCredentialsError) Error() string {
	return fmt.Sprintf("kinsync: insufficient credentials for %s/%s (status %d)",
		e.Collection, e.EntityID, e.StatusCode)
}

// NetworkError covers transport failures, timeouts, and any remote status
// that is neither success, 404, nor 401/403. The record is reinstated.
type NetworkError struct {
	StatusCode int // 0 when the request never produced a response
	Err        error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("kinsync: network error: %v", e.Err)
	}
	return fmt.Sprintf("kinsync: remote returned status %d", e.StatusCode)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a remote 404.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsInsufficientCredentials reports whether err is a remote 401/403.
func IsInsufficientCredentials(err error) bool {
	var ic *InsufficientCredentialsError
	return errors.As(err, &ic)
}
