// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package kinsync

import "github.com/mobiletoly/go-kinsync/kinstore"

// Entity is a JSON-shaped document with an identifier attribute and an
// optional metadata envelope.
type Entity = kinstore.Document

// IsLocalEntity reports whether the entity was created offline: its id was
// generated on the device and the remote has never acknowledged it. The
// marker is a `local` flag set to boolean true inside the metadata
// envelope; any other value, including non-boolean truthy ones, is not local.
func IsLocalEntity(entity Entity, kmdAttr string) bool {
	kmd, ok := entity[kmdAttr].(map[string]any)
	if !ok {
		return false
	}
	local, ok := kmd["local"].(bool)
	return ok && local
}

// MarkLocal stamps the entity's metadata envelope with the local flag that
// IsLocalEntity reads. kinstore.Store assigns device-generated ids without
// setting this flag; callers stamp it themselves.
func MarkLocal(entity Entity, kmdAttr string) {
	kmd, ok := entity[kmdAttr].(map[string]any)
	if !ok {
		kmd = map[string]any{}
		entity[kmdAttr] = kmd
	}
	kmd["local"] = true
}

// StripForCreate returns a copy of the entity ready for a remote POST: the
// device-generated id and the local marker are removed so the remote
// assigns its own id. An emptied metadata envelope is dropped entirely.
func StripForCreate(entity Entity, idAttr, kmdAttr string) Entity {
	out := cloneEntity(entity)
	delete(out, idAttr)
	if kmd, ok := out[kmdAttr].(map[string]any); ok {
		delete(kmd, "local")
		if len(kmd) == 0 {
			delete(out, kmdAttr)
		}
	}
	return out
}

// cloneEntity copies the top level and one level of every map-valued
// attribute, the metadata envelope included. Values nested deeper are
// shared; the push engine never mutates them.
func cloneEntity(entity Entity) Entity {
	out := make(Entity, len(entity))
	for k, v := range entity {
		if kmd, ok := v.(map[string]any); ok {
			copied := make(map[string]any, len(kmd))
			for kk, vv := range kmd {
				copied[kk] = vv
			}
			out[k] = copied
			continue
		}
		out[k] = v
	}
	return out
}
