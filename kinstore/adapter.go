// Package kinstore provides the pluggable local-storage layer: a uniform
// key/value adapter surface per (database, table) with three backends
// selected by capability probe, and a typed collection store with
// client-side query evaluation on top of it.
// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package kinstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/afero"
)

// Document is a JSON-shaped value persisted by an adapter. The key is the
// document's identifier attribute (default "_id").
type Document map[string]any

// ID returns the document's identifier under the given attribute name, or
// empty string when the attribute is missing or not a string.
func (d Document) ID(idAttr string) string {
	id, _ := d[idAttr].(string)
	return id
}

// AdapterKind identifies a storage backend variant.
type AdapterKind string

const (
	// AdapterIndexed is the in-memory structured object store (go-memdb).
	AdapterIndexed AdapterKind = "Indexed"
	// AdapterSQL is the SQL-over-local-files store (sqlite).
	AdapterSQL AdapterKind = "SQL-local"
	// AdapterStringDict is the string-value dictionary store (one JSON file per table).
	AdapterStringDict AdapterKind = "String-dict"
)

// DefaultAdapterPreference is the ordered probe list used when the caller
// does not override it.
var DefaultAdapterPreference = []AdapterKind{AdapterIndexed, AdapterSQL, AdapterStringDict}

// systemTablePrefix marks tables that ClearAll must never drop (client
// metadata, counters).
const systemTablePrefix = "_kinsync_"

// IsSystemTable reports whether a table is reserved for client metadata.
func IsSystemTable(table string) bool {
	return strings.HasPrefix(table, systemTablePrefix)
}

// Adapter is the uniform key/value surface bound to one logical database.
// All six operations share the same semantics across backends:
//
//   - Save upserts by the document id and is all-or-nothing per call.
//   - Tables are created lazily on first write; reads against a missing
//     table return empty, never fail.
//   - Values are opaque JSON, serialized by the adapter.
type Adapter interface {
	// Kind identifies the backend variant this adapter was bound to.
	Kind() AdapterKind

	// Find returns every document in the table, in undefined order.
	Find(ctx context.Context, table string) ([]Document, error)

	// FindByID returns the document under id, or (nil, nil) when absent.
	FindByID(ctx context.Context, table, id string) (Document, error)

	// Save upserts docs by id. Partial failure of a multi-doc save is
	// rolled back; either every doc is persisted or none is.
	Save(ctx context.Context, table string, docs []Document) ([]Document, error)

	// RemoveByID deletes the document under id. Removing an absent id is
	// not an error.
	RemoveByID(ctx context.Context, table, id string) error

	// Clear drops the table.
	Clear(ctx context.Context, table string) error

	// ClearAll drops every user table. System tables survive.
	ClearAll(ctx context.Context) error

	Close() error
}

// Options configures database opening and backend selection.
type Options struct {
	// Preference is the ordered backend probe list. Defaults to
	// DefaultAdapterPreference.
	Preference []AdapterKind

	// Dir is the directory holding file-backed databases (sqlite files,
	// string-dict table files). Defaults to the working directory.
	Dir string

	// Fs is the filesystem used by the string-dict backend. Defaults to
	// the OS filesystem; tests inject afero.NewMemMapFs().
	Fs afero.Fs

	Logger *slog.Logger
}

func (o Options) preference() []AdapterKind {
	if len(o.Preference) > 0 {
		return o.Preference
	}
	return DefaultAdapterPreference
}

func (o Options) dir() string {
	if o.Dir != "" {
		return o.Dir
	}
	return "."
}

func (o Options) fs() afero.Fs {
	if o.Fs != nil {
		return o.Fs
	}
	return afero.NewOsFs()
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// adapterFactory is one entry of the probe list. No inheritance; a flat set
// of variants implementing the Adapter contract.
type adapterFactory struct {
	kind      AdapterKind
	available func(database string, opts Options) bool
	open      func(database string, opts Options) (Adapter, error)
}

var adapterFactories = map[AdapterKind]adapterFactory{
	AdapterIndexed: {
		kind:      AdapterIndexed,
		available: memAdapterAvailable,
		open:      openMemAdapter,
	},
	AdapterSQL: {
		kind:      AdapterSQL,
		available: sqlAdapterAvailable,
		open:      openSQLAdapter,
	},
	AdapterStringDict: {
		kind:      AdapterStringDict,
		available: dictAdapterAvailable,
		open:      openDictAdapter,
	},
}

var (
	nameRe  = regexp.MustCompile(`^[A-Za-z0-9-]{1,128}$`)
	tableRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)
)

// ValidName reports whether s is a legal user-facing database/collection
// name.
func ValidName(s string) bool {
	return nameRe.MatchString(s)
}

// validTableName additionally admits underscores, which reserved tables
// (the sync journal, client metadata) use.
func validTableName(s string) bool {
	return tableRe.MatchString(s)
}

// OpenDatabase binds the first available backend from the preference list to
// the named database. No backend available is fatal.
func OpenDatabase(database string, opts Options) (Adapter, error) {
	if !ValidName(database) {
		return nil, &ConfigError{Reason: fmt.Sprintf("invalid database name %q", database)}
	}
	for _, kind := range opts.preference() {
		factory, ok := adapterFactories[kind]
		if !ok {
			return nil, &ConfigError{Reason: fmt.Sprintf("unknown storage adapter %q", kind)}
		}
		if !factory.available(database, opts) {
			opts.logger().Debug("storage adapter unavailable, trying next",
				"adapter", kind, "database", database)
			continue
		}
		adapter, err := factory.open(database, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s adapter: %w", kind, err)
		}
		opts.logger().Debug("storage adapter bound", "adapter", kind, "database", database)
		return adapter, nil
	}
	return nil, &ConfigError{Reason: "no supported storage adapter"}
}

// ensureDir creates the database directory for file-backed adapters.
func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
