// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package kinstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// dictAdapter is the string-value dictionary backend: one JSON file per
// table under <dir>/<database>/, each holding a map of id to serialized
// document. Save rewrites the whole file through a temp-and-rename so a
// multi-doc save is all-or-nothing. A mutex serializes the file
// read-modify-writes; atomicity of a single call is this adapter's
// responsibility.
type dictAdapter struct {
	fs       afero.Fs
	dir      string
	database string
	mu       sync.Mutex
}

func dictAdapterAvailable(database string, opts Options) bool {
	fs := opts.fs()
	dir := filepath.Join(opts.dir(), database)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return false
	}
	probe := filepath.Join(dir, ".probe")
	if err := afero.WriteFile(fs, probe, []byte("ok"), 0o644); err != nil {
		return false
	}
	_ = fs.Remove(probe)
	return true
}

func openDictAdapter(database string, opts Options) (Adapter, error) {
	fs := opts.fs()
	dir := filepath.Join(opts.dir(), database)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database dir %s: %w", dir, err)
	}
	return &dictAdapter{fs: fs, dir: dir, database: database}, nil
}

func (a *dictAdapter) Kind() AdapterKind { return AdapterStringDict }

func (a *dictAdapter) tablePath(table string) string {
	return filepath.Join(a.dir, table+".json")
}

// readTable loads a table file; a missing file is an empty table.
func (a *dictAdapter) readTable(table string) (map[string]json.RawMessage, error) {
	raw, err := afero.ReadFile(a.fs, a.tablePath(table))
	if os.IsNotExist(err) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	values := map[string]json.RawMessage{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, fmt.Errorf("corrupt table file: %w", err)
		}
	}
	return values, nil
}

// writeTable persists a table file atomically via temp-and-rename.
func (a *dictAdapter) writeTable(table string, values map[string]json.RawMessage) error {
	raw, err := json.Marshal(values)
	if err != nil {
		return err
	}
	tmp := a.tablePath(table) + ".tmp"
	if err := afero.WriteFile(a.fs, tmp, raw, 0o644); err != nil {
		return err
	}
	return a.fs.Rename(tmp, a.tablePath(table))
}

func (a *dictAdapter) Find(ctx context.Context, table string) ([]Document, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	values, err := a.readTable(table)
	if err != nil {
		return nil, storageErr("find", table, err)
	}
	var docs []Document
	for _, raw := range values {
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, storageErr("find", table, fmt.Errorf("corrupt document: %w", err))
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (a *dictAdapter) FindByID(ctx context.Context, table, id string) (Document, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	values, err := a.readTable(table)
	if err != nil {
		return nil, storageErr("findById", table, err)
	}
	raw, ok := values[id]
	if !ok {
		return nil, nil
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, storageErr("findById", table, fmt.Errorf("corrupt document: %w", err))
	}
	return doc, nil
}

func (a *dictAdapter) Save(ctx context.Context, table string, docs []Document) ([]Document, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	values, err := a.readTable(table)
	if err != nil {
		return nil, storageErr("save", table, err)
	}
	for _, doc := range docs {
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, storageErr("save", table, err)
		}
		values[doc.ID(DefaultIDAttribute())] = raw
	}
	if err := a.writeTable(table, values); err != nil {
		return nil, storageErr("save", table, err)
	}
	return docs, nil
}

func (a *dictAdapter) RemoveByID(ctx context.Context, table, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	values, err := a.readTable(table)
	if err != nil {
		return storageErr("removeById", table, err)
	}
	if _, ok := values[id]; !ok {
		return nil
	}
	delete(values, id)
	return storageErr("removeById", table, a.writeTable(table, values))
}

func (a *dictAdapter) Clear(ctx context.Context, table string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.fs.Remove(a.tablePath(table))
	if err != nil && !os.IsNotExist(err) {
		return storageErr("clear", table, err)
	}
	return nil
}

func (a *dictAdapter) ClearAll(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries, err := afero.ReadDir(a.fs, a.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return storageErr("clearAll", "", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		table := strings.TrimSuffix(entry.Name(), ".json")
		if IsSystemTable(table) {
			continue
		}
		if err := a.fs.Remove(a.tablePath(table)); err != nil && !os.IsNotExist(err) {
			return storageErr("clearAll", table, err)
		}
	}
	return nil
}

func (a *dictAdapter) Close() error { return nil }
