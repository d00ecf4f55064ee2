// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package kinstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-memdb"
)

// memEntry is one stored document. A single memdb table holds every
// collection; the composite (Table, ID) index is the primary key and the
// Table index serves full-table scans and drops.
type memEntry struct {
	Table string
	ID    string
	Doc   []byte
}

const memTableDocuments = "documents"

var memSchema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		memTableDocuments: {
			Name: memTableDocuments,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:   "id",
					Unique: true,
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "Table"},
							&memdb.StringFieldIndex{Field: "ID"},
						},
					},
				},
				"table": {
					Name:    "table",
					Unique:  false,
					Indexer: &memdb.StringFieldIndex{Field: "Table"},
				},
			},
		},
	},
}

// memAdapter is the in-memory structured object store. It is volatile: its
// contents live only as long as the adapter. It sits first in
// DefaultAdapterPreference and its availability probe never fails.
type memAdapter struct {
	db       *memdb.MemDB
	database string
}

func memAdapterAvailable(string, Options) bool { return true }

func openMemAdapter(database string, _ Options) (Adapter, error) {
	db, err := memdb.NewMemDB(memSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to create memdb: %w", err)
	}
	return &memAdapter{db: db, database: database}, nil
}

func (a *memAdapter) Kind() AdapterKind { return AdapterIndexed }

func (a *memAdapter) Find(ctx context.Context, table string) ([]Document, error) {
	txn := a.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(memTableDocuments, "table", table)
	if err != nil {
		return nil, storageErr("find", table, err)
	}
	var docs []Document
	for raw := it.Next(); raw != nil; raw = it.Next() {
		entry := raw.(*memEntry)
		var doc Document
		if err := json.Unmarshal(entry.Doc, &doc); err != nil {
			return nil, storageErr("find", table, fmt.Errorf("corrupt document: %w", err))
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (a *memAdapter) FindByID(ctx context.Context, table, id string) (Document, error) {
	txn := a.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(memTableDocuments, "id", table, id)
	if err != nil {
		return nil, storageErr("findById", table, err)
	}
	if raw == nil {
		return nil, nil
	}
	var doc Document
	if err := json.Unmarshal(raw.(*memEntry).Doc, &doc); err != nil {
		return nil, storageErr("findById", table, fmt.Errorf("corrupt document: %w", err))
	}
	return doc, nil
}

func (a *memAdapter) Save(ctx context.Context, table string, docs []Document) ([]Document, error) {
	txn := a.db.Txn(true)
	for _, doc := range docs {
		raw, err := json.Marshal(doc)
		if err != nil {
			txn.Abort()
			return nil, storageErr("save", table, err)
		}
		entry := &memEntry{Table: table, ID: doc.ID(DefaultIDAttribute()), Doc: raw}
		if err := txn.Insert(memTableDocuments, entry); err != nil {
			txn.Abort()
			return nil, storageErr("save", table, err)
		}
	}
	txn.Commit()
	return docs, nil
}

func (a *memAdapter) RemoveByID(ctx context.Context, table, id string) error {
	txn := a.db.Txn(true)
	raw, err := txn.First(memTableDocuments, "id", table, id)
	if err != nil {
		txn.Abort()
		return storageErr("removeById", table, err)
	}
	if raw == nil {
		txn.Abort()
		return nil
	}
	if err := txn.Delete(memTableDocuments, raw); err != nil {
		txn.Abort()
		return storageErr("removeById", table, err)
	}
	txn.Commit()
	return nil
}

func (a *memAdapter) Clear(ctx context.Context, table string) error {
	txn := a.db.Txn(true)
	if _, err := txn.DeleteAll(memTableDocuments, "table", table); err != nil {
		txn.Abort()
		return storageErr("clear", table, err)
	}
	txn.Commit()
	return nil
}

func (a *memAdapter) ClearAll(ctx context.Context) error {
	txn := a.db.Txn(true)
	it, err := txn.Get(memTableDocuments, "id")
	if err != nil {
		txn.Abort()
		return storageErr("clearAll", "", err)
	}
	var doomed []*memEntry
	for raw := it.Next(); raw != nil; raw = it.Next() {
		entry := raw.(*memEntry)
		if !IsSystemTable(entry.Table) {
			doomed = append(doomed, entry)
		}
	}
	for _, entry := range doomed {
		if err := txn.Delete(memTableDocuments, entry); err != nil {
			txn.Abort()
			return storageErr("clearAll", entry.Table, err)
		}
	}
	txn.Commit()
	return nil
}

func (a *memAdapter) Close() error { return nil }
