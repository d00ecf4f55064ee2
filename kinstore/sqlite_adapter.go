// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package kinstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// sqlAdapter stores each table as (id TEXT PRIMARY KEY, doc TEXT) in a
// per-database sqlite file. Tables are created lazily on first write.
type sqlAdapter struct {
	db       *sql.DB
	database string
}

func sqlDatabasePath(database string, opts Options) string {
	return filepath.Join(opts.dir(), database+".db")
}

func sqlAdapterAvailable(database string, opts Options) bool {
	if err := ensureDir(opts.dir()); err != nil {
		return false
	}
	db, err := sql.Open("sqlite3", sqlDatabasePath(database, opts))
	if err != nil {
		return false
	}
	defer db.Close()
	return db.Ping() == nil
}

func openSQLAdapter(database string, opts Options) (Adapter, error) {
	if err := ensureDir(opts.dir()); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	db, err := sql.Open("sqlite3", sqlDatabasePath(database, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", database, err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	return &sqlAdapter{db: db, database: database}, nil
}

func (a *sqlAdapter) Kind() AdapterKind { return AdapterSQL }

// quoteTable wraps a validated table name for use in DDL/DML. Names are
// restricted to [A-Za-z0-9_-] so double quoting is sufficient.
func quoteTable(table string) string {
	return `"` + table + `"`
}

func (a *sqlAdapter) tableExists(ctx context.Context, table string) (bool, error) {
	var name string
	err := a.db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (a *sqlAdapter) ensureTable(ctx context.Context, tx *sql.Tx, table string) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, doc TEXT NOT NULL)`, quoteTable(table)))
	return err
}

func (a *sqlAdapter) Find(ctx context.Context, table string) ([]Document, error) {
	exists, err := a.tableExists(ctx, table)
	if err != nil {
		return nil, storageErr("find", table, err)
	}
	if !exists {
		return nil, nil
	}
	rows, err := a.db.QueryContext(ctx, fmt.Sprintf(`SELECT doc FROM %s`, quoteTable(table)))
	if err != nil {
		return nil, storageErr("find", table, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, storageErr("find", table, err)
		}
		var doc Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, storageErr("find", table, fmt.Errorf("corrupt document: %w", err))
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("find", table, err)
	}
	return docs, nil
}

func (a *sqlAdapter) FindByID(ctx context.Context, table, id string) (Document, error) {
	exists, err := a.tableExists(ctx, table)
	if err != nil {
		return nil, storageErr("findById", table, err)
	}
	if !exists {
		return nil, nil
	}
	var raw string
	err = a.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT doc FROM %s WHERE id = ?`, quoteTable(table)), id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("findById", table, err)
	}
	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, storageErr("findById", table, fmt.Errorf("corrupt document: %w", err))
	}
	return doc, nil
}

func (a *sqlAdapter) Save(ctx context.Context, table string, docs []Document) ([]Document, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("save", table, err)
	}
	defer tx.Rollback()

	if err := a.ensureTable(ctx, tx, table); err != nil {
		return nil, storageErr("save", table, err)
	}
	for _, doc := range docs {
		id := doc.ID(DefaultIDAttribute())
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, storageErr("save", table, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			`INSERT INTO %s (id, doc) VALUES (?, ?)
			 ON CONFLICT(id) DO UPDATE SET doc = excluded.doc`, quoteTable(table)),
			id, string(raw)); err != nil {
			return nil, storageErr("save", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr("save", table, err)
	}
	return docs, nil
}

func (a *sqlAdapter) RemoveByID(ctx context.Context, table, id string) error {
	exists, err := a.tableExists(ctx, table)
	if err != nil {
		return storageErr("removeById", table, err)
	}
	if !exists {
		return nil
	}
	_, err = a.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, quoteTable(table)), id)
	return storageErr("removeById", table, err)
}

func (a *sqlAdapter) Clear(ctx context.Context, table string) error {
	_, err := a.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, quoteTable(table)))
	return storageErr("clear", table, err)
}

func (a *sqlAdapter) ClearAll(ctx context.Context) error {
	rows, err := a.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return storageErr("clearAll", "", err)
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return storageErr("clearAll", "", err)
		}
		if !IsSystemTable(name) {
			tables = append(tables, name)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return storageErr("clearAll", "", err)
	}

	for _, table := range tables {
		if err := a.Clear(ctx, table); err != nil {
			return err
		}
	}
	return nil
}

func (a *sqlAdapter) Close() error { return a.db.Close() }
