// Package storage owns the local analytical mirror: a single SQLite file
// holding the star schema (dim_*/fact_*/bridge_* tables), the calendar
// dimensions, and the FTS5 indexes kept in lock-step with their base
// tables by triggers.
//
// The database runs in WAL mode so readers proceed concurrently while a
// single writer connection, serialized behind a mutex, applies sync
// batches. All write paths go through WriteTx so trigger side-effects on
// the FTS tables commit atomically with the base rows.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB wraps the SQLite database with a dedicated writer connection and a
// small pool of reader connections.
type DB struct {
	writer *sql.DB
	reader *sql.DB
	path   string

	// wmu serializes write transactions. The writer pool is capped at one
	// connection, but the mutex keeps a whole batch transaction together
	// so progress callbacks never observe a half-applied batch.
	wmu sync.Mutex
}

// DefaultPath returns the default database location, ~/.asanadw/asanadw.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".asanadw", "asanadw.db"), nil
}

// Open creates or opens the database at path, runs pending migrations, and
// populates the calendar dimensions. The caller MUST call Close when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	writer, err := openConn(path)
	if err != nil {
		return nil, err
	}
	writer.SetMaxOpenConns(1)

	reader, err := openConn(path)
	if err != nil {
		_ = writer.Close()
		return nil, err
	}
	readers := runtime.NumCPU()
	if readers < 2 {
		readers = 2
	}
	reader.SetMaxOpenConns(readers)
	reader.SetMaxIdleConns(readers)

	db := &DB{writer: writer, reader: reader, path: path}

	if err := db.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.ensureDimensions(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// OpenMemory opens a shared in-memory database (for testing). Writer and
// reader share the same connection since in-memory databases are
// per-connection.
func OpenMemory() (*DB, error) {
	conn, err := openConn(":memory:?cache=shared")
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)

	db := &DB{writer: conn, reader: conn, path: ":memory:"}
	if err := db.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.ensureDimensions(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func openConn(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Every connection: WAL for concurrent reads, FK enforcement for the
	// cascade contract, 5s busy timeout for writer/reader contention.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", p, err)
		}
	}
	return conn, nil
}

// Close checkpoints the WAL and closes both connection pools.
func (db *DB) Close() error {
	if db.writer == nil {
		return nil
	}
	if _, err := db.writer.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	var firstErr error
	if db.reader != db.writer {
		firstErr = db.reader.Close()
	}
	if err := db.writer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	db.writer = nil
	db.reader = nil
	if firstErr != nil {
		return fmt.Errorf("failed to close database: %w", firstErr)
	}
	return nil
}

// Reader returns the reader pool for ad-hoc queries.
func (db *DB) Reader() *sql.DB {
	return db.reader
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// WriteTx runs fn inside a write transaction on the writer connection.
// The writer mutex is held for the duration, so at most one transaction
// is in flight. On error the transaction rolls back.
func (db *DB) WriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	db.wmu.Lock()
	defer db.wmu.Unlock()

	tx, err := db.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
