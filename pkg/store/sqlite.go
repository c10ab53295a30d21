// Package store persists weight maps in SQLite so they can be generated once
// and applied to many stacks.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection with thread-safe access.
type DB struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// Open creates or opens the database at path and migrates its schema.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// migrate creates the necessary tables if they don't exist.
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS weight_maps (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		experiment TEXT NOT NULL,
		box_index INTEGER NOT NULL,
		x0 REAL NOT NULL, y0 REAL NOT NULL,
		x1 REAL NOT NULL, y1 REAL NOT NULL,
		x2 REAL NOT NULL, y2 REAL NOT NULL,
		x3 REAL NOT NULL, y3 REAL NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		kernel TEXT NOT NULL,
		axis_length REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (experiment, box_index)
	);

	CREATE TABLE IF NOT EXISTS lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		map_id INTEGER NOT NULL,
		line_index INTEGER NOT NULL,
		start_x REAL NOT NULL, start_y REAL NOT NULL,
		end_x REAL NOT NULL, end_y REAL NOT NULL,
		length REAL NOT NULL,
		FOREIGN KEY (map_id) REFERENCES weight_maps(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS pixel_weights (
		line_id INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		weight REAL NOT NULL,
		PRIMARY KEY (line_id, seq),
		FOREIGN KEY (line_id) REFERENCES lines(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_weight_maps_experiment ON weight_maps(experiment);
	CREATE INDEX IF NOT EXISTS idx_lines_map_id ON lines(map_id);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection for use by repositories.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Lock acquires a write lock.
func (db *DB) Lock() {
	db.mu.Lock()
}

// Unlock releases the write lock.
func (db *DB) Unlock() {
	db.mu.Unlock()
}

// RLock acquires a read lock.
func (db *DB) RLock() {
	db.mu.RLock()
}

// RUnlock releases the read lock.
func (db *DB) RUnlock() {
	db.mu.RUnlock()
}
