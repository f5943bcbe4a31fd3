package sqlite

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

// New creates and initializes a new SQLite database connection.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
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
	CREATE TABLE IF NOT EXISTS operations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uid TEXT NOT NULL DEFAULT '',
		timestamp DATETIME NOT NULL,
		images_count INTEGER NOT NULL DEFAULT 0,
		overall_match REAL NOT NULL DEFAULT 0,
		kit_name TEXT NOT NULL DEFAULT '',
		recognition_threshold REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		operation_id INTEGER NOT NULL,
		url TEXT NOT NULL,
		file_name TEXT NOT NULL,
		detection_time_ms INTEGER NOT NULL DEFAULT 0,
		image_confidence REAL NOT NULL DEFAULT 0,
		raw_results_json TEXT NOT NULL DEFAULT '[]',
		FOREIGN KEY (operation_id) REFERENCES operations(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS detections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		image_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 0,
		color TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (image_id) REFERENCES images(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_operations_timestamp ON operations(timestamp);
	CREATE INDEX IF NOT EXISTS idx_images_operation_id ON images(operation_id);
	CREATE INDEX IF NOT EXISTS idx_detections_image_id ON detections(image_id);
	CREATE INDEX IF NOT EXISTS idx_detections_name ON detections(name);
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
