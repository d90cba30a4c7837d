// Package sqlite implements the journal (origin.Store) on SQLite.
//
// WHY SQLITE?
// The journal is a local, single-user document store. An embedded database
// gives us transactions and JSON queries without running a server, and
// ":memory:" makes tests fast.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite, so the binary builds without cgo.
//
// STORAGE LAYOUT:
// Each document is one row. Metadata is a free-form string map, stored as a
// JSON object and queried with the JSON1 functions (json_extract). Binary
// payloads live as files under the data directory, named after the document
// id, and are accessed through an afero.Fs so tests can use memory.
package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/spf13/afero"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB is the SQLite backed journal.
type DB struct {
	conn    *sql.DB
	fs      afero.Fs
	dataDir string
}

// New opens the database at dbPath, runs migrations, and stores payload
// files under dataDir on fs.
//
// dbPath examples:
//   - "data/journal.db" → file-based database (persistent)
//   - ":memory:"        → in-memory database (tests)
func New(dbPath string, fs afero.Fs, dataDir string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// An in-memory database exists per connection. Keep exactly one so every
	// query sees the same tables.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets the HTTP API read while the session writes.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if err := fs.MkdirAll(dataDir, 0o755); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: creating data dir: %w", err)
	}

	db := &DB{conn: conn, fs: fs, dataDir: dataDir}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates or upgrades the schema. Every step is idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			id         TEXT PRIMARY KEY,
			metadata   TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}

	// Payload files came after the first schema.
	if err := db.addColumnIfNotExists("documents", "file_path",
		"TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding file_path to documents: %w", err)
	}

	// Favorited lookups run on every rescan.
	_, err = db.conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_documents_keep
		ON documents(json_extract(metadata, '$.keep'));
	`)
	if err != nil {
		return fmt.Errorf("creating documents keep index: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}
