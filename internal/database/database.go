package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaFS embed.FS

// Store is a string-keyed document store. Values are opaque bytes, usually JSON.
type Store interface {
	// Load returns the value for key and whether it exists
	Load(ctx context.Context, key string) ([]byte, bool, error)
	// Save creates or overwrites the value for key
	Save(ctx context.Context, key string, value []byte) error
	// Remove deletes key; removing an absent key is not an error
	Remove(ctx context.Context, key string) error
	Close() error
}

// SQLiteDB implements Store on a single SQLite file
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens (creating if needed) the SQLite database at dbPath
func NewSQLiteDB(dbPath string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// One writer keeps read-modify-write sequences from the caller ordered.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("error enabling WAL mode: %w", err)
	}

	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing schema: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

func initializeSchema(db *sql.DB) error {
	schemaBytes, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("error reading schema file: %w", err)
	}

	if _, err := db.Exec(string(schemaBytes)); err != nil {
		return fmt.Errorf("error executing schema: %w", err)
	}

	slog.Debug("Database schema initialized successfully")
	return nil
}

// Load returns the stored value for key
func (s *SQLiteDB) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Save upserts the value for key
func (s *SQLiteDB) Save(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, key, value, time.Now().UTC())
	return err
}

// Remove deletes key
func (s *SQLiteDB) Remove(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
