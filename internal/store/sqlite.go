package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// NewSQLite opens (or creates) grocery-price.db in dataDir
func NewSQLite(dataDir string) (*SQLStore, error) {
	dbPath := filepath.Join(dataDir, "grocery-price.db")

	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// Open database with WAL mode and foreign keys enabled
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_timeout=5000", dbPath)
	return openSQLite(dsn)
}

// NewSQLiteMemory opens a private in-memory database
func NewSQLiteMemory() (*SQLStore, error) {
	return openSQLite("file::memory:?_foreign_keys=on")
}

func openSQLite(dsn string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory database lives and dies with its connection
	db.SetMaxOpenConns(1)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLStore{db: db, dialect: sqliteDialect}

	// Run migrations
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}
