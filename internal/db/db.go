package db

import (
	"database/sql"
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/trevor-commits/proactive-outreach-crm/internal/config"
)

//go:embed schema.sql
var schemaSQL string

const fileName = "outreach.db"

// Init creates the data directory and database and applies the schema.
func Init() error {
	path, err := GetPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := OpenPath(path)
	if err != nil {
		return err
	}
	defer db.Close()
	return ApplySchema(db)
}

// ApplySchema executes the embedded schema. Every statement is idempotent.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Open opens a connection to the database in the data directory
func Open() (*sql.DB, error) {
	path, err := GetPath()
	if err != nil {
		return nil, err
	}
	return OpenPath(path)
}

// OpenPath opens the database at path with the connection pragmas applied.
func OpenPath(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Pragmas are per connection; a single connection keeps them (and
	// foreign_keys in particular) in force for every statement.
	db.SetMaxOpenConns(1)

	// WAL allows concurrent readers while a writer is active.
	// busy_timeout reduces SQLITE_BUSY errors under contention.
	pragmas := []struct {
		stmt string
		what string
	}{
		{"PRAGMA journal_mode = WAL", "enable WAL"},
		{"PRAGMA synchronous = NORMAL", "set synchronous"},
		{"PRAGMA busy_timeout = 5000", "set busy_timeout"},
		{"PRAGMA foreign_keys = ON", "enable foreign keys"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to %s: %w", p.what, err)
		}
	}

	return db, nil
}

// Archive is a private snapshot of a foreign sqlite file (device backup
// store). Close removes the snapshot.
type Archive struct {
	*sql.DB
	dir string
}

// OpenArchive copies the store at path, with its -wal sidecar when present,
// into a temporary directory and opens the copy for queries only. Rows that
// still live in the write-ahead log are visible and the source files are
// never touched.
func OpenArchive(path string) (*Archive, error) {
	dir, err := os.MkdirTemp("", "outreach-archive-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create archive snapshot dir: %w", err)
	}
	snapshot := filepath.Join(dir, filepath.Base(path))
	if err := copyFile(path, snapshot); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to snapshot archive: %w", err)
	}
	if _, err := os.Stat(path + "-wal"); err == nil {
		if err := copyFile(path+"-wal", snapshot+"-wal"); err != nil {
			os.RemoveAll(dir)
			return nil, fmt.Errorf("failed to snapshot archive wal: %w", err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+snapshot+"?_pragma=query_only(1)")
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &Archive{DB: db, dir: dir}, nil
}

func (a *Archive) Close() error {
	err := a.DB.Close()
	if rmErr := os.RemoveAll(a.dir); err == nil {
		err = rmErr
	}
	return err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// GetPath returns the path to the database file
func GetPath() (string, error) {
	dataDir, err := config.GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, fileName), nil
}
