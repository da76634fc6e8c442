package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Artifact kinds recorded in the ledger.
const (
	KindInstaller = "installer"
	KindAsset     = "asset"
)

// ArtifactDB is one mirrored file. Path is relative to the artifacts root.
type ArtifactDB struct {
	Path         string    `json:"path"`
	Kind         string    `json:"kind"`
	Identity     string    `json:"identity"`
	Version      string    `json:"version"`
	SHA256       string    `json:"sha256"`
	Size         int64     `json:"size"`
	DownloadedAt time.Time `json:"downloadedAt"`
}

// KindStats summarises the ledger for one kind.
type KindStats struct {
	Kind       string `json:"kind"`
	Count      int64  `json:"count"`
	Bytes      int64  `json:"bytes"`
	Identities int64  `json:"identities"`
}

type Database struct {
	db *sql.DB
}

// New opens (and creates when needed) the ledger at dbPath.
func New(dbPath string) (*Database, error) {
	if dbPath == "" {
		return nil, errors.New("database path is empty")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	// sqlite allows a single writer; the sync workers share this handle.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration error: %w", err)
	}

	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS artifacts (
		path TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		identity TEXT NOT NULL,
		version TEXT,
		sha256 TEXT,
		size INTEGER NOT NULL DEFAULT 0,
		downloaded_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_artifacts_identity ON artifacts(identity);
	CREATE INDEX IF NOT EXISTS idx_artifacts_kind ON artifacts(kind);
	`

	_, err := db.Exec(createTableSQL)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Record inserts or replaces the row for a.Path.
func (d *Database) Record(a *ArtifactDB) error {
	if a.Path == "" {
		return errors.New("artifact path is empty")
	}
	if a.DownloadedAt.IsZero() {
		a.DownloadedAt = time.Now()
	}
	a.DownloadedAt = a.DownloadedAt.UTC()

	query := `INSERT OR REPLACE INTO artifacts (path, kind, identity, version, sha256, size, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := d.db.Exec(query, a.Path, a.Kind, a.Identity, a.Version, a.SHA256, a.Size, a.DownloadedAt)
	if err != nil {
		return fmt.Errorf("record artifact %s: %w", a.Path, err)
	}
	return nil
}

// Get returns the row for path, or nil when there is none.
func (d *Database) Get(path string) (*ArtifactDB, error) {
	query := `SELECT path, kind, identity, version, sha256, size, downloaded_at FROM artifacts WHERE path = ?`

	var a ArtifactDB
	err := d.db.QueryRow(query, path).Scan(&a.Path, &a.Kind, &a.Identity, &a.Version, &a.SHA256, &a.Size, &a.DownloadedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// ListByIdentity returns the rows of one extension or installer, newest first.
func (d *Database) ListByIdentity(identity string) ([]ArtifactDB, error) {
	query := `SELECT path, kind, identity, version, sha256, size, downloaded_at FROM artifacts
		WHERE identity = ? ORDER BY downloaded_at DESC, path`

	rows, err := d.db.Query(query, identity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []ArtifactDB
	for rows.Next() {
		var a ArtifactDB
		if err := rows.Scan(&a.Path, &a.Kind, &a.Identity, &a.Version, &a.SHA256, &a.Size, &a.DownloadedAt); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

// DeleteByIdentity removes every row of identity and reports how many went.
func (d *Database) DeleteByIdentity(identity string) (int64, error) {
	res, err := d.db.Exec(`DELETE FROM artifacts WHERE identity = ?`, identity)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Stats returns per-kind totals ordered by kind.
func (d *Database) Stats() ([]KindStats, error) {
	query := `SELECT kind, COUNT(*), COALESCE(SUM(size), 0), COUNT(DISTINCT identity)
		FROM artifacts GROUP BY kind ORDER BY kind`

	rows, err := d.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []KindStats
	for rows.Next() {
		var s KindStats
		if err := rows.Scan(&s.Kind, &s.Count, &s.Bytes, &s.Identities); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// LastDownload returns the newest downloaded_at, zero when the ledger is empty.
func (d *Database) LastDownload() (time.Time, error) {
	var last time.Time
	err := d.db.QueryRow(`SELECT downloaded_at FROM artifacts ORDER BY downloaded_at DESC LIMIT 1`).Scan(&last)
	if err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return last, nil
}
