// Package db stores the check history in SQLite.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/hpungsan/sitediff/internal/config"
)

// FileName is the history database file inside the base directory.
const FileName = "sitediff.db"

// ExportsDir is the default watchlist export directory inside the base directory.
const ExportsDir = "exports"

// migrations are applied in order; entry i moves user_version from i to i+1.
// Append only.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS checks (
	  id            TEXT PRIMARY KEY,
	  run_id        TEXT,
	  url           TEXT NOT NULL,
	  snapshot_key  TEXT NOT NULL,
	  kind          TEXT,
	  added         INTEGER NOT NULL DEFAULT 0,
	  removed       INTEGER NOT NULL DEFAULT 0,
	  plain_diff    TEXT,
	  markup_diff   TEXT,
	  error_code    TEXT,
	  error_message TEXT,
	  checked_at    INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_checks_url_checked ON checks(url, checked_at DESC);
	CREATE INDEX IF NOT EXISTS idx_checks_run_id ON checks(run_id) WHERE run_id IS NOT NULL;`,
}

// CurrentSchemaVersion is the user_version after all migrations ran.
var CurrentSchemaVersion = len(migrations)

// Init opens the history database under baseDir, creating baseDir, its
// exports directory and the schema as needed.
func Init(baseDir string) (*sql.DB, error) {
	for _, dir := range []string{baseDir, filepath.Join(baseDir, ExportsDir)} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	path := filepath.Join(baseDir, FileName)
	// DSN pragmas are replayed on every pooled connection.
	conn, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if err := prepare(conn); err != nil {
		conn.Close()
		return nil, err
	}
	_ = os.Chmod(path, 0600)
	return conn, nil
}

func prepare(conn *sql.DB) error {
	var mode string
	if err := conn.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		return fmt.Errorf("read journal_mode: %w", err)
	}
	if mode != "wal" {
		return fmt.Errorf("history database is in %q journal mode, need wal", mode)
	}
	return migrate(conn)
}

// ConfigurePool caps open connections when the config asks for it.
func ConfigurePool(conn *sql.DB, cfg *config.Config) {
	if cfg != nil && cfg.DBMaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
}

// migrate runs every migration above the stored user_version, each in its
// own transaction together with the version bump.
func migrate(conn *sql.DB) error {
	from, err := GetUserVersion(conn)
	if err != nil {
		return err
	}
	for v := from; v < len(migrations); v++ {
		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
		if _, err := tx.Exec(migrations[v]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version=%d", v+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: set version: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: commit: %w", v+1, err)
		}
	}
	return nil
}

// GetUserVersion reads the schema version pragma.
func GetUserVersion(conn *sql.DB) (int, error) {
	var v int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return v, nil
}

// SetUserVersion overwrites the schema version pragma.
func SetUserVersion(conn *sql.DB, v int) error {
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version=%d", v)); err != nil {
		return fmt.Errorf("write user_version: %w", err)
	}
	return nil
}
