package db

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/sitediff/internal/config"
)

func initAt(t *testing.T, base string) *sql.DB {
	t.Helper()
	conn, err := Init(base)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sqliteObject(t *testing.T, conn *sql.DB, typ, name string) bool {
	t.Helper()
	var got string
	err := conn.QueryRow("SELECT name FROM sqlite_master WHERE type=? AND name=?", typ, name).Scan(&got)
	if err == sql.ErrNoRows {
		return false
	}
	require.NoError(t, err)
	return true
}

func TestInitLayout(t *testing.T) {
	base := filepath.Join(t.TempDir(), "a", "b", ".sitediff")
	conn := initAt(t, base)

	info, err := os.Stat(filepath.Join(base, FileName))
	require.NoError(t, err)
	assert.False(t, info.IsDir())

	info, err = os.Stat(filepath.Join(base, ExportsDir))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	var mode string
	require.NoError(t, conn.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestInitSchema(t *testing.T) {
	conn := initAt(t, t.TempDir())

	assert.True(t, sqliteObject(t, conn, "table", "checks"))
	assert.True(t, sqliteObject(t, conn, "index", "idx_checks_url_checked"))
	assert.True(t, sqliteObject(t, conn, "index", "idx_checks_run_id"))

	v, err := GetUserVersion(conn)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v)
}

func TestInitReopen(t *testing.T) {
	base := t.TempDir()
	first, err := Init(base)
	require.NoError(t, err)
	_, err = first.Exec(`INSERT INTO checks (id, url, snapshot_key, checked_at) VALUES ('c1', 'https://a.test', 'k', 1)`)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	conn := initAt(t, base)
	var n int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM checks").Scan(&n))
	assert.Equal(t, 1, n, "reopening must not rerun migrations over existing rows")
}

func TestMigrateSkipsAppliedVersions(t *testing.T) {
	conn := initAt(t, t.TempDir())

	require.NoError(t, SetUserVersion(conn, CurrentSchemaVersion+5))
	require.NoError(t, migrate(conn))

	v, err := GetUserVersion(conn)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion+5, v)
}

func TestConfigurePool(t *testing.T) {
	conn := initAt(t, t.TempDir())

	ConfigurePool(conn, nil)
	ConfigurePool(conn, &config.Config{})
	assert.Equal(t, 0, conn.Stats().MaxOpenConnections)

	ConfigurePool(conn, &config.Config{DBMaxOpenConns: 3})
	assert.Equal(t, 3, conn.Stats().MaxOpenConnections)
}
