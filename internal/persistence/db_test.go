package persistence

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesSchemaAtCurrentVersion(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	var version int
	require.NoError(t, db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version))
	assert.Equal(t, schemaVersion, version)

	for _, table := range []string{"proposals", "runs", "scheduled_tasks"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, "expected table %q to exist", table)
		assert.Equal(t, table, name)
	}
}

func TestOpen_ReopeningExistingDatabaseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db1.Close())

	db2, err := Open(path)
	require.NoError(t, err)
	defer db2.Close()

	var version int
	require.NoError(t, db2.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version))
	assert.Equal(t, schemaVersion, version)

	var count int
	require.NoError(t, db2.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&count))
	assert.Equal(t, 1, count)
}
