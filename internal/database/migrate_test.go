package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunMigrationsIsRepeatable(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "nested", "despacho.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, RunMigrations(db))
	require.NoError(t, RunMigrations(db))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM journal_entries`).Scan(&n))
	require.Zero(t, n)
}
