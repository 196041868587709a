package sqlitestore

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/pong-backend/internal/store"
	"github.com/DoyleJ11/pong-backend/internal/store/storetest"
)

// setupTestDB opens a fresh database file and applies migrations.
func setupTestDB(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "pong.db"))
	require.NoError(t, err, "Failed to open test DB")
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.SnapshotStore { return setupTestDB(t) })
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := setupTestDB(t)
	require.NoError(t, Migrate(s.db))

	var tables []string
	require.NoError(t, sqlx.Select(s.db, &tables,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name IN ('matches', 'tournaments') ORDER BY name"))
	require.Equal(t, []string{"matches", "tournaments"}, tables)
}
