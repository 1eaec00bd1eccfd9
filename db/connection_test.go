package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestOpen(t *testing.T) {
	t.Run("opens database successfully", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		db, err := Open(dbPath, nil)
		require.NoError(t, err)
		require.NotNil(t, db)
		defer db.Close()

		// Verify WAL mode enabled
		var journalMode string
		err = db.QueryRow("PRAGMA journal_mode").Scan(&journalMode)
		require.NoError(t, err)
		assert.Equal(t, "wal", journalMode)

		// Verify foreign keys enabled
		var foreignKeys int
		err = db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys)
		require.NoError(t, err)
		assert.Equal(t, 1, foreignKeys)
	})

	t.Run("opens with logger", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		log := zaptest.NewLogger(t).Sugar()
		db, err := Open(dbPath, log)
		require.NoError(t, err)
		defer db.Close()
	})
}

func TestMigrate(t *testing.T) {
	t.Run("applies all migrations", func(t *testing.T) {
		tmpDir := t.TempDir()
		db, err := Open(filepath.Join(tmpDir, "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		err = Migrate(db, nil)
		require.NoError(t, err)

		// scheduled_jobs table must exist
		var name string
		err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='scheduled_jobs'").Scan(&name)
		require.NoError(t, err)
		assert.Equal(t, "scheduled_jobs", name)
	})

	t.Run("is idempotent", func(t *testing.T) {
		tmpDir := t.TempDir()
		db, err := Open(filepath.Join(tmpDir, "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, Migrate(db, nil))
		require.NoError(t, Migrate(db, nil))

		var count int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})
}
