package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type BrokenFS struct {
}

func (b BrokenFS) Open(name string) (fs.File, error) {
	return nil, fs.ErrNotExist
}

func TestPostgresMigration(t *testing.T) {
	t.Run("creates migration with embedded filesystem", func(t *testing.T) {
		migration, err := NewPostgresMigration()

		require.NoError(t, err)
		assert.NotNil(t, migration, "Expected migration to be non-nil")
	})

	t.Run("returns correct source type", func(t *testing.T) {
		migration, err := NewPostgresMigration()
		require.NoError(t, err)

		sourceType := migration.GetSourceType()

		assert.Equal(t, "iofs", sourceType, "Expected source type to be 'iofs'")
	})

	t.Run("successfully creates source driver from embedded files", func(t *testing.T) {
		migration, err := NewPostgresMigration()
		require.NoError(t, err)

		driver, err := migration.GetSourceDriver()

		require.NoError(t, err, "Expected no error when creating source driver")
		assert.NotNil(t, driver, "Expected driver to be non-nil")
	})

	t.Run("fails when the filesystem has no migrations", func(t *testing.T) {
		migration := &PostgresMigration{
			fs: BrokenFS{},
		}

		driver, err := migration.GetSourceDriver()

		assert.Error(t, err, "Expected error when filesystem is empty")
		assert.Nil(t, driver, "Expected driver to be nil on error")
		assert.Contains(t, err.Error(), "failed to create migration source", "Error message should indicate migration source failure")
	})
}

func TestPostgresMigrationFiles(t *testing.T) {
	t.Run("every up migration has a matching down migration", func(t *testing.T) {
		entries, err := fs.ReadDir(PostgresFS, "postgres")
		require.NoError(t, err)

		names := make(map[string]bool, len(entries))
		for _, e := range entries {
			names[e.Name()] = true
		}
		require.NotEmpty(t, names)

		for name := range names {
			if up, ok := strings.CutSuffix(name, ".up.sql"); ok {
				assert.True(t, names[up+".down.sql"], "missing down migration for %s", name)
			}
		}
	})

	t.Run("first migration creates the checkpoint table", func(t *testing.T) {
		data, err := fs.ReadFile(PostgresFS, "postgres/000001_create_sync_checkpoint.up.sql")
		require.NoError(t, err)

		assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS sync_checkpoint")
	})
}
