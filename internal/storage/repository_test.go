package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"pennylogs/internal/ports"
	"pennylogs/internal/storage/storetest"
)

func TestSQLiteRepository(t *testing.T) {
	suite.Run(t, &storetest.StoreSuite{
		NewStore: func() ports.Store {
			repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "pennylogs.db"))
			require.NoError(t, err)
			return repo
		},
	})
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pennylogs.db")
	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	require.NoError(t, RunMigrations(path))
}
