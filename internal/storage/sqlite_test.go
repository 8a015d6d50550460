package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"bottega/internal/store"
	"bottega/internal/store/storetest"
)

func openTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "bottega.db"))
	require.NoError(t, err)
	return s
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, openTestStore)
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "bottega.db")

	s, err := NewSQLiteStore(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	version, err := RunMigrations(path)
	require.NoError(t, err)
	require.Equal(t, uint(1), version)
}

func TestForeignKeysEnforced(t *testing.T) {
	s := openTestStore(t)
	defer s.Close()

	err := s.Update(context.Background(), func(tx store.Tx) error {
		_, err := tx.InsertShift(context.Background(), shiftFor(999))
		return err
	})
	require.Error(t, err)
}
