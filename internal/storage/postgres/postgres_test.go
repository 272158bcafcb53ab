package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/stravx/conquest/internal/database"
	"github.com/stravx/conquest/internal/logging"
	"github.com/stravx/conquest/internal/storage"
)

// Compile-time interface check
var _ storage.Store = (*Backend)(nil)

// injectedDB stands in for a PostgreSQL connection.
func injectedDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.GetNamedMemoryDB(t.Name())
	require.NoError(t, err)
	return db
}

func TestNew(t *testing.T) {
	b := New(Dependencies{LogManager: logging.NewSlogManager()})
	require.NotNil(t, b)
	assert.ErrorIs(t, b.Ready(), ErrNotInitialized)
	assert.NoError(t, b.Close())
}

func TestInitClose(t *testing.T) {
	b := New(Dependencies{
		DB:         injectedDB(t),
		LogManager: logging.NewSlogManager(),
	})

	require.NoError(t, b.Init())
	require.NoError(t, b.Ready())

	sqlDB, err := b.DB().DB()
	require.NoError(t, err)
	assert.Equal(t, MaxOpenConns, sqlDB.Stats().MaxOpenConnections)

	_, err = b.FetchAll(context.Background())
	require.NoError(t, err)

	require.NoError(t, b.Close())
}

func TestInit_Unreachable(t *testing.T) {
	b := New(Dependencies{Config: database.PostgresConfig{
		Host:     "127.0.0.1",
		Port:     "1",
		Username: "conquest",
		Database: "conquest",
	}})
	assert.Error(t, b.Init())
	assert.ErrorIs(t, b.Ready(), ErrNotInitialized)
}
