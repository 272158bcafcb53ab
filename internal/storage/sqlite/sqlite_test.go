package sqlitestorage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stravx/conquest/internal/database"
	"github.com/stravx/conquest/internal/geo"
	"github.com/stravx/conquest/internal/grid"
	"github.com/stravx/conquest/internal/logging"
	"github.com/stravx/conquest/internal/storage"
	"github.com/stravx/conquest/internal/storage/storetest"
	"github.com/stravx/conquest/internal/territory"
)

// Compile-time interface check
var _ storage.Store = (*Backend)(nil)

func open(t *testing.T, cfg Config) *Backend {
	t.Helper()
	b, err := New(cfg, logging.NewSlogManager())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBackend_Memory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storage.Store {
		return open(t, Config{Name: t.Name()})
	})
}

func TestBackend_File(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storage.Store {
		return open(t, Config{Path: filepath.Join(t.TempDir(), "conquest.db")})
	})
}

func capture(t *testing.T, b *Backend) {
	t.Helper()
	tile := grid.MustTileOf(geo.Coordinate{Lat: 43.6047, Lon: 1.4442}, grid.DefaultZoom)
	_, err := b.Update(context.Background(), tile, func(tr *territory.Territory) (bool, error) {
		return tr.Capture(territory.Player{ID: "alice", Name: "Alice"}, time.Now()).Applied(), nil
	})
	require.NoError(t, err)
}

func TestDumpLoop(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "backup", "conquest.db")
	b := open(t, Config{Name: t.Name(), DumpPath: dump, DumpInterval: 10 * time.Millisecond})
	capture(t, b)

	require.Eventually(t, func() bool {
		_, err := os.Stat(dump)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClose_WritesFinalDump(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "conquest.db")
	b, err := New(Config{Name: t.Name(), DumpPath: dump}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	capture(t, b)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close(), "close is idempotent")

	restored, err := database.GetSqliteDB(dump)
	require.NoError(t, err)
	sqlDB, err := restored.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	var n int64
	require.NoError(t, restored.Table("territories").Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestClose_BeforeInit(t *testing.T) {
	b, err := New(Config{Name: t.Name(), DumpPath: filepath.Join(t.TempDir(), "never.db"), DumpInterval: time.Minute}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	_, statErr := os.Stat(b.cfg.DumpPath)
	assert.True(t, os.IsNotExist(statErr))
}
