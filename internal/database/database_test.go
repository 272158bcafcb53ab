package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	ID   int `gorm:"primaryKey"`
	Name string
}

func TestPostgresConfig_DSN(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("db.host", "db.local")
	viper.Set("db.port", "5432")
	viper.Set("db.username", "conquest")
	viper.Set("db.password", "secret")
	viper.Set("db.database", "territories")

	cfg := PostgresConfigFromViper()
	assert.Equal(t, "host=db.local port=5432 user=conquest password=secret dbname=territories sslmode=disable", cfg.DSN())

	cfg.SSLMode = "require"
	assert.Contains(t, cfg.DSN(), "sslmode=require")
}

func TestGetNamedMemoryDB_Isolated(t *testing.T) {
	a, err := GetNamedMemoryDB("isolated a")
	require.NoError(t, err)
	b, err := GetNamedMemoryDB("isolated/b")
	require.NoError(t, err)

	require.NoError(t, a.AutoMigrate(&row{}))
	require.NoError(t, a.Create(&row{ID: 1, Name: "one"}).Error)

	assert.False(t, b.Migrator().HasTable(&row{}))

	again, err := GetNamedMemoryDB("isolated a")
	require.NoError(t, err)
	var got row
	require.NoError(t, again.First(&got, 1).Error)
	assert.Equal(t, "one", got.Name)
}

func TestDumpMemoryDBToDisk(t *testing.T) {
	db, err := GetNamedMemoryDB(t.Name())
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&row{}))
	require.NoError(t, db.Create(&row{ID: 7, Name: "seven"}).Error)

	dir := t.TempDir()
	path := filepath.Join(dir, "dumps", "conquest.db")
	require.NoError(t, DumpMemoryDBToDisk(db, path))
	// A second dump replaces the first.
	require.NoError(t, DumpMemoryDBToDisk(db, path))

	disk, err := GetSqliteDB(path)
	require.NoError(t, err)
	var got row
	require.NoError(t, disk.First(&got, 7).Error)
	assert.Equal(t, "seven", got.Name)

	paths, err := GetBackupDBPaths(filepath.Join(dir, "dumps"))
	require.NoError(t, err)
	assert.Equal(t, []string{path}, paths)
}

func TestDumpMemoryDBToDisk_NoPath(t *testing.T) {
	db, err := GetNamedMemoryDB(t.Name())
	require.NoError(t, err)
	assert.Error(t, DumpMemoryDBToDisk(db, ""))
}

func TestGetBackupDBPaths_SkipsOtherFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.db"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.db"), 0o755))

	paths, err := GetBackupDBPaths(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.db")}, paths)

	_, err = GetBackupDBPaths(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func unreachable() PostgresConfig {
	return PostgresConfig{Host: "127.0.0.1", Port: "1", Username: "x", Password: "x", Database: "x", SSLMode: "disable"}
}

func TestConnect_NoFallback(t *testing.T) {
	_, fellBack, err := Connect(unreachable(), false, zerolog.Nop())
	require.Error(t, err)
	assert.False(t, fellBack)
}

func TestConnect_FallsBackToMemory(t *testing.T) {
	db, fellBack, err := Connect(unreachable(), true, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, fellBack)

	require.NoError(t, db.AutoMigrate(&row{}))
	require.NoError(t, db.Create(&row{ID: 1, Name: "a"}).Error)
	var n int64
	require.NoError(t, db.Model(&row{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}
