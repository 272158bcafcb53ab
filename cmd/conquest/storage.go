package main

import (
	"context"
	"fmt"

	"github.com/stravx/conquest/internal/config"
	"github.com/stravx/conquest/internal/database"
	"github.com/stravx/conquest/internal/engine"
	"github.com/stravx/conquest/internal/profile"
	"github.com/stravx/conquest/internal/session"
	"github.com/stravx/conquest/internal/storage"
	gormstorage "github.com/stravx/conquest/internal/storage/gorm"
	"github.com/stravx/conquest/internal/storage/memory"
	pgstorage "github.com/stravx/conquest/internal/storage/postgres"
	sqlitestorage "github.com/stravx/conquest/internal/storage/sqlite"
)

// statser is implemented by the GORM-backed stores.
type statser interface {
	Stats(ctx context.Context) (map[string]int64, error)
}

// sessionLister is implemented by the GORM-backed stores.
type sessionLister interface {
	ListSessions(ctx context.Context, playerID string, limit int) ([]session.Summary, error)
}

// backend bundles what a storage type provides. Archive is nil for memory.
type backend struct {
	kind     string
	store    storage.Store
	profiles profile.Repository
	archive  engine.SessionArchive
}

func (b *backend) Close() error {
	return b.store.Close()
}

// gormBacked is what the sqlite and postgres backends share.
type gormBacked interface {
	storage.Store
	profile.Repository
	engine.SessionArchive
}

func openStorage(cfg config.StorageConfig) (*backend, error) {
	b, err := createStorageBackend(cfg)
	if err != nil {
		Logger.Error("Failed to create storage backend", "type", cfg.Type, "error", err)
		return nil, err
	}
	if err := b.store.Init(); err != nil {
		Logger.Error("Failed to initialize storage backend", "type", b.kind, "error", err)
		return nil, err
	}
	Logger.Info("Storage backend initialized", "type", b.kind)
	return b, nil
}

func gormBackend(kind string, g gormBacked) *backend {
	return &backend{kind: kind, store: g, profiles: g, archive: g}
}

func createStorageBackend(cfg config.StorageConfig) (*backend, error) {
	switch cfg.Type {
	case "postgres":
		db, fellBack, err := database.Connect(cfg.Postgres, cfg.Fallback, ZLogger)
		if err != nil {
			return nil, err
		}
		if fellBack {
			return gormBackend("postgres-fallback", gormstorage.New(gormstorage.Dependencies{
				DB:         db,
				LogManager: SlogManager,
			})), nil
		}
		return gormBackend("postgres", pgstorage.New(pgstorage.Dependencies{
			DB:         db,
			Config:     cfg.Postgres,
			LogManager: SlogManager,
		})), nil

	case "sqlite":
		s, err := sqlitestorage.New(cfg.SQLite, SlogManager)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		return gormBackend("sqlite", s), nil

	case "memory", "":
		return &backend{
			kind:     "memory",
			store:    memory.New(),
			profiles: profile.NewMemoryRepository(),
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
