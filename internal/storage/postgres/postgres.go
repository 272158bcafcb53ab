// Package postgres runs the GORM backend on PostgreSQL.
package postgres

import (
	"errors"
	"fmt"

	"github.com/stravx/conquest/internal/database"
	"github.com/stravx/conquest/internal/logging"
	gormstorage "github.com/stravx/conquest/internal/storage/gorm"

	"gorm.io/gorm"
)

// MaxOpenConns caps the connection pool.
const MaxOpenConns = 10

// Dependencies holds all dependencies for the PostgreSQL backend. When DB
// is nil, Init connects with Config.
type Dependencies struct {
	DB         *gorm.DB
	Config     database.PostgresConfig
	LogManager *logging.SlogManager
}

// Backend embeds the GORM backend once a connection is established.
type Backend struct {
	*gormstorage.Backend
	deps Dependencies
}

func New(deps Dependencies) *Backend {
	return &Backend{deps: deps}
}

// Init connects if needed, validates the connection and migrates the schema.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		db, err := database.GetPostgresDB(b.deps.Config)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		b.deps.DB = db
	}

	sqlDB, err := b.deps.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err = sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to validate connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(MaxOpenConns)

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:         b.deps.DB,
		LogManager: b.deps.LogManager,
	})
	return b.Backend.Init()
}

// Close is safe before Init.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	return b.Backend.Close()
}

// ErrNotInitialized is returned by Ready before a successful Init.
var ErrNotInitialized = errors.New("postgres backend not initialized")

// Ready reports whether Init completed.
func (b *Backend) Ready() error {
	if b.Backend == nil {
		return ErrNotInitialized
	}
	return nil
}
