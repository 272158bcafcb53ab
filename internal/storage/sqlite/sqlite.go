// Package sqlitestorage runs the GORM backend on SQLite. With no file path
// the database lives in memory and is snapshotted to disk with VACUUM INTO.
package sqlitestorage

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stravx/conquest/internal/database"
	"github.com/stravx/conquest/internal/logging"
	gormstorage "github.com/stravx/conquest/internal/storage/gorm"

	"gorm.io/gorm"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	// Path of a database file. Empty keeps the database in memory.
	Path string `mapstructure:"path"`
	// Name isolates in-memory databases within one process.
	Name         string        `mapstructure:"name"`
	DumpInterval time.Duration `mapstructure:"dumpInterval"`
	DumpPath     string        `mapstructure:"dumpPath"`
}

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	cfg       Config
	log       *slog.Logger
	stopChan  chan struct{}
	done      chan struct{}
	started   bool
	closeOnce sync.Once
}

// New opens the database. Nothing is migrated until Init.
func New(cfg Config, logManager *logging.SlogManager) (*Backend, error) {
	var (
		db  *gorm.DB
		err error
	)
	if cfg.Path != "" {
		db, err = database.GetSqliteDB(cfg.Path)
		if err == nil {
			err = singleWriter(db)
		}
	} else {
		name := cfg.Name
		if name == "" {
			name = "conquest"
		}
		db, err = database.GetNamedMemoryDB(name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite DB: %w", err)
	}

	log := slog.Default()
	if logManager != nil {
		log = logManager.Component("sqlite")
	}
	return &Backend{
		Backend:  gormstorage.New(gormstorage.Dependencies{DB: db, LogManager: logManager}),
		cfg:      cfg,
		log:      log,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// singleWriter funnels every statement through one connection so writers
// never see SQLITE_BUSY.
func singleWriter(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(1)
	return nil
}

// Init migrates the schema and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}
	b.started = true
	if b.dumps() {
		go b.dumpLoop()
	} else {
		close(b.done)
	}
	return nil
}

func (b *Backend) dumps() bool {
	return b.cfg.Path == "" && b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0
}

// Close stops the dump goroutine, takes a last snapshot and closes the
// database. Before Init it only closes the database.
func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.stopChan)
		if !b.started {
			err = b.Backend.Close()
			return
		}
		<-b.done
		if b.cfg.Path == "" && b.cfg.DumpPath != "" {
			if dumpErr := b.Dump(); dumpErr != nil {
				b.log.Error("Final dump failed", "path", b.cfg.DumpPath, "error", dumpErr)
			}
		}
		err = b.Backend.Close()
	})
	return err
}

// Dump snapshots the database to DumpPath.
func (b *Backend) Dump() error {
	return database.DumpMemoryDBToDisk(b.DB(), b.cfg.DumpPath)
}

// dumpLoop periodically dumps the in-memory database. VACUUM INTO takes a
// consistent snapshot, so writers are not paused.
func (b *Backend) dumpLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if err := b.Dump(); err != nil {
				b.log.Error("Error dumping to disk", "path", b.cfg.DumpPath, "error", err)
			} else {
				b.log.Debug("Dumped to disk", "path", b.cfg.DumpPath, "took", time.Since(start))
			}
		}
	}
}
