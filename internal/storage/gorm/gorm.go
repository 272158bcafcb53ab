// Package gormstorage implements storage.Store and profile.Repository on top
// of GORM. Concurrent writers are serialized by an optimistic version column.
package gormstorage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stravx/conquest/internal/grid"
	"github.com/stravx/conquest/internal/logging"
	"github.com/stravx/conquest/internal/model"
	"github.com/stravx/conquest/internal/model/convert"
	"github.com/stravx/conquest/internal/profile"
	"github.com/stravx/conquest/internal/session"
	"github.com/stravx/conquest/internal/storage"
	"github.com/stravx/conquest/internal/territory"
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB         *gorm.DB
	LogManager *logging.SlogManager
	// Now stamps profile and session rows. Defaults to time.Now.
	Now func() time.Time
}

// Backend implements storage.Store and profile.Repository using GORM.
type Backend struct {
	db  *gorm.DB
	log *slog.Logger
	now func() time.Time
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	b := &Backend{db: deps.DB, now: deps.Now, log: slog.Default()}
	if deps.LogManager != nil {
		b.log = deps.LogManager.Component("storage")
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// DB exposes the underlying connection for backends that wrap this one.
func (b *Backend) DB() *gorm.DB {
	return b.db
}

// Init migrates the schema.
func (b *Backend) Init() error {
	if b.db == nil {
		return errors.New("gorm backend: no database")
	}
	b.log.Info("Migrating schema", "dialect", b.db.Name())
	if err := b.db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (b *Backend) Close() error {
	if b.db == nil {
		return nil
	}
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// mapErr translates GORM errors into the storage taxonomy. Context errors
// pass through untouched so callers can tell cancellation from an outage.
func mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return storage.ErrNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return storage.Unavailable(op, err)
	}
}

func (b *Backend) FetchByTileID(ctx context.Context, tileID string) (*territory.Territory, error) {
	var row model.Territory
	if err := b.db.WithContext(ctx).Where("tile_id = ?", tileID).Take(&row).Error; err != nil {
		return nil, mapErr("fetch "+tileID, err)
	}
	return convert.TerritoryFromModel(row), nil
}

func (b *Backend) FetchOwnedBy(ctx context.Context, playerID string) ([]*territory.Territory, error) {
	if playerID == "" {
		return []*territory.Territory{}, nil
	}
	return b.find(ctx, "fetch owned by "+playerID, func(db *gorm.DB) *gorm.DB {
		return db.Where("owner_id = ?", playerID)
	})
}

func (b *Backend) FetchAll(ctx context.Context) ([]*territory.Territory, error) {
	return b.find(ctx, "fetch all", nil)
}

func (b *Backend) find(ctx context.Context, op string, scope func(*gorm.DB) *gorm.DB) ([]*territory.Territory, error) {
	q := b.db.WithContext(ctx)
	if scope != nil {
		q = q.Scopes(scope)
	}
	var rows []model.Territory
	if err := q.Order("tile_id").Find(&rows).Error; err != nil {
		return nil, mapErr(op, err)
	}
	out := make([]*territory.Territory, len(rows))
	for i, r := range rows {
		out[i] = convert.TerritoryFromModel(r)
	}
	return out, nil
}

// Upsert stores t unconditionally and bumps its version.
func (b *Backend) Upsert(ctx context.Context, t *territory.Territory) error {
	if err := t.Validate(); err != nil {
		return err
	}
	row := convert.TerritoryToModel(*t)
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prev model.Territory
		err := tx.Select("version").Where("tile_id = ?", t.TileID).Take(&prev).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		row.Version = prev.Version + 1
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	})
	if err != nil {
		return mapErr("upsert "+t.TileID, err)
	}
	t.Version = row.Version
	return nil
}

func (b *Backend) Delete(ctx context.Context, tileID string) error {
	err := b.db.WithContext(ctx).Where("tile_id = ?", tileID).Delete(&model.Territory{}).Error
	return mapErr("delete "+tileID, err)
}

func (b *Backend) DeleteNeutral(ctx context.Context, tileID string) (bool, error) {
	res := b.db.WithContext(ctx).
		Where("tile_id = ? AND owner_id IS NULL", tileID).
		Delete(&model.Territory{})
	if res.Error != nil {
		return false, mapErr("delete neutral "+tileID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Update is a single optimistic read-modify-write. The write only lands if
// the version read is still current; otherwise ErrConflict is returned and
// storage.Transact retries.
func (b *Backend) Update(ctx context.Context, tile grid.Tile, fn storage.Mutator) (*territory.Territory, error) {
	db := b.db.WithContext(ctx)

	var row model.Territory
	var work *territory.Territory
	err := db.Where("tile_id = ?", tile.ID).Take(&row).Error
	exists := err == nil
	switch {
	case exists:
		work = convert.TerritoryFromModel(row)
	case errors.Is(err, gorm.ErrRecordNotFound):
		work = territory.New(tile)
	default:
		return nil, mapErr("read "+tile.ID, err)
	}

	changed, err := fn(work)
	if err != nil {
		return nil, err
	}
	if !changed && exists {
		return convert.TerritoryFromModel(row), nil
	}
	if err := work.Validate(); err != nil {
		return nil, err
	}

	prev := work.Version
	work.Version++
	next := convert.TerritoryToModel(*work)
	next.UpdatedAt = b.now().UTC()

	var res *gorm.DB
	if exists {
		res = db.Model(&model.Territory{}).
			Where("tile_id = ? AND version = ?", tile.ID, prev).
			Updates(map[string]any{
				"owner_id":           next.OwnerID,
				"owner_name":         next.OwnerName,
				"captured_at":        next.CapturedAt,
				"strength":           next.Strength,
				"last_reinforced_at": next.LastReinforcedAt,
				"is_contested":       next.IsContested,
				"contested_by":       next.ContestedBy,
				"contested_from":     next.ContestedFrom,
				"capture_count":      next.CaptureCount,
				"last_captured_by":   next.LastCapturedBy,
				"capture_history":    next.CaptureHistory,
				"last_decayed_at":    next.LastDecayedAt,
				"version":            next.Version,
				"updated_at":         next.UpdatedAt,
			})
	} else {
		res = db.Clauses(clause.OnConflict{DoNothing: true}).Create(&next)
	}
	if res.Error != nil {
		return nil, mapErr("write "+tile.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("tile %s version %d: %w", tile.ID, prev, storage.ErrConflict)
	}
	return work, nil
}

// Stats counts rows per table.
func (b *Backend) Stats(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, len(model.DatabaseModels))
	db := b.db.WithContext(ctx)
	for _, m := range model.DatabaseModels {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(m); err != nil {
			return nil, err
		}
		var n int64
		if err := db.Model(m).Count(&n).Error; err != nil {
			return nil, mapErr("count "+stmt.Schema.Table, err)
		}
		out[stmt.Schema.Table] = n
	}
	return out, nil
}

var (
	_ storage.Store      = (*Backend)(nil)
	_ profile.Repository = (*Backend)(nil)
)

// session archive

// SaveSession archives an ended session summary. Saving the same session
// twice overwrites the first row.
func (b *Backend) SaveSession(ctx context.Context, s session.Summary) error {
	row := convert.SummaryToRecord(s)
	err := b.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		return mapErr("save session "+s.SessionID, err)
	}
	return nil
}

// ListSessions returns a player's most recent sessions, newest first. A
// non-positive limit returns all of them.
func (b *Backend) ListSessions(ctx context.Context, playerID string, limit int) ([]session.Summary, error) {
	q := b.db.WithContext(ctx).Where("player_id = ?", playerID).Order("ended_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []model.SessionRecord
	if err := q.Find(&rows).Error; err != nil {
		return nil, mapErr("list sessions "+playerID, err)
	}
	out := make([]session.Summary, len(rows))
	for i, r := range rows {
		out[i] = convert.RecordToSummary(r)
	}
	return out, nil
}
