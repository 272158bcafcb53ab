package gormstorage

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stravx/conquest/internal/model"
	"github.com/stravx/conquest/internal/model/convert"
	"github.com/stravx/conquest/internal/profile"
	"github.com/stravx/conquest/internal/territory"
)

func mapProfileErr(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return profile.ErrNotFound
	}
	return mapErr(op, err)
}

func (b *Backend) GetProfile(ctx context.Context, playerID string) (profile.Profile, error) {
	var row model.Profile
	if err := b.db.WithContext(ctx).Where("player_id = ?", playerID).Take(&row).Error; err != nil {
		return profile.Profile{}, mapProfileErr("get profile "+playerID, err)
	}
	return convert.ProfileFromModel(row), nil
}

// EnsureProfile inserts a fresh profile unless one exists, then reads back
// whichever row won.
func (b *Backend) EnsureProfile(ctx context.Context, player territory.Player) (profile.Profile, error) {
	row := convert.ProfileToModel(profile.New(player, b.now().UTC()))
	if err := b.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return profile.Profile{}, mapProfileErr("ensure profile "+player.ID, err)
	}
	return b.GetProfile(ctx, player.ID)
}

// ApplyDelta locks the profile row for the duration of the update. SQLite
// ignores the locking clause and relies on its single writer.
func (b *Backend) ApplyDelta(ctx context.Context, playerID string, d profile.Delta) (profile.Profile, profile.Profile, error) {
	var before, after profile.Profile
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row model.Profile
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("player_id = ?", playerID).
			Take(&row).Error
		if err != nil {
			return err
		}
		before = convert.ProfileFromModel(row)
		after = before.Apply(d, b.now().UTC())
		next := convert.ProfileToModel(after)
		return tx.Save(&next).Error
	})
	if err != nil {
		return profile.Profile{}, profile.Profile{}, mapProfileErr("apply delta "+playerID, err)
	}
	return before, after, nil
}

func (b *Backend) ListProfiles(ctx context.Context) ([]profile.Profile, error) {
	var rows []model.Profile
	if err := b.db.WithContext(ctx).Order("player_id").Find(&rows).Error; err != nil {
		return nil, mapProfileErr("list profiles", err)
	}
	out := make([]profile.Profile, len(rows))
	for i, r := range rows {
		out[i] = convert.ProfileFromModel(r)
	}
	return out, nil
}
