// Package storetest holds the behaviour every storage.Store backend shares.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stravx/conquest/internal/geo"
	"github.com/stravx/conquest/internal/grid"
	"github.com/stravx/conquest/internal/storage"
	"github.com/stravx/conquest/internal/territory"
)

var (
	alice = territory.Player{ID: "alice", Name: "Alice"}
	bob   = territory.Player{ID: "bob", Name: "Bob"}
	now   = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
)

func tileAt(lat, lon float64) grid.Tile {
	return grid.MustTileOf(geo.Coordinate{Lat: lat, Lon: lon}, grid.DefaultZoom)
}

func capture(p territory.Player) storage.Mutator {
	return func(t *territory.Territory) (bool, error) {
		return t.Capture(p, now).Applied(), nil
	}
}

func noop(*territory.Territory) (bool, error) { return false, nil }

// Run exercises a fresh store from newStore in every subtest.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	ctx := context.Background()

	t.Run("FetchMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.FetchByTileID(ctx, "15_0_0")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("UpdateCreatesNeutral", func(t *testing.T) {
		s := newStore(t)
		tile := tileAt(43.6047, 1.4442)

		got, err := s.Update(ctx, tile, noop)
		require.NoError(t, err)
		assert.True(t, got.IsNeutral())
		assert.Equal(t, int64(1), got.Version)

		stored, err := s.FetchByTileID(ctx, tile.ID)
		require.NoError(t, err)
		assert.Equal(t, tile.ID, stored.TileID)
		assert.InDelta(t, tile.CenterLat, stored.CenterLat, 1e-9)
		assert.Equal(t, tile.Zoom, stored.Zoom)

		again, err := s.Update(ctx, tile, noop)
		require.NoError(t, err)
		assert.Equal(t, int64(1), again.Version)
	})

	t.Run("UpdateWritesChange", func(t *testing.T) {
		s := newStore(t)
		tile := tileAt(43.6047, 1.4442)

		got, err := s.Update(ctx, tile, capture(alice))
		require.NoError(t, err)
		assert.Equal(t, "alice", got.OwnerID)

		stored, err := s.FetchByTileID(ctx, tile.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", stored.OwnerID)
		assert.Equal(t, "Alice", stored.OwnerName)
		assert.Equal(t, 10, stored.Strength)
		assert.True(t, stored.CapturedAt.Equal(now))
		assert.True(t, stored.LastReinforcedAt.Equal(now))
		assert.Equal(t, 1, stored.CaptureCount)
		require.Len(t, stored.History, 1)
		assert.Equal(t, "alice", stored.History[0].PlayerID)
		assert.True(t, stored.History[0].CapturedAt.Equal(now))

		_, err = s.Update(ctx, tile, func(t *territory.Territory) (bool, error) {
			return t.Attack(bob, now).Applied(), nil
		})
		require.NoError(t, err)
		stored, err = s.FetchByTileID(ctx, tile.ID)
		require.NoError(t, err)
		assert.True(t, stored.IsContested)
		assert.Equal(t, "bob", stored.ContestedBy)
		assert.Equal(t, 5, stored.Strength)
		assert.Equal(t, got.Version+1, stored.Version)
	})

	t.Run("UpdateMutatorError", func(t *testing.T) {
		s := newStore(t)
		tile := tileAt(43.6047, 1.4442)
		boom := fmt.Errorf("boom")

		_, err := s.Update(ctx, tile, func(*territory.Territory) (bool, error) { return false, boom })
		assert.ErrorIs(t, err, boom)
	})

	t.Run("FetchOwnedByAndAll", func(t *testing.T) {
		s := newStore(t)
		a := tileAt(43.6047, 1.4442)
		b := tileAt(43.6100, 1.4500)
		c := tileAt(43.6200, 1.4600)

		for _, tile := range []grid.Tile{a, b} {
			_, err := s.Update(ctx, tile, capture(alice))
			require.NoError(t, err)
		}
		_, err := s.Update(ctx, c, capture(bob))
		require.NoError(t, err)

		owned, err := s.FetchOwnedBy(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, owned, 2)
		for _, o := range owned {
			assert.Equal(t, "alice", o.OwnerID)
		}

		none, err := s.FetchOwnedBy(ctx, "carol")
		require.NoError(t, err)
		assert.Empty(t, none)

		all, err := s.FetchAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		for i := 1; i < len(all); i++ {
			assert.Less(t, all[i-1].TileID, all[i].TileID)
		}
	})

	t.Run("UpsertAndDelete", func(t *testing.T) {
		s := newStore(t)
		tr := territory.New(tileAt(43.6047, 1.4442))
		tr.Capture(alice, now)

		require.NoError(t, s.Upsert(ctx, tr))
		stored, err := s.FetchByTileID(ctx, tr.TileID)
		require.NoError(t, err)
		assert.Equal(t, "alice", stored.OwnerID)

		tr.Reinforce(alice, now)
		require.NoError(t, s.Upsert(ctx, tr))
		stored, err = s.FetchByTileID(ctx, tr.TileID)
		require.NoError(t, err)
		assert.Equal(t, 20, stored.Strength)

		require.NoError(t, s.Delete(ctx, tr.TileID))
		_, err = s.FetchByTileID(ctx, tr.TileID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("DeleteNeutral", func(t *testing.T) {
		s := newStore(t)
		neutral := tileAt(43.6047, 1.4442)
		held := tileAt(43.6100, 1.4442)
		_, err := s.Update(ctx, neutral, noop)
		require.NoError(t, err)
		_, err = s.Update(ctx, held, capture(alice))
		require.NoError(t, err)

		deleted, err := s.DeleteNeutral(ctx, held.ID)
		require.NoError(t, err)
		assert.False(t, deleted)

		deleted, err = s.DeleteNeutral(ctx, neutral.ID)
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = s.DeleteNeutral(ctx, neutral.ID)
		require.NoError(t, err)
		assert.False(t, deleted)

		all, err := s.FetchAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, held.ID, all[0].TileID)
	})

	t.Run("UpsertRejectsInvalid", func(t *testing.T) {
		s := newStore(t)
		tr := territory.New(tileAt(43.6047, 1.4442))
		tr.Strength = 40

		assert.ErrorIs(t, s.Upsert(ctx, tr), territory.ErrInvalidState)
	})

	t.Run("ConcurrentCapture", func(t *testing.T) {
		s := newStore(t)
		tile := tileAt(43.6047, 1.4442)
		_, err := s.Update(ctx, tile, noop)
		require.NoError(t, err)

		const players = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners []string
		)
		for i := 0; i < players; i++ {
			p := territory.Player{ID: fmt.Sprintf("p%d", i), Name: fmt.Sprintf("P%d", i)}
			wg.Add(1)
			go func() {
				defer wg.Done()
				var applied bool
				_, err := storage.Transact(ctx, s, tile, func(t *territory.Territory) (bool, error) {
					applied = t.Capture(p, now).Applied()
					return applied, nil
				})
				if err != nil {
					return
				}
				if applied {
					mu.Lock()
					winners = append(winners, p.ID)
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		require.Len(t, winners, 1)
		stored, err := s.FetchByTileID(ctx, tile.ID)
		require.NoError(t, err)
		assert.Equal(t, winners[0], stored.OwnerID)
		assert.Equal(t, 1, stored.CaptureCount)
	})
}
