package area

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stravx/conquest/internal/geo"
	"github.com/stravx/conquest/internal/grid"
	"github.com/stravx/conquest/internal/storage/memory"
	"github.com/stravx/conquest/internal/territory"
)

var (
	lyon  = geo.Coordinate{Lat: 45.764, Lon: 4.8357}
	alice = territory.Player{ID: "alice", Name: "Alice"}
	now   = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
)

func TestPrewarm(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	report, err := Prewarm(ctx, store, lyon, 300, grid.DefaultZoom)
	require.NoError(t, err)
	assert.Greater(t, report.Tiles, 1)
	assert.Equal(t, report.Tiles, report.Created)
	assert.Equal(t, report.Tiles, store.Len())

	all, err := store.FetchAll(ctx)
	require.NoError(t, err)
	for _, tr := range all {
		assert.True(t, tr.IsNeutral())
	}

	again, err := Prewarm(ctx, store, lyon, 300, grid.DefaultZoom)
	require.NoError(t, err)
	assert.Equal(t, report.Tiles, again.Tiles)
	assert.Zero(t, again.Created)
}

func TestPrewarm_KeepsExisting(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	home := grid.MustTileOf(lyon, grid.DefaultZoom)
	_, err := store.Update(ctx, home, func(tr *territory.Territory) (bool, error) {
		return tr.Capture(alice, now).Applied(), nil
	})
	require.NoError(t, err)

	_, err = Prewarm(ctx, store, lyon, 0, grid.DefaultZoom)
	require.NoError(t, err)

	tr, err := store.FetchByTileID(ctx, home.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", tr.OwnerID)
}

func TestPrewarm_Errors(t *testing.T) {
	_, err := Prewarm(context.Background(), memory.New(), lyon, 100, 3)
	assert.ErrorIs(t, err, grid.ErrUnknownZoom)

	_, err = Prewarm(context.Background(), memory.New(), geo.Coordinate{Lat: 100}, 100, grid.DefaultZoom)
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinates)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Prewarm(ctx, memory.New(), lyon, 100, grid.DefaultZoom)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCleanup(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	near := grid.MustTileOf(lyon, grid.DefaultZoom)
	far := grid.MustTileOf(geo.Coordinate{Lat: 45.90, Lon: 4.8357}, grid.DefaultZoom)
	farOwned := grid.MustTileOf(geo.Coordinate{Lat: 45.95, Lon: 4.8357}, grid.DefaultZoom)

	for _, tile := range []grid.Tile{near, far} {
		_, err := store.Update(ctx, tile, keep)
		require.NoError(t, err)
	}
	_, err := store.Update(ctx, farOwned, func(tr *territory.Territory) (bool, error) {
		return tr.Capture(alice, now).Applied(), nil
	})
	require.NoError(t, err)

	report, err := Cleanup(ctx, store, lyon, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Examined)
	assert.Equal(t, []string{far.ID}, report.Deleted)
	assert.Equal(t, 2, store.Len())

	_, err = store.FetchByTileID(ctx, farOwned.ID)
	assert.NoError(t, err)
}

func TestCleanup_InvalidCenter(t *testing.T) {
	_, err := Cleanup(context.Background(), memory.New(), geo.Coordinate{Lat: -91}, 10)
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinates)
}
