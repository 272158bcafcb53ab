package grid

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stravx/conquest/internal/geo"
)

var berlin = geo.Coordinate{Lat: 52.5205, Lon: 13.4055}

func TestTileOf_Default(t *testing.T) {
	tile, err := TileOf(berlin, DefaultZoom)
	require.NoError(t, err)

	assert.Equal(t, "15_21008_5362", tile.ID)
	assert.InDelta(t, 52.52125, tile.CenterLat, 1e-9)
	assert.InDelta(t, 13.40625, tile.CenterLon, 1e-9)
	assert.Equal(t, 15, tile.Zoom)
}

func TestTileOf_NegativeCoordinates(t *testing.T) {
	tile, err := TileOf(geo.Coordinate{Lat: -33.8688, Lon: -0.0001}, DefaultZoom)
	require.NoError(t, err)

	assert.Equal(t, "15_-13548_-1", tile.ID)
	assert.InDelta(t, -0.00125, tile.CenterLon, 1e-9)
}

func TestTileOf_UnknownZoom(t *testing.T) {
	_, err := TileOf(berlin, 12)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownZoom)
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, 12, cfgErr.Zoom)
}

func TestTileOf_InvalidCoordinate(t *testing.T) {
	_, err := TileOf(geo.Coordinate{Lat: 95, Lon: 0}, DefaultZoom)
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinates)
}

func TestMustTileOf_Panics(t *testing.T) {
	assert.Panics(t, func() { MustTileOf(berlin, 99) })
	assert.NotPanics(t, func() { MustTileOf(berlin, 17) })
}

func TestTileOf_DeterministicAndContains(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, zoom := range Zooms() {
		for i := 0; i < 500; i++ {
			c := geo.Coordinate{Lat: rng.Float64()*170 - 85, Lon: rng.Float64()*358 - 179}
			a := MustTileOf(c, zoom)
			b := MustTileOf(c, zoom)
			require.Equal(t, a, b)
			require.True(t, a.Contains(c), "tile %s should contain %+v", a.ID, c)
		}
	}
}

func TestContains_OutsideTile(t *testing.T) {
	tile := MustTileOf(berlin, DefaultZoom)
	assert.False(t, tile.Contains(geo.Coordinate{Lat: tile.CenterLat + tile.Size(), Lon: tile.CenterLon}))
	assert.True(t, tile.Contains(tile.Center()))
}

func TestParseTileID_RoundTrip(t *testing.T) {
	tile := MustTileOf(berlin, 16)
	parsed, err := ParseTileID(tile.ID)

	require.NoError(t, err)
	assert.Equal(t, tile.ID, parsed.ID)
	assert.InDelta(t, tile.CenterLat, parsed.CenterLat, 1e-12)
	assert.InDelta(t, tile.CenterLon, parsed.CenterLon, 1e-12)
}

func TestParseTileID_Invalid(t *testing.T) {
	for _, id := range []string{"", "15_1", "x_1_2", "15_a_2", "15_1_b"} {
		_, err := ParseTileID(id)
		assert.Error(t, err, id)
	}
	_, err := ParseTileID("3_1_2")
	assert.ErrorIs(t, err, ErrUnknownZoom)
}

func TestNeighbors(t *testing.T) {
	tile := MustTileOf(berlin, DefaultZoom)

	n := Neighbors(tile, false)
	require.Len(t, n, 8)
	ids := map[string]bool{}
	for _, nb := range n {
		assert.Equal(t, tile.Zoom, nb.Zoom)
		assert.NotEqual(t, tile.ID, nb.ID)
		ids[nb.ID] = true
	}
	assert.Len(t, ids, 8)

	withCenter := Neighbors(tile, true)
	require.Len(t, withCenter, 9)
	assert.Equal(t, tile.ID, withCenter[0].ID)
}

func TestNeighbors_Adjacent(t *testing.T) {
	tile := MustTileOf(berlin, DefaultZoom)
	for _, nb := range Neighbors(tile, false) {
		d := Distance(tile, nb)
		assert.Greater(t, d, 150.0)
		assert.Less(t, d, 420.0)
	}
}

func TestTilesAround_ZeroRadius(t *testing.T) {
	tiles, err := TilesAround(berlin, 0, DefaultZoom)
	require.NoError(t, err)

	require.Len(t, tiles, 1)
	assert.Equal(t, MustTileOf(berlin, DefaultZoom).ID, tiles[0].ID)
}

func TestTilesAround_InvalidRadius(t *testing.T) {
	for _, r := range []float64{math.Inf(1), math.Inf(-1), math.NaN(), MaxSearchRadius + 1, 1e300} {
		tiles, err := TilesAround(berlin, r, DefaultZoom)
		assert.ErrorIs(t, err, ErrInvalidRadius, "radius %v", r)
		assert.Nil(t, tiles)
	}

	tiles, err := TilesAround(berlin, -5, DefaultZoom)
	require.NoError(t, err)
	assert.Len(t, tiles, 1)
}

func TestTileOf_GridEdges(t *testing.T) {
	for zoom := range tileSizes {
		size := tileSizes[zoom]
		for _, c := range []geo.Coordinate{
			{Lat: 90, Lon: 180},
			{Lat: -90, Lon: -180},
			{Lat: 90, Lon: 0},
			{Lat: 0, Lon: 180},
		} {
			tile, err := TileOf(c, zoom)
			require.NoError(t, err)
			assert.True(t, tile.Contains(c), "zoom %d %v -> %s", zoom, c, tile.ID)
			assert.LessOrEqual(t, tile.CenterLat, 90-size/2+1e-9)
			assert.LessOrEqual(t, tile.CenterLon, 180-size/2+1e-9)
			assert.GreaterOrEqual(t, tile.CenterLat, -90+size/2-1e-9)
			assert.GreaterOrEqual(t, tile.CenterLon, -180+size/2-1e-9)
		}
	}

	north := MustTileOf(geo.Coordinate{Lat: 90, Lon: 0}, DefaultZoom)
	below := MustTileOf(geo.Coordinate{Lat: 90 - tileSizes[DefaultZoom]/2, Lon: 0}, DefaultZoom)
	assert.Equal(t, below.ID, north.ID)
}

func TestTilesAround_RadiusAccurate(t *testing.T) {
	const radius = 1000.0
	center := MustTileOf(berlin, DefaultZoom)

	tiles, err := TilesAround(berlin, radius, DefaultZoom)
	require.NoError(t, err)

	found := false
	seen := map[string]bool{}
	for i, tile := range tiles {
		assert.LessOrEqual(t, Distance(center, tile), radius)
		assert.False(t, seen[tile.ID], "duplicate %s", tile.ID)
		seen[tile.ID] = true
		if tile.ID == center.ID {
			found = true
		}
		if i > 0 {
			assert.Less(t, tiles[i-1].ID, tile.ID)
		}
	}
	assert.True(t, found)

	// The square search window holds 9x13 tiles; the circle keeps about half.
	assert.Less(t, len(tiles), 81)
	assert.Greater(t, len(tiles), 50)
}

func TestTilesAround_Complete(t *testing.T) {
	const radius = 1200.0
	center := MustTileOf(berlin, DefaultZoom)
	tiles, err := TilesAround(berlin, radius, DefaultZoom)
	require.NoError(t, err)

	got := map[string]bool{}
	for _, tile := range tiles {
		got[tile.ID] = true
	}
	// Every tile in a wide square that is within range must be returned.
	for dLat := int64(-8); dLat <= 8; dLat++ {
		for dLon := int64(-8); dLon <= 8; dLon++ {
			candidate := center.offset(dLat, dLon)
			if Distance(center, candidate) <= radius {
				assert.True(t, got[candidate.ID], "missing %s", candidate.ID)
			}
		}
	}
}

func TestTilesAround_UnknownZoom(t *testing.T) {
	_, err := TilesAround(berlin, 100, 20)
	assert.ErrorIs(t, err, ErrUnknownZoom)
}

func TestValidateZoom(t *testing.T) {
	for _, z := range []int{13, 14, 15, 16, 17} {
		assert.NoError(t, ValidateZoom(z))
	}
	assert.ErrorIs(t, ValidateZoom(18), ErrUnknownZoom)
	assert.Equal(t, []int{13, 14, 15, 16, 17}, Zooms())
}

func TestPolygon(t *testing.T) {
	tile := MustTileOf(berlin, DefaultZoom)
	poly := tile.Polygon()

	ring := poly.ExteriorRing().Coordinates()
	require.Equal(t, 5, ring.Length())
	sw, ne := tile.Bounds()
	assert.InDelta(t, sw.Lon, ring.GetXY(0).X, 1e-12)
	assert.InDelta(t, sw.Lat, ring.GetXY(0).Y, 1e-12)
	assert.InDelta(t, ne.Lon, ring.GetXY(2).X, 1e-12)
	assert.InDelta(t, ne.Lat, ring.GetXY(2).Y, 1e-12)
	assert.InDelta(t, tile.Size()*tile.Size(), poly.Area(), 1e-12)
}

func TestMercatorPolygon(t *testing.T) {
	tile := MustTileOf(geo.Coordinate{Lat: 0.001, Lon: 0.001}, DefaultZoom)
	ring := tile.MercatorPolygon().ExteriorRing().Coordinates()

	require.Equal(t, 5, ring.Length())
	// 0.0025 degrees at the equator is about 278 m.
	width := ring.GetXY(1).X - ring.GetXY(0).X
	assert.InDelta(t, 278.3, width, 1)
}
