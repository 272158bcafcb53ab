// Package grid quantizes WGS84 coordinates onto fixed-size square cells.
// Every function here is pure; the same coordinate and zoom always resolve
// to the same tile in any process.
package grid

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/stravx/conquest/internal/geo"
)

// DefaultZoom gives tiles roughly 275 m per side.
const DefaultZoom = 15

// metersPerDegree is the flat approximation used to size radius searches.
const metersPerDegree = 111_000

// containsEpsilon absorbs float error on shared tile edges.
const containsEpsilon = 1e-9

// MaxSearchRadius bounds TilesAround, in meters.
const MaxSearchRadius = 50_000

var (
	// ErrUnknownZoom is returned when a zoom level has no configured tile size.
	ErrUnknownZoom = errors.New("unknown zoom level")
	// ErrInvalidRadius is returned for a search radius that is not finite or
	// exceeds MaxSearchRadius.
	ErrInvalidRadius = errors.New("invalid search radius")
)

var tileSizes = map[int]float64{
	13: 0.01,
	14: 0.005,
	15: 0.0025,
	16: 0.00125,
	17: 0.000625,
}

// ConfigurationError reports a zoom level that is not part of the tile table.
type ConfigurationError struct {
	Zoom int
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("grid: zoom %d is not configured", e.Zoom)
}

func (e *ConfigurationError) Unwrap() error { return ErrUnknownZoom }

// TileSize returns the side length in degrees for zoom.
func TileSize(zoom int) (float64, error) {
	size, ok := tileSizes[zoom]
	if !ok {
		return 0, &ConfigurationError{Zoom: zoom}
	}
	return size, nil
}

// ValidateZoom is used at configuration load.
func ValidateZoom(zoom int) error {
	_, err := TileSize(zoom)
	return err
}

// Zooms returns the configured zoom levels in ascending order.
func Zooms() []int {
	zooms := make([]int, 0, len(tileSizes))
	for z := range tileSizes {
		zooms = append(zooms, z)
	}
	sort.Ints(zooms)
	return zooms
}

// Tile is an immutable grid cell identity.
type Tile struct {
	ID        string  `json:"tileId"`
	CenterLat float64 `json:"centerLat"`
	CenterLon float64 `json:"centerLon"`
	Zoom      int     `json:"zoom"`
}

// TileOf resolves the tile containing c at zoom.
func TileOf(c geo.Coordinate, zoom int) (Tile, error) {
	size, err := TileSize(zoom)
	if err != nil {
		return Tile{}, err
	}
	if err := c.Validate(); err != nil {
		return Tile{}, err
	}
	// Lat 90 and lon 180 belong to the last row and column.
	latIndex := min(int64(math.Floor(c.Lat/size)), int64(math.Round(90/size))-1)
	lonIndex := min(int64(math.Floor(c.Lon/size)), int64(math.Round(180/size))-1)
	return fromIndex(latIndex, lonIndex, zoom, size), nil
}

// MustTileOf is TileOf for tests and fixed inputs. It panics on error.
func MustTileOf(c geo.Coordinate, zoom int) Tile {
	t, err := TileOf(c, zoom)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseTileID rebuilds a tile from its identifier.
func ParseTileID(id string) (Tile, error) {
	parts := strings.Split(id, "_")
	if len(parts) != 3 {
		return Tile{}, fmt.Errorf("malformed tile id %q", id)
	}
	zoom, err := strconv.Atoi(parts[0])
	if err != nil {
		return Tile{}, fmt.Errorf("malformed tile id %q: %w", id, err)
	}
	size, err := TileSize(zoom)
	if err != nil {
		return Tile{}, err
	}
	latIndex, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Tile{}, fmt.Errorf("malformed tile id %q: %w", id, err)
	}
	lonIndex, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return Tile{}, fmt.Errorf("malformed tile id %q: %w", id, err)
	}
	return fromIndex(latIndex, lonIndex, zoom, size), nil
}

func fromIndex(latIndex, lonIndex int64, zoom int, size float64) Tile {
	return Tile{
		ID:        fmt.Sprintf("%d_%d_%d", zoom, latIndex, lonIndex),
		CenterLat: float64(latIndex)*size + size/2,
		CenterLon: float64(lonIndex)*size + size/2,
		Zoom:      zoom,
	}
}

// indices recovers the integer grid position from the center.
func (t Tile) indices() (latIndex, lonIndex int64) {
	size := t.Size()
	latIndex = int64(math.Round((t.CenterLat - size/2) / size))
	lonIndex = int64(math.Round((t.CenterLon - size/2) / size))
	return latIndex, lonIndex
}

// Center returns the tile center.
func (t Tile) Center() geo.Coordinate {
	return geo.Coordinate{Lat: t.CenterLat, Lon: t.CenterLon}
}

// Size returns the side length in degrees.
func (t Tile) Size() float64 {
	return tileSizes[t.Zoom]
}

// offset returns the tile dLat rows and dLon columns away. No wrapping is
// applied at the poles or the antimeridian.
func (t Tile) offset(dLat, dLon int64) Tile {
	latIndex, lonIndex := t.indices()
	return fromIndex(latIndex+dLat, lonIndex+dLon, t.Zoom, t.Size())
}

// Contains reports whether c falls inside the tile, edges inclusive.
func (t Tile) Contains(c geo.Coordinate) bool {
	half := t.Size()/2 + containsEpsilon
	return math.Abs(c.Lat-t.CenterLat) <= half && math.Abs(c.Lon-t.CenterLon) <= half
}

// Neighbors returns the 8 adjacent tiles, with t first when includeCenter is set.
func Neighbors(t Tile, includeCenter bool) []Tile {
	out := make([]Tile, 0, 9)
	if includeCenter {
		out = append(out, t)
	}
	for dLat := int64(-1); dLat <= 1; dLat++ {
		for dLon := int64(-1); dLon <= 1; dLon++ {
			if dLat == 0 && dLon == 0 {
				continue
			}
			out = append(out, t.offset(dLat, dLon))
		}
	}
	return out
}

// TilesAround returns every tile whose center lies within radiusMeters of the
// center of the tile containing c. The containing tile is always present.
// The result is sorted by tile id. A negative radius counts as zero.
func TilesAround(c geo.Coordinate, radiusMeters float64, zoom int) ([]Tile, error) {
	center, err := TileOf(c, zoom)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(radiusMeters) || math.IsInf(radiusMeters, 0) || radiusMeters > MaxSearchRadius {
		return nil, fmt.Errorf("%w: %v m", ErrInvalidRadius, radiusMeters)
	}
	radiusMeters = max(radiusMeters, 0)

	size := center.Size()
	halfLat := int64(math.Ceil(radiusMeters / (size * metersPerDegree)))
	// Columns narrow with latitude, so the longitude half-width widens to keep
	// the search square covering the whole circle.
	cosLat := math.Max(math.Cos(center.CenterLat*math.Pi/180), 0.01)
	halfLon := int64(math.Ceil(radiusMeters / (size * metersPerDegree * cosLat)))

	seen := map[string]struct{}{center.ID: {}}
	out := []Tile{center}
	for dLat := -halfLat; dLat <= halfLat; dLat++ {
		for dLon := -halfLon; dLon <= halfLon; dLon++ {
			candidate := center.offset(dLat, dLon)
			if _, ok := seen[candidate.ID]; ok {
				continue
			}
			if Distance(center, candidate) > radiusMeters {
				continue
			}
			seen[candidate.ID] = struct{}{}
			out = append(out, candidate)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Distance returns the great-circle distance in meters between tile centers.
func Distance(a, b Tile) float64 {
	return geo.Distance(a.Center(), b.Center())
}
