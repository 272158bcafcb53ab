package geo

import (
	"errors"
	"math"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// Coordinates are WGS84 (EPSG:4326) degrees. Textual input is always "lon,lat"
// to match the GeoJSON axis order used by the map collaborators.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// EarthRadiusMeters is the mean earth radius used for great-circle distances.
const EarthRadiusMeters = 6_371_008.8

// Coordinate is a WGS84 latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate reports ErrInvalidCoordinates for NaN, infinite or out of range values.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return ErrInvalidCoordinates
	}
	if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}

// XY returns the coordinate as a simplefeatures XY (X=lon, Y=lat).
func (c Coordinate) XY() geom.XY {
	return geom.XY{X: c.Lon, Y: c.Lat}
}

// CoordinateFromString parses a string in the format "lon,lat" or "lon,lat,elev".
// Elevation is accepted and ignored.
func CoordinateFromString(coords string) (Coordinate, error) {
	coordsSplit := strings.Split(coords, ",")
	if len(coordsSplit) < 2 {
		return Coordinate{}, ErrInvalidCoordinates
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[0]), 64)
	if err != nil {
		return Coordinate{}, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[1]), 64)
	if err != nil {
		return Coordinate{}, ErrInvalidCoordinates
	}
	if len(coordsSplit) > 2 {
		if _, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[2]), 64); err != nil {
			return Coordinate{}, ErrInvalidCoordinates
		}
	}
	c := Coordinate{Lat: lat, Lon: lon}
	if err := c.Validate(); err != nil {
		return Coordinate{}, err
	}
	return c, nil
}

// Distance returns the haversine great-circle distance in meters.
func Distance(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// ToWebMercator projects a coordinate to EPSG:3857 meters.
func ToWebMercator(c Coordinate) geom.XY {
	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ := f(c.Lon, c.Lat, 0)
	return geom.XY{X: x, Y: y}
}

// PointFromCoordinate builds a 3857 point from a WGS84 coordinate.
func PointFromCoordinate(c Coordinate) geom.Point {
	return geom.NewPoint(geom.Coordinates{
		XY:   ToWebMercator(c),
		Type: geom.DimXY,
	})
}
