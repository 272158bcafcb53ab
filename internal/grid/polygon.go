package grid

import (
	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/stravx/conquest/internal/geo"
)

// Bounds returns the south-west and north-east corners of the tile.
func (t Tile) Bounds() (sw, ne geo.Coordinate) {
	half := t.Size() / 2
	sw = geo.Coordinate{Lat: t.CenterLat - half, Lon: t.CenterLon - half}
	ne = geo.Coordinate{Lat: t.CenterLat + half, Lon: t.CenterLon + half}
	return sw, ne
}

// Polygon returns the tile outline in WGS84 (X=lon, Y=lat), counter-clockwise.
func (t Tile) Polygon() geom.Polygon {
	return t.ring(func(c geo.Coordinate) geom.XY { return c.XY() })
}

// MercatorPolygon returns the tile outline projected to EPSG:3857.
func (t Tile) MercatorPolygon() geom.Polygon {
	return t.ring(geo.ToWebMercator)
}

func (t Tile) ring(project func(geo.Coordinate) geom.XY) geom.Polygon {
	sw, ne := t.Bounds()
	corners := []geo.Coordinate{
		sw,
		{Lat: sw.Lat, Lon: ne.Lon},
		ne,
		{Lat: ne.Lat, Lon: sw.Lon},
		sw,
	}
	flat := make([]float64, 0, len(corners)*2)
	for _, c := range corners {
		xy := project(c)
		flat = append(flat, xy.X, xy.Y)
	}
	ls := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	return geom.NewPolygon([]geom.LineString{ls})
}
