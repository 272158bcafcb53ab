package geo

import (
	"encoding/json"
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"
)

// ParsePolyline parses a JSON array of coordinates into a geom.LineString.
// Input format: "[[lon1,lat1],[lon2,lat2],...]"
func ParsePolyline(input string) (geom.LineString, error) {
	route, err := ParseRoute(input)
	if err != nil {
		return geom.LineString{}, err
	}
	if len(route) < 2 {
		return geom.LineString{}, fmt.Errorf("polyline must have at least 2 points, got %d", len(route))
	}

	flatCoords := make([]float64, 0, len(route)*2)
	for _, c := range route {
		flatCoords = append(flatCoords, c.Lon, c.Lat)
	}
	return geom.NewLineString(geom.NewSequence(flatCoords, geom.DimXY)), nil
}

// ParseRoute parses a JSON array of [lon,lat] pairs into coordinates.
// Every point must be a valid WGS84 coordinate.
func ParseRoute(input string) ([]Coordinate, error) {
	var coords [][]float64
	if err := json.Unmarshal([]byte(input), &coords); err != nil {
		return nil, fmt.Errorf("failed to parse route JSON: %w", err)
	}

	route := make([]Coordinate, len(coords))
	for i, coord := range coords {
		if len(coord) < 2 {
			return nil, fmt.Errorf("coordinate %d has insufficient values", i)
		}
		c := Coordinate{Lat: coord[1], Lon: coord[0]}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("coordinate %d: %w", i, err)
		}
		route[i] = c
	}
	return route, nil
}

// RouteLength sums the great-circle distance between consecutive points.
func RouteLength(route []Coordinate) float64 {
	var total float64
	for i := 1; i < len(route); i++ {
		total += Distance(route[i-1], route[i])
	}
	return total
}
