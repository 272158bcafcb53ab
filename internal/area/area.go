// Package area prepares and prunes the territories around a location.
package area

import (
	"context"
	"errors"
	"fmt"

	"github.com/stravx/conquest/internal/geo"
	"github.com/stravx/conquest/internal/grid"
	"github.com/stravx/conquest/internal/storage"
	"github.com/stravx/conquest/internal/territory"
)

const (
	// DefaultPrewarmRadius is the radius in meters that Prewarm fills.
	DefaultPrewarmRadius = 1000.0
	// DefaultKeepRadius is the radius in meters that Cleanup never prunes.
	DefaultKeepRadius = 5000.0
)

// PrewarmReport counts the tiles Prewarm looked at.
type PrewarmReport struct {
	Tiles   int `json:"tiles"`
	Created int `json:"created"`
}

// Prewarm creates a neutral record for every tile within radius meters of
// center that has none yet. A non-positive radius means DefaultPrewarmRadius.
func Prewarm(ctx context.Context, store storage.Store, center geo.Coordinate, radius float64, zoom int) (PrewarmReport, error) {
	if radius <= 0 {
		radius = DefaultPrewarmRadius
	}
	tiles, err := grid.TilesAround(center, radius, zoom)
	if err != nil {
		return PrewarmReport{}, err
	}

	report := PrewarmReport{Tiles: len(tiles)}
	for _, tile := range tiles {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		_, err := store.FetchByTileID(ctx, tile.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return report, fmt.Errorf("prewarm %s: %w", tile.ID, err)
		}
		if _, err := store.Update(ctx, tile, keep); err != nil {
			return report, fmt.Errorf("prewarm %s: %w", tile.ID, err)
		}
		report.Created++
	}
	return report, nil
}

func keep(*territory.Territory) (bool, error) { return false, nil }

// CleanupReport counts what Cleanup removed.
type CleanupReport struct {
	Examined int      `json:"examined"`
	Deleted  []string `json:"deleted,omitempty"`
}

// Cleanup deletes neutral territories whose center lies farther than
// keepRadius meters from center. Owned territories are never removed, even
// when captured between the scan and the delete. A non-positive keepRadius
// means DefaultKeepRadius.
func Cleanup(ctx context.Context, store storage.Store, center geo.Coordinate, keepRadius float64) (CleanupReport, error) {
	if err := center.Validate(); err != nil {
		return CleanupReport{}, err
	}
	if keepRadius <= 0 {
		keepRadius = DefaultKeepRadius
	}

	all, err := store.FetchAll(ctx)
	if err != nil {
		return CleanupReport{}, fmt.Errorf("cleanup: %w", err)
	}

	var report CleanupReport
	for _, t := range all {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Examined++
		if !t.IsNeutral() {
			continue
		}
		if geo.Distance(center, t.Tile().Center()) <= keepRadius {
			continue
		}
		deleted, err := store.DeleteNeutral(ctx, t.TileID)
		if err != nil {
			return report, fmt.Errorf("cleanup %s: %w", t.TileID, err)
		}
		if deleted {
			report.Deleted = append(report.Deleted, t.TileID)
		}
	}
	return report, nil
}
