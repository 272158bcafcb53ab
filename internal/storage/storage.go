// Package storage defines the territory store and its error taxonomy.
// Backends live in the sub packages.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/stravx/conquest/internal/grid"
	"github.com/stravx/conquest/internal/territory"
)

// MaxRetries bounds Transact attempts on version conflicts.
const MaxRetries = 5

var (
	// ErrNotFound is returned by FetchByTileID for an unknown tile.
	ErrNotFound = errors.New("territory not found")
	// ErrConflict means the record changed between read and write.
	ErrConflict = errors.New("territory write conflict")
	// ErrUnavailable wraps any failure of the underlying storage engine.
	ErrUnavailable = errors.New("territory storage unavailable")
)

// Mutator edits a territory in place and reports whether it changed. It may
// run several times for one Transact call and must not have other effects.
type Mutator func(t *territory.Territory) (bool, error)

// Store is the interface all territory backends must satisfy.
type Store interface {
	// Lifecycle
	Init() error
	Close() error

	FetchByTileID(ctx context.Context, tileID string) (*territory.Territory, error)
	FetchOwnedBy(ctx context.Context, playerID string) ([]*territory.Territory, error)
	FetchAll(ctx context.Context) ([]*territory.Territory, error)
	Upsert(ctx context.Context, t *territory.Territory) error
	Delete(ctx context.Context, tileID string) error
	// DeleteNeutral removes the record only while it is neutral and reports
	// whether it did.
	DeleteNeutral(ctx context.Context, tileID string) (bool, error)

	// Update loads the record for tile, creating it neutral when missing,
	// applies fn to a copy and writes it back only if nobody else wrote in
	// between. A missing record is persisted even when fn reports no change.
	// A lost race returns ErrConflict.
	Update(ctx context.Context, tile grid.Tile, fn Mutator) (*territory.Territory, error)
}

// Transact runs Update and retries on ErrConflict, re-evaluating fn against
// the current record each time.
func Transact(ctx context.Context, s Store, tile grid.Tile, fn Mutator) (*territory.Territory, error) {
	var lastErr error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := s.Update(ctx, tile, fn)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("tile %s after %d attempts: %w", tile.ID, MaxRetries, lastErr)
}

// Unavailable wraps a backend error as ErrUnavailable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}
