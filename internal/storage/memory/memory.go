// Package memory implements storage.Store in process memory with one lock
// per tile.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/stravx/conquest/internal/cache"
	"github.com/stravx/conquest/internal/grid"
	"github.com/stravx/conquest/internal/storage"
	"github.com/stravx/conquest/internal/territory"
)

// Backend keeps territories in a map keyed by tile id.
type Backend struct {
	mu          sync.RWMutex
	territories map[string]*territory.Territory
	locks       *cache.TileLocks
}

// New creates a new memory backend
func New() *Backend {
	return &Backend{
		territories: make(map[string]*territory.Territory),
		locks:       cache.NewTileLocks(),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

func (b *Backend) FetchByTileID(_ context.Context, tileID string) (*territory.Territory, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.territories[tileID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return t.Clone(), nil
}

func (b *Backend) FetchOwnedBy(_ context.Context, playerID string) ([]*territory.Territory, error) {
	return b.collect(func(t *territory.Territory) bool { return t.OwnerID == playerID && playerID != "" }), nil
}

func (b *Backend) FetchAll(_ context.Context) ([]*territory.Territory, error) {
	return b.collect(func(*territory.Territory) bool { return true }), nil
}

// collect returns sorted copies of the records matching keep.
func (b *Backend) collect(keep func(*territory.Territory) bool) []*territory.Territory {
	b.mu.RLock()
	out := make([]*territory.Territory, 0, len(b.territories))
	for _, t := range b.territories {
		if keep(t) {
			out = append(out, t.Clone())
		}
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TileID < out[j].TileID })
	return out
}

// Upsert stores t unconditionally and bumps its version.
func (b *Backend) Upsert(_ context.Context, t *territory.Territory) error {
	if err := t.Validate(); err != nil {
		return err
	}
	unlock := b.locks.Lock(t.TileID)
	defer unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	stored := t.Clone()
	if prev, ok := b.territories[t.TileID]; ok {
		stored.Version = prev.Version + 1
	} else {
		stored.Version = 1
	}
	b.territories[t.TileID] = stored
	t.Version = stored.Version
	return nil
}

func (b *Backend) Delete(_ context.Context, tileID string) error {
	unlock := b.locks.Lock(tileID)
	defer unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.territories, tileID)
	return nil
}

func (b *Backend) DeleteNeutral(_ context.Context, tileID string) (bool, error) {
	unlock := b.locks.Lock(tileID)
	defer unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.territories[tileID]
	if !ok || !t.IsNeutral() {
		return false, nil
	}
	delete(b.territories, tileID)
	return true, nil
}

// Update holds the tile lock for the whole read-modify-write, so it never
// reports a conflict.
func (b *Backend) Update(ctx context.Context, tile grid.Tile, fn storage.Mutator) (*territory.Territory, error) {
	unlock := b.locks.Lock(tile.ID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	current, exists := b.territories[tile.ID]
	b.mu.RUnlock()

	var work *territory.Territory
	if exists {
		work = current.Clone()
	} else {
		work = territory.New(tile)
	}

	changed, err := fn(work)
	if err != nil {
		return nil, err
	}
	if !changed && exists {
		return current.Clone(), nil
	}
	if err := work.Validate(); err != nil {
		return nil, err
	}

	work.Version++
	b.mu.Lock()
	b.territories[tile.ID] = work
	b.mu.Unlock()
	return work.Clone(), nil
}

// Len returns the number of stored territories.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.territories)
}
