package profile

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/stravx/conquest/internal/territory"
)

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// MemoryRepository keeps profiles in process memory.
type MemoryRepository struct {
	mu       sync.Mutex
	profiles map[string]Profile
	now      func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		profiles: make(map[string]Profile),
		now:      time.Now,
	}
}

func (r *MemoryRepository) GetProfile(_ context.Context, playerID string) (Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[playerID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepository) EnsureProfile(_ context.Context, player territory.Player) (Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.profiles[player.ID]; ok {
		return p, nil
	}
	p := New(player, r.now())
	r.profiles[player.ID] = p
	return p, nil
}

func (r *MemoryRepository) ApplyDelta(_ context.Context, playerID string, d Delta) (Profile, Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	before, ok := r.profiles[playerID]
	if !ok {
		return Profile{}, Profile{}, ErrNotFound
	}
	after := before.Apply(d, r.now())
	r.profiles[playerID] = after
	return before, after, nil
}

func (r *MemoryRepository) ListProfiles(_ context.Context) ([]Profile, error) {
	r.mu.Lock()
	out := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out, nil
}
