// Package profile keeps per-player progression: XP, level and territory
// counters. Levels are derived from XP through the progression table.
package profile

import (
	"context"
	"errors"
	"time"

	"github.com/stravx/conquest/internal/progression"
	"github.com/stravx/conquest/internal/territory"
)

var ErrNotFound = errors.New("profile not found")

type Profile struct {
	PlayerID            string    `json:"playerId"`
	Name                string    `json:"name"`
	TotalXP             int       `json:"totalXp"`
	Level               int       `json:"level"`
	TerritoriesOwned    int       `json:"territoriesOwned"`
	TerritoriesCaptured int       `json:"territoriesCaptured"`
	TerritoriesDefended int       `json:"territoriesDefended"`
	TerritoriesLost     int       `json:"territoriesLost"`
	Badges              []Badge   `json:"badges,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// New returns a level 1 profile for player.
func New(player territory.Player, now time.Time) Profile {
	return Profile{
		PlayerID:  player.ID,
		Name:      player.Name,
		Level:     1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Progress locates the profile inside its level.
func (p Profile) Progress() progression.LevelProgress {
	return progression.Progress(p.TotalXP)
}

// Delta is a set of counter increments applied atomically to one profile.
type Delta struct {
	XP       int
	Owned    int
	Captured int
	Defended int
	Lost     int
}

// Apply adds d to p, keeping counters non-negative, unlocking the badges the
// new counters earn and keeping the level in sync with the XP total.
func (p Profile) Apply(d Delta, now time.Time) Profile {
	p.TotalXP = max(0, p.TotalXP+d.XP)
	p.TerritoriesOwned = max(0, p.TerritoriesOwned+d.Owned)
	p.TerritoriesCaptured = max(0, p.TerritoriesCaptured+d.Captured)
	p.TerritoriesDefended = max(0, p.TerritoriesDefended+d.Defended)
	p.TerritoriesLost = max(0, p.TerritoriesLost+d.Lost)
	p.unlockBadges(now)
	p.Level = progression.Level(p.TotalXP)
	p.UpdatedAt = now
	return p
}

// Repository persists profiles.
type Repository interface {
	GetProfile(ctx context.Context, playerID string) (Profile, error)
	// EnsureProfile creates the profile for player when it does not exist.
	EnsureProfile(ctx context.Context, player territory.Player) (Profile, error)
	// ApplyDelta updates one profile atomically and returns it before and after.
	ApplyDelta(ctx context.Context, playerID string, d Delta) (before, after Profile, err error)
	ListProfiles(ctx context.Context) ([]Profile, error)
}

// LevelChange is reported when XP moves a player across a level threshold.
type LevelChange struct {
	PlayerID string `json:"playerId"`
	From     int    `json:"from"`
	To       int    `json:"to"`
	Rank     string `json:"rank"`
}

func levelChange(before, after Profile) *LevelChange {
	if after.Level == before.Level {
		return nil
	}
	return &LevelChange{
		PlayerID: after.PlayerID,
		From:     before.Level,
		To:       after.Level,
		Rank:     progression.RankTitle(after.Level),
	}
}
