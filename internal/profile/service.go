package profile

import (
	"context"
	"fmt"

	"github.com/stravx/conquest/internal/territory"
)

// Recorder receives XP and counter updates from capture sessions and the
// decay sweep.
type Recorder interface {
	AddXP(ctx context.Context, player territory.Player, xp int) (*LevelChange, error)
	RecordCapture(ctx context.Context, player territory.Player, xp int) (*LevelChange, error)
	RecordDefense(ctx context.Context, player territory.Player, xp int) (*LevelChange, error)
	RecordLoss(ctx context.Context, playerID string) error
}

// Service implements Recorder on top of a Repository.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

var _ Recorder = (*Service)(nil)

func (s *Service) apply(ctx context.Context, player territory.Player, d Delta) (*LevelChange, error) {
	if _, err := s.repo.EnsureProfile(ctx, player); err != nil {
		return nil, fmt.Errorf("ensure profile %s: %w", player.ID, err)
	}
	before, after, err := s.repo.ApplyDelta(ctx, player.ID, d)
	if err != nil {
		return nil, fmt.Errorf("update profile %s: %w", player.ID, err)
	}
	return levelChange(before, after), nil
}

// AddXP credits xp without touching territory counters.
func (s *Service) AddXP(ctx context.Context, player territory.Player, xp int) (*LevelChange, error) {
	if xp == 0 {
		return nil, nil
	}
	return s.apply(ctx, player, Delta{XP: xp})
}

// RecordCapture credits a captured tile, which the player now owns.
func (s *Service) RecordCapture(ctx context.Context, player territory.Player, xp int) (*LevelChange, error) {
	return s.apply(ctx, player, Delta{XP: xp, Owned: 1, Captured: 1})
}

// RecordDefense credits a successful defense of a contested tile.
func (s *Service) RecordDefense(ctx context.Context, player territory.Player, xp int) (*LevelChange, error) {
	return s.apply(ctx, player, Delta{XP: xp, Defended: 1})
}

// RecordLoss decrements the owned count of a player who lost a tile.
// Unknown players are ignored.
func (s *Service) RecordLoss(ctx context.Context, playerID string) error {
	_, _, err := s.repo.ApplyDelta(ctx, playerID, Delta{Owned: -1, Lost: 1})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("record loss for %s: %w", playerID, err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, playerID string) (Profile, error) {
	return s.repo.GetProfile(ctx, playerID)
}
