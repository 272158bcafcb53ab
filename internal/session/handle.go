package session

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/stravx/conquest/internal/grid"
	"github.com/stravx/conquest/internal/profile"
	"github.com/stravx/conquest/internal/storage"
	"github.com/stravx/conquest/internal/territory"
)

// HandleSample applies one location sample. It returns the outcome of the
// visit, or nil when the sample was skipped, deduplicated or queued for
// replay. Exhausted conflicts surface as storage.ErrConflict and leave the
// tile eligible for a later sample.
func (s *Session) HandleSample(ctx context.Context, sample Sample) (*territory.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Active {
		return nil, ErrSessionNotActive
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !sample.AccuracyOK {
		s.skip(ctx, "accuracy")
		return nil, nil
	}
	if err := sample.Coordinate.Validate(); err != nil {
		s.skip(ctx, "coordinates")
		return nil, nil
	}

	tile, err := grid.TileOf(sample.Coordinate, s.deps.Zoom)
	if err != nil {
		s.skip(ctx, "coordinates")
		return nil, nil
	}
	s.ins.samples.Add(ctx, 1)

	if _, seen := s.visited[tile.ID]; seen {
		return nil, nil
	}
	s.visited[tile.ID] = struct{}{}

	v := visit{tile: tile, at: sample.Timestamp}
	if v.at.IsZero() {
		v.at = s.deps.Now()
	}

	out, err := s.apply(ctx, v)
	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, storage.ErrUnavailable):
		s.queue(ctx, v, err)
		return nil, nil
	default:
		delete(s.visited, tile.ID)
		return nil, err
	}
}

func (s *Session) skip(ctx context.Context, reason string) {
	s.skipped++
	s.ins.skipped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (s *Session) queue(ctx context.Context, v visit, cause error) {
	s.pending.Push(v)
	s.ins.queued.Add(ctx, 1)
	s.logger.WarnContext(ctx, "Storage unavailable, visit queued for replay",
		"tileId", v.tile.ID, "pending", s.pending.Len(), "error", cause)
}

// apply runs the visit through the store. The mutator is re-run on every
// retry so the branch always matches the current record.
func (s *Session) apply(ctx context.Context, v visit) (*territory.Outcome, error) {
	var out territory.Outcome
	_, err := storage.Transact(ctx, s.deps.Store, v.tile, func(t *territory.Territory) (bool, error) {
		out = territory.Visit(t, s.player, v.at, s.deps.Policy)
		return out.Changed(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("visit %s: %w", v.tile.ID, err)
	}
	s.record(ctx, out)
	return &out, nil
}

// record folds an applied outcome into the session and forwards it to the
// collaborators. Collaborator failures are logged; the territory write has
// already been committed.
func (s *Session) record(ctx context.Context, out territory.Outcome) {
	s.outcomes = append(s.outcomes, out)
	s.xp += out.XP
	if out.XP > 0 {
		s.ins.xp.Add(ctx, int64(out.XP))
	}
	if out.Captured {
		s.captured++
		s.ins.captured.Add(ctx, 1)
	}

	for _, e := range out.Events {
		if err := s.deps.Notifier.Notify(ctx, e); err != nil {
			s.logger.WarnContext(ctx, "Failed to deliver territory event", "kind", string(e.Kind), "tileId", e.TileID, "error", err)
		}
	}

	if s.deps.Profiles == nil {
		return
	}
	if out.Lost != nil {
		if err := s.deps.Profiles.RecordLoss(ctx, out.Lost.OwnerID); err != nil {
			s.logger.WarnContext(ctx, "Failed to record territory loss", "owner", out.Lost.OwnerID, "error", err)
		}
	}

	var err error
	var change *profile.LevelChange
	switch {
	case out.Captured:
		change, err = s.deps.Profiles.RecordCapture(ctx, s.player, out.XP)
	case out.Defended:
		change, err = s.deps.Profiles.RecordDefense(ctx, s.player, out.XP)
	case out.XP > 0:
		change, err = s.deps.Profiles.AddXP(ctx, s.player, out.XP)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to update profile", "xp", out.XP, "error", err)
		return
	}
	if change != nil {
		s.levelUps = append(s.levelUps, *change)
		s.logger.InfoContext(ctx, "Level up", "from", change.From, "to", change.To, "rank", change.Rank)
	}
}

// Flush replays visits queued while storage was unavailable. It stops at the
// first failure and keeps the remaining visits queued.
func (s *Session) Flush(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Active {
		return 0, ErrSessionNotActive
	}

	replayed := 0
	for {
		if err := ctx.Err(); err != nil {
			return replayed, err
		}
		v, ok := s.pending.Pop()
		if !ok {
			return replayed, nil
		}
		if _, err := s.apply(ctx, v); err != nil {
			s.pending.PushFront(v)
			return replayed, err
		}
		replayed++
	}
}

// Pending returns the number of visits waiting for replay.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return 0
	}
	return s.pending.Len()
}

// Run consumes samples until the channel closes, then ends the session. When
// ctx is cancelled the session is aborted and only ctx.Err() is returned.
// Per-sample errors are logged and do not stop the run.
func (s *Session) Run(ctx context.Context, samples <-chan Sample) (Summary, error) {
	if s.State() != Active {
		s.Start()
	}
	for {
		select {
		case <-ctx.Done():
			s.Abort()
			return Summary{}, ctx.Err()
		case sample, ok := <-samples:
			if !ok {
				if _, err := s.Flush(ctx); err != nil {
					s.logger.WarnContext(ctx, "Replay before end failed", "pending", s.Pending(), "error", err)
				}
				return s.End()
			}
			if _, err := s.HandleSample(ctx, sample); err != nil {
				if ctx.Err() != nil {
					s.Abort()
					return Summary{}, ctx.Err()
				}
				s.logger.WarnContext(ctx, "Sample failed", "error", err)
			}
		}
	}
}
