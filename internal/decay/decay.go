// Package decay drains the strength of territories that nobody reinforces.
package decay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stravx/conquest/internal/notify"
	"github.com/stravx/conquest/internal/storage"
	"github.com/stravx/conquest/internal/territory"
)

// LossRecorder is the part of the profile collaborator the sweep needs.
type LossRecorder interface {
	RecordLoss(ctx context.Context, playerID string) error
}

// Report summarizes one sweep.
type Report struct {
	At          time.Time        `json:"at"`
	Examined    int              `json:"examined"`
	Decayed     int              `json:"decayed"`
	Neutralized []territory.Loss `json:"neutralized,omitempty"`
	Failed      int              `json:"failed"`
}

// Sweeper applies decay to every owned territory through the store's atomic
// update path. Profiles and Notifier may be nil.
type Sweeper struct {
	Store    storage.Store
	Profiles LossRecorder
	Notifier notify.Notifier
	Logger   *slog.Logger
}

// Sweep decays every owned territory as of now. A second sweep on the same
// UTC day changes nothing. Per-tile failures are counted and joined into the
// returned error while the sweep carries on.
func (s Sweeper) Sweep(ctx context.Context, now time.Time) (Report, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := s.Notifier
	if notifier == nil {
		notifier = notify.Discard
	}

	report := Report{At: now.UTC()}
	all, err := s.Store.FetchAll(ctx)
	if err != nil {
		return report, fmt.Errorf("decay sweep: %w", err)
	}

	var errs []error
	for _, t := range all {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if t.IsNeutral() {
			continue
		}
		report.Examined++

		var result territory.Result
		_, err := storage.Transact(ctx, s.Store, t.Tile(), func(cur *territory.Territory) (bool, error) {
			result = cur.Decay(now)
			return result.Applied(), nil
		})
		if err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("decay %s: %w", t.TileID, err))
			continue
		}
		if !result.Applied() {
			continue
		}
		report.Decayed++

		for _, e := range result.Events {
			if err := notifier.Notify(ctx, e); err != nil {
				logger.WarnContext(ctx, "Failed to deliver territory event", "kind", string(e.Kind), "tileId", e.TileID, "error", err)
			}
		}

		if result.Vacated() {
			loss := territory.Loss{TileID: result.TileID, OwnerID: result.Before.Owner.ID}
			report.Neutralized = append(report.Neutralized, loss)
			if s.Profiles != nil {
				if err := s.Profiles.RecordLoss(ctx, loss.OwnerID); err != nil {
					logger.WarnContext(ctx, "Failed to record territory loss", "owner", loss.OwnerID, "error", err)
				}
			}
		}
	}

	logger.InfoContext(ctx, "Decay sweep finished",
		"examined", report.Examined,
		"decayed", report.Decayed,
		"neutralized", len(report.Neutralized),
		"failed", report.Failed,
	)
	return report, errors.Join(errs...)
}

// Sweep runs a sweep with the given collaborators.
func Sweep(ctx context.Context, store storage.Store, now time.Time, profiles LossRecorder, notifier notify.Notifier) (Report, error) {
	return Sweeper{Store: store, Profiles: profiles, Notifier: notifier}.Sweep(ctx, now)
}

// Schedule runs a sweep every interval until ctx is done. Each report is passed
// to done, which may be nil.
func Schedule(ctx context.Context, s Sweeper, interval time.Duration, done func(Report, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			report, err := s.Sweep(ctx, now)
			if done != nil {
				done(report, err)
			}
		}
	}
}
