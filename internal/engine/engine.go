// Package engine owns the live capture sessions and exposes the territory
// operations as dispatcher commands.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/stravx/conquest/internal/area"
	"github.com/stravx/conquest/internal/config"
	"github.com/stravx/conquest/internal/decay"
	"github.com/stravx/conquest/internal/geo"
	"github.com/stravx/conquest/internal/grid"
	"github.com/stravx/conquest/internal/monitor"
	"github.com/stravx/conquest/internal/notify"
	"github.com/stravx/conquest/internal/profile"
	"github.com/stravx/conquest/internal/session"
	"github.com/stravx/conquest/internal/storage"
	"github.com/stravx/conquest/internal/territory"
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrPlayerActive   = errors.New("player already has an active session")
)

// SessionArchive keeps ended session summaries.
type SessionArchive interface {
	SaveSession(ctx context.Context, s session.Summary) error
}

// MetricWriter receives one point per ended session and per sweep.
type MetricWriter interface {
	WriteMetric(ctx context.Context, measurement string, tags map[string]string, fields map[string]any, at time.Time) error
}

const (
	MeasurementSession = "capture_session"
	MeasurementSweep   = "decay_sweep"
)

// Dependencies of an Engine. Store and Profiles are required.
type Dependencies struct {
	Store    storage.Store
	Profiles profile.Repository
	Notifier notify.Notifier
	Archive  SessionArchive
	Metrics  MetricWriter
	Game     config.GameConfig
	Logger   *slog.Logger
	Now      func() time.Time
}

// Engine is safe for concurrent use.
type Engine struct {
	deps     Dependencies
	profiles *profile.Service
	logger   *slog.Logger

	mu        sync.Mutex
	sessions  map[string]*session.Session
	byPlayer  map[string]string
	lastSweep decay.Report
}

func New(deps Dependencies) (*Engine, error) {
	if deps.Store == nil {
		return nil, session.ErrNoStore
	}
	if deps.Profiles == nil {
		return nil, errors.New("engine requires a profile repository")
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Discard
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Game.Zoom == 0 {
		deps.Game.Zoom = grid.DefaultZoom
	}
	if err := grid.ValidateZoom(deps.Game.Zoom); err != nil {
		return nil, err
	}
	return &Engine{
		deps:     deps,
		profiles: profile.NewService(deps.Profiles),
		logger:   deps.Logger.With("component", "engine"),
		sessions: make(map[string]*session.Session),
		byPlayer: make(map[string]string),
	}, nil
}

// Profiles exposes the profile service the sessions record into.
func (e *Engine) Profiles() *profile.Service {
	return e.profiles
}

// StartSession opens a capture session for player. A player has at most one
// active session.
func (e *Engine) StartSession(ctx context.Context, player territory.Player) (string, error) {
	if player.ID == "" {
		return "", errors.New("start session: empty player id")
	}
	if _, err := e.deps.Profiles.EnsureProfile(ctx, player); err != nil {
		return "", fmt.Errorf("start session for %s: %w", player.ID, err)
	}

	s, err := session.New(session.Dependencies{
		Store:       e.deps.Store,
		Profiles:    e.profiles,
		Notifier:    e.deps.Notifier,
		Policy:      e.deps.Game.Policy,
		Zoom:        e.deps.Game.Zoom,
		Logger:      e.deps.Logger,
		ReplayLimit: e.deps.Game.ReplayLimit,
		Now:         e.deps.Now,
	}, player)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if id, ok := e.byPlayer[player.ID]; ok {
		return "", fmt.Errorf("%w: %s (%s)", ErrPlayerActive, player.ID, id)
	}
	id := s.Start()
	e.sessions[id] = s
	e.byPlayer[player.ID] = id
	return id, nil
}

func (e *Engine) lookup(id string) (*session.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return s, nil
}

func (e *Engine) forget(s *session.Session, id string) {
	e.mu.Lock()
	delete(e.sessions, id)
	if e.byPlayer[s.Player().ID] == id {
		delete(e.byPlayer, s.Player().ID)
	}
	e.mu.Unlock()
}

// Sample feeds one location sample into a session.
func (e *Engine) Sample(ctx context.Context, id string, sample session.Sample) (*territory.Outcome, error) {
	s, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	return s.HandleSample(ctx, sample)
}

// EndSession replays what it can, closes the session and archives its
// summary. Archive and metric failures are logged, not returned.
func (e *Engine) EndSession(ctx context.Context, id string) (session.Summary, error) {
	s, err := e.lookup(id)
	if err != nil {
		return session.Summary{}, err
	}
	if _, err := s.Flush(ctx); err != nil {
		e.logger.WarnContext(ctx, "Replay before end incomplete", "session", id, "error", err)
	}
	sum, err := s.End()
	e.forget(s, id)
	if err != nil {
		return session.Summary{}, err
	}

	if e.deps.Archive != nil {
		if err := e.deps.Archive.SaveSession(ctx, sum); err != nil {
			e.logger.ErrorContext(ctx, "Failed to archive session", "session", id, "error", err)
		}
	}
	if e.deps.Metrics != nil {
		err := e.deps.Metrics.WriteMetric(ctx, MeasurementSession,
			map[string]string{"player_id": sum.PlayerID},
			map[string]any{
				"captured":  sum.TerritoriesCaptured,
				"xp":        sum.XPGained,
				"tiles":     sum.TilesVisited,
				"skipped":   sum.SkippedSamples,
				"pending":   sum.Pending,
				"level_ups": len(sum.LevelUps),
			}, sum.EndedAt)
		if err != nil {
			e.logger.WarnContext(ctx, "Failed to write session metric", "session", id, "error", err)
		}
	}
	return sum, nil
}

// Snapshot returns the running totals of an active session.
func (e *Engine) Snapshot(id string) (session.Summary, error) {
	s, err := e.lookup(id)
	if err != nil {
		return session.Summary{}, err
	}
	return s.Snapshot(), nil
}

// Sessions lists the active session ids in order.
func (e *Engine) Sessions() []string {
	e.mu.Lock()
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Sweep runs one decay sweep as of now.
func (e *Engine) Sweep(ctx context.Context, now time.Time) (decay.Report, error) {
	report, err := e.sweeper().Sweep(ctx, now)
	e.recordSweep(ctx, report)
	return report, err
}

func (e *Engine) recordSweep(ctx context.Context, report decay.Report) {
	e.mu.Lock()
	e.lastSweep = report
	e.mu.Unlock()

	if e.deps.Metrics == nil {
		return
	}
	if err := e.deps.Metrics.WriteMetric(ctx, MeasurementSweep, nil, map[string]any{
		"examined":    report.Examined,
		"decayed":     report.Decayed,
		"neutralized": len(report.Neutralized),
		"failed":      report.Failed,
	}, report.At); err != nil {
		e.logger.WarnContext(ctx, "Failed to write sweep metric", "error", err)
	}
}

func (e *Engine) sweeper() decay.Sweeper {
	return decay.Sweeper{
		Store:    e.deps.Store,
		Profiles: e.profiles,
		Notifier: e.deps.Notifier,
		Logger:   e.deps.Logger.With("component", "decay"),
	}
}

// ScheduleDecay sweeps every Game.DecayInterval until ctx is done.
func (e *Engine) ScheduleDecay(ctx context.Context) {
	interval := e.deps.Game.DecayInterval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	decay.Schedule(ctx, e.sweeper(), interval, func(r decay.Report, err error) {
		e.recordSweep(ctx, r)
		if err != nil {
			e.logger.ErrorContext(ctx, "Scheduled sweep failed", "error", err, "failed", r.Failed)
		}
	})
}

func (e *Engine) Prewarm(ctx context.Context, center geo.Coordinate, radius float64) (area.PrewarmReport, error) {
	if radius <= 0 {
		radius = e.deps.Game.PrewarmRadius
	}
	return area.Prewarm(ctx, e.deps.Store, center, radius, e.deps.Game.Zoom)
}

func (e *Engine) Cleanup(ctx context.Context, center geo.Coordinate, keep float64) (area.CleanupReport, error) {
	if keep <= 0 {
		keep = e.deps.Game.KeepRadius
	}
	return area.Cleanup(ctx, e.deps.Store, center, keep)
}

// Status samples the active sessions and the store for the monitor.
func (e *Engine) Status(ctx context.Context) (monitor.Status, error) {
	e.mu.Lock()
	st := monitor.Status{
		Time:           e.deps.Now().UTC(),
		ActiveSessions: len(e.sessions),
		LastSweepAt:    e.lastSweep.At,
		LastNeutral:    len(e.lastSweep.Neutralized),
	}
	for _, s := range e.sessions {
		st.PendingSamples += s.Pending()
	}
	e.mu.Unlock()

	all, err := e.deps.Store.FetchAll(ctx)
	if err != nil {
		return st, err
	}
	st.Territories = len(all)
	for _, t := range all {
		if !t.IsNeutral() {
			st.Owned++
		}
	}
	return st, nil
}

// Close ends every active session so their summaries are archived.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error
	for _, id := range e.Sessions() {
		if _, err := e.EndSession(ctx, id); err != nil && !errors.Is(err, ErrUnknownSession) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
