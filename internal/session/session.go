// Package session turns one activity's location samples into territory
// transitions for a single player.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stravx/conquest/internal/geo"
	"github.com/stravx/conquest/internal/grid"
	"github.com/stravx/conquest/internal/notify"
	"github.com/stravx/conquest/internal/profile"
	"github.com/stravx/conquest/internal/queue"
	"github.com/stravx/conquest/internal/storage"
	"github.com/stravx/conquest/internal/territory"
)

// DefaultReplayLimit bounds the visits kept while storage is unavailable.
const DefaultReplayLimit = 1024

var (
	ErrSessionNotActive = errors.New("capture session not active")
	ErrNoStore          = errors.New("capture session requires a territory store")
)

// State is the session lifecycle: Idle, then Active, then Ended.
type State int

const (
	Idle State = iota
	Active
	Ended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Ended:
		return "ended"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Sample is one position reported by the location source. AccuracyOK is
// computed upstream; samples without it are skipped.
type Sample struct {
	Coordinate geo.Coordinate `json:"coordinate"`
	Timestamp  time.Time      `json:"timestamp"`
	AccuracyOK bool           `json:"accuracyOk"`
}

// Summary is reported when a session ends.
type Summary struct {
	SessionID           string                `json:"sessionId"`
	PlayerID            string                `json:"playerId"`
	StartedAt           time.Time             `json:"startedAt"`
	EndedAt             time.Time             `json:"endedAt"`
	TerritoriesCaptured int                   `json:"territoriesCaptured"`
	XPGained            int                   `json:"xpGained"`
	TilesVisited        int                   `json:"tilesVisited"`
	SkippedSamples      int                   `json:"skippedSamples"`
	Pending             int                   `json:"pending"`
	LevelUps            []profile.LevelChange `json:"levelUps,omitempty"`
}

// Dependencies are the collaborators a session transacts through. Profiles
// and Notifier are optional.
type Dependencies struct {
	Store    storage.Store
	Profiles profile.Recorder
	Notifier notify.Notifier
	Policy   territory.XPPolicy
	Zoom     int
	Logger   *slog.Logger

	// ReplayLimit defaults to DefaultReplayLimit.
	ReplayLimit int
	// Now is used for samples without a timestamp.
	Now func() time.Time
}

type visit struct {
	tile grid.Tile
	at   time.Time
}

// Session is safe for concurrent use, although samples are applied one at a
// time.
type Session struct {
	mu     sync.Mutex
	deps   Dependencies
	player territory.Player
	ins    *instruments
	logger *slog.Logger

	id        string
	state     State
	startedAt time.Time
	visited   map[string]struct{}
	captured  int
	xp        int
	skipped   int
	outcomes  []territory.Outcome
	levelUps  []profile.LevelChange
	pending   *queue.Queue[visit]
}

// New creates an idle session for player.
func New(deps Dependencies, player territory.Player) (*Session, error) {
	if deps.Store == nil {
		return nil, ErrNoStore
	}
	if deps.Zoom == 0 {
		deps.Zoom = grid.DefaultZoom
	}
	if err := grid.ValidateZoom(deps.Zoom); err != nil {
		return nil, err
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Discard
	}
	if deps.Policy == (territory.XPPolicy{}) {
		deps.Policy = territory.DefaultXPPolicy()
	}
	if deps.ReplayLimit <= 0 {
		deps.ReplayLimit = DefaultReplayLimit
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	ins, err := newInstruments()
	if err != nil {
		return nil, err
	}

	return &Session{
		deps:   deps,
		player: player,
		ins:    ins,
		logger: deps.Logger.With("player", player.ID),
		state:  Idle,
	}, nil
}

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) Player() territory.Player { return s.player }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start clears all per-session state and activates the session under a new
// id. Starting an active session restarts it.
func (s *Session) Start() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	s.id = uuid.NewString()
	s.state = Active
	s.startedAt = s.deps.Now().UTC()
	s.logger = s.deps.Logger.With("session", s.id, "player", s.player.ID)
	s.logger.Info("Capture session started", "zoom", s.deps.Zoom)
	return s.id
}

func (s *Session) reset() {
	s.visited = make(map[string]struct{})
	s.captured, s.xp, s.skipped = 0, 0, 0
	s.outcomes = nil
	s.levelUps = nil
	s.pending = queue.NewBounded[visit](s.deps.ReplayLimit)
}

// End deactivates the session and returns its summary. It does not replay:
// visits still queued are counted in Pending and dropped. Run and
// Engine.EndSession call Flush first.
func (s *Session) End() (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Active {
		return Summary{}, ErrSessionNotActive
	}

	sum := s.summaryLocked()
	sum.EndedAt = s.deps.Now().UTC()
	s.state = Ended
	s.logger.Info("Capture session ended",
		"captured", sum.TerritoriesCaptured,
		"xp", sum.XPGained,
		"tiles", sum.TilesVisited,
		"skipped", sum.SkippedSamples,
		"pending", sum.Pending,
	)
	s.reset()
	return sum, nil
}

// Abort ends the session without a summary. Committed territory state is
// left untouched.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Active {
		s.logger.Warn("Capture session aborted", "tiles", len(s.visited))
	}
	s.state = Ended
	s.reset()
}

// Snapshot returns the running totals of an active session.
func (s *Session) Snapshot() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryLocked()
}

// Outcomes returns the outcomes applied so far, in order.
func (s *Session) Outcomes() []territory.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]territory.Outcome, len(s.outcomes))
	copy(out, s.outcomes)
	return out
}

func (s *Session) summaryLocked() Summary {
	sum := Summary{
		SessionID:           s.id,
		PlayerID:            s.player.ID,
		StartedAt:           s.startedAt,
		TerritoriesCaptured: s.captured,
		XPGained:            s.xp,
		TilesVisited:        len(s.visited),
		SkippedSamples:      s.skipped,
	}
	if s.pending != nil {
		sum.Pending = s.pending.Len()
	}
	if len(s.levelUps) > 0 {
		sum.LevelUps = append([]profile.LevelChange(nil), s.levelUps...)
	}
	return sum
}
