// Package territory holds the per-tile ownership record and the transitions
// that move it between neutral and owned.
package territory

import (
	"errors"
	"fmt"
	"time"

	"github.com/stravx/conquest/internal/grid"
)

const (
	MaxStrength = 100

	// WeakThreshold marks an owned tile as endangered below this strength.
	WeakThreshold = 30
	// StrongThreshold marks an owned tile as well defended at or above this strength.
	StrongThreshold = 70

	HistoryLimit = 10
)

// ErrInvalidState is returned for a record whose fields do not describe a
// legal neutral or owned state.
var ErrInvalidState = errors.New("invalid territory state")

// Kind discriminates the State variant.
type Kind int

const (
	Neutral Kind = iota
	Owned
)

func (k Kind) String() string {
	switch k {
	case Neutral:
		return "neutral"
	case Owned:
		return "owned"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Player identifies the actor of a transition.
type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Contest is present while an owned tile is under attack. From is the
// strength the tile had when the contest opened.
type Contest struct {
	By   string `json:"by"`
	From int    `json:"from,omitempty"`
}

// State is the tagged view of a territory. Owner, Strength and Contest are
// only meaningful when Kind is Owned.
type State struct {
	Kind     Kind     `json:"kind"`
	Owner    Player   `json:"owner"`
	Strength int      `json:"strength"`
	Contest  *Contest `json:"contest,omitempty"`
}

// NeutralState is the state of an unowned tile.
func NeutralState() State {
	return State{Kind: Neutral}
}

// OwnedState builds an owned state. Strength must be in [1,100].
func OwnedState(owner Player, strength int, contest *Contest) (State, error) {
	if owner.ID == "" {
		return State{}, fmt.Errorf("%w: owned without owner", ErrInvalidState)
	}
	if strength < 1 || strength > MaxStrength {
		return State{}, fmt.Errorf("%w: owned strength %d", ErrInvalidState, strength)
	}
	if contest != nil && contest.By == "" {
		return State{}, fmt.Errorf("%w: contest without attacker", ErrInvalidState)
	}
	return State{Kind: Owned, Owner: owner, Strength: strength, Contest: contest}, nil
}

func (s State) IsNeutral() bool   { return s.Kind == Neutral }
func (s State) IsContested() bool { return s.Kind == Owned && s.Contest != nil }

// OwnedBy reports whether id currently owns the tile.
func (s State) OwnedBy(id string) bool {
	return s.Kind == Owned && s.Owner.ID == id
}

// Territory is the persisted record for one tile.
type Territory struct {
	TileID    string  `json:"tileId"`
	CenterLat float64 `json:"centerLat"`
	CenterLon float64 `json:"centerLon"`
	Zoom      int     `json:"zoom"`

	OwnerID    string    `json:"ownerId,omitempty"`
	OwnerName  string    `json:"ownerName,omitempty"`
	CapturedAt time.Time `json:"capturedAt,omitzero"`

	Strength         int       `json:"strength"`
	LastReinforcedAt time.Time `json:"lastReinforcedAt,omitzero"`
	IsContested      bool      `json:"isContested"`
	ContestedBy      string    `json:"contestedBy,omitempty"`
	ContestedFrom    int       `json:"contestedFrom,omitempty"`

	CaptureCount   int            `json:"captureCount"`
	LastCapturedBy string         `json:"lastCapturedBy,omitempty"`
	History        []CaptureEvent `json:"history,omitempty"`

	// LastDecayedAt anchors decay together with LastReinforcedAt.
	LastDecayedAt time.Time `json:"lastDecayedAt,omitzero"`

	// Version is bumped by the store on every successful write.
	Version int64 `json:"version"`
}

// New creates the neutral record for tile.
func New(tile grid.Tile) *Territory {
	return &Territory{
		TileID:    tile.ID,
		CenterLat: tile.CenterLat,
		CenterLon: tile.CenterLon,
		Zoom:      tile.Zoom,
	}
}

// Tile returns the grid identity of the record.
func (t *Territory) Tile() grid.Tile {
	return grid.Tile{ID: t.TileID, CenterLat: t.CenterLat, CenterLon: t.CenterLon, Zoom: t.Zoom}
}

func (t *Territory) IsNeutral() bool { return t.OwnerID == "" }
func (t *Territory) IsWeak() bool    { return !t.IsNeutral() && t.Strength < WeakThreshold }
func (t *Territory) IsStrong() bool  { return !t.IsNeutral() && t.Strength >= StrongThreshold }

// State converts the flat record into its tagged form.
func (t *Territory) State() (State, error) {
	if t.OwnerID == "" {
		if t.Strength != 0 || t.IsContested || t.ContestedBy != "" || t.ContestedFrom != 0 || t.OwnerName != "" {
			return State{}, fmt.Errorf("%w: neutral tile %s carries ownership fields", ErrInvalidState, t.TileID)
		}
		return NeutralState(), nil
	}
	var contest *Contest
	if t.IsContested {
		contest = &Contest{By: t.ContestedBy, From: t.ContestedFrom}
	} else if t.ContestedBy != "" || t.ContestedFrom != 0 {
		return State{}, fmt.Errorf("%w: tile %s has attacker but is not contested", ErrInvalidState, t.TileID)
	}
	s, err := OwnedState(Player{ID: t.OwnerID, Name: t.OwnerName}, t.Strength, contest)
	if err != nil {
		return State{}, fmt.Errorf("tile %s: %w", t.TileID, err)
	}
	return s, nil
}

// Validate checks the record invariants.
func (t *Territory) Validate() error {
	if t.TileID == "" {
		return fmt.Errorf("%w: empty tile id", ErrInvalidState)
	}
	_, err := t.State()
	return err
}

// setState writes s into the flat fields. Ownership dates are left to the
// transition that changes them.
func (t *Territory) setState(s State) {
	if s.Kind == Neutral {
		t.OwnerID = ""
		t.OwnerName = ""
		t.CapturedAt = time.Time{}
		t.Strength = 0
		t.IsContested = false
		t.ContestedBy = ""
		t.ContestedFrom = 0
		return
	}
	t.OwnerID = s.Owner.ID
	t.OwnerName = s.Owner.Name
	t.Strength = s.Strength
	t.IsContested = s.Contest != nil
	t.ContestedBy = ""
	t.ContestedFrom = 0
	if s.Contest != nil {
		t.ContestedBy = s.Contest.By
		t.ContestedFrom = s.Contest.From
	}
}

// Clone returns a deep copy.
func (t *Territory) Clone() *Territory {
	c := *t
	if t.History != nil {
		c.History = append([]CaptureEvent(nil), t.History...)
	}
	return &c
}
